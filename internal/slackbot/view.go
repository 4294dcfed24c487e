package slackbot

import (
	"github.com/slack-go/slack"

	"Sailor-Bot/internal/home"
)

const homeTitle = "Welcome to Sailor Home Page!"

// HomeView 把模型选择渲染为 App Home 的视图。
func HomeView(sel home.Selection) slack.HomeTabViewRequest {
	options := make([]*slack.OptionBlockObject, 0, len(sel.Options))
	for _, opt := range sel.Options {
		options = append(options, optionBlock(opt))
	}

	picker := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, nil, ActionPickProvider, options...)
	if initial, ok := sel.InitialOption(); ok {
		picker.InitialOption = optionBlock(initial)
	}

	return slack.HomeTabViewRequest{
		Type: slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, homeTitle, true, false)),
			slack.NewDividerBlock(),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*Pick an option*", false, false), nil, nil),
			slack.NewActionBlock("", picker),
		}},
	}
}

func optionBlock(opt home.Option) *slack.OptionBlockObject {
	return slack.NewOptionBlockObject(opt.Value,
		slack.NewTextBlockObject(slack.PlainTextType, opt.Label, true, false), nil)
}
