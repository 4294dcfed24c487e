package slackbot

// 用户可见的固定文案。
const (
	MentionWithoutText = "Hi there! You didn't provide a message with your mention.\n" +
		"    Mention me again in this thread so that I can help you out!"

	SummarizeChannelPrompt = "A user has just joined this Slack channel.\n" +
		"Please create a quick summary of the conversation in this channel to help them catch up.\n" +
		"Don't use user IDs or names in your response."

	SummarizeThreadPrompt = "Please summarize this thread conversation to highlight the key points and conclusions.\n" +
		"Keep the summary concise and focused on the important information.\n" +
		"Don't use user IDs in your response."

	LoadingText = "Adjusting the sails..."

	EmptyPromptText = "Looks like you didn't provide a prompt. Try again."

	IndexingUnavailableText = "Knowledge base indexing is not configured for this workspace."

	errorPrefix = "Received an error from Sailor:\n"
)

// Slash 命令与交互动作的标识。
const (
	CommandAsk      = "/ask-debbie"
	CommandSummary  = "/debbie-summary"
	CommandIndex    = "/update-debbie"
	CommandProgress = "/debbie-progress"

	ActionPickProvider = "pick_a_provider"
)
