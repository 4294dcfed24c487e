// Package slackbot adapts Slack socket mode to the orchestrator: slash
// commands, mentions, direct messages, the App Home model picker and its
// block action. Handlers talk to Slack only through the Messenger interface.
package slackbot
