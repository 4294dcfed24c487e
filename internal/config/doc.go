// Package config loads Sailor's runtime configuration. Values come from an
// optional YAML or JSON file, are overridden by the environment variables the
// bot has always been deployed with (SLACK_BOT_TOKEN, REDIS_URL, GENAI_API_URL,
// DO_API_TOKEN, ...), and are finally completed with defaults. Missing
// credentials are never an error here; components decide what they need.
package config
