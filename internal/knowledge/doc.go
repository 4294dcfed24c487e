// Package knowledge drives the re-indexing of the bot's knowledge base on the
// DigitalOcean GenAI platform. A Service starts indexing jobs for a data
// source, remembers the latest job id per channel in a JobStore and reports
// the job's progress on request.
package knowledge
