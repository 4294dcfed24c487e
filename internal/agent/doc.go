// Package agent contains the response orchestrator. It resolves the provider
// and model a user picked (falling back to the configured default whenever the
// selection cannot be read or is no longer offered), assembles the prompt from
// the request and its conversation context, and invokes one backend per
// request. It also owns selection updates coming from the home surface.
package agent
