// Package state persists each user's provider/model selection.
//
// Every store keeps one flat JSON-shaped record per user and replaces it
// atomically on write; there are no partial updates and the last writer for a
// user wins. Stores are safe for concurrent use.
package state
