package metrics

import "time"

// Token directions for AddEstimatedTokens.
const (
	DirectionPrompt   = "prompt"
	DirectionResponse = "response"
)

// ObserveGeneration records one backend call. outcome is "ok" or an error code.
func ObserveGeneration(provider, model, outcome string, duration time.Duration) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.generations.add(1, provider, model, outcome)
	global.genLatency.observe(duration.Seconds(), provider)
}

// AddEstimatedTokens accumulates the rough token estimate for a provider.
func AddEstimatedTokens(provider, direction string, tokens int) {
	if tokens <= 0 {
		return
	}
	global.mu.Lock()
	defer global.mu.Unlock()
	global.estimatedToken.add(uint64(tokens), provider, direction)
}

// IncSelectionFallback counts a request that fell back to the default provider.
func IncSelectionFallback(reason string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.fallbacks.add(1, reason)
}

// ObserveIndexingJob counts an indexing job start or progress query.
func ObserveIndexingJob(operation, outcome string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.indexingJobs.add(1, operation, outcome)
}
