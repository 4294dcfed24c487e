package metrics

import (
	"strconv"
	"time"
)

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	global.mu.Lock()
	defer global.mu.Unlock()

	global.httpRequests.add(1, handler, method, strconv.Itoa(status))
	if status >= 500 {
		global.httpErrors.add(1, handler, method)
	}
	global.httpLatency.observe(duration.Seconds(), handler, method)
}
