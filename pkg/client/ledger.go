package client

import "sync"

// MaxRateLimitRetries is the retry ceiling per URL within one logical
// operation. The attempt that would push the count past it is abandoned.
const MaxRateLimitRetries = 5

// RetryLedger counts confirmed rate-limit rejections per request URL.
// One ledger is scoped to one logical operation (one list fetch, one
// batch) and is never shared across operations. Pages of the same
// operation retry concurrently, hence the lock.
type RetryLedger struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRetryLedger creates an empty ledger.
func NewRetryLedger() *RetryLedger {
	return &RetryLedger{counts: make(map[string]int)}
}

// Bump increments the retry count for url and returns the new count.
// Called only on a confirmed rate-limit rejection.
func (l *RetryLedger) Bump(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[url]++
	return l.counts[url]
}

// Count returns the current retry count for url.
func (l *RetryLedger) Count(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[url]
}
