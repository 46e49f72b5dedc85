package geocode

import "sync"

const (
	// DefaultAllowance is the daily request budget of a free OpenCage key.
	DefaultAllowance = 2500
	// SafetyThreshold is the remaining count below which lookups are refused.
	SafetyThreshold = 5
)

// Decision is the outcome of a quota authorization.
type Decision int

const (
	Denied Decision = iota
	Authorized
)

func (d Decision) String() string {
	if d == Authorized {
		return "authorized"
	}
	return "denied"
}

// QuotaLimiter holds the API key and the provider-reported number of
// remaining calls. The provider is authoritative: the counter is never
// decremented locally, only replaced by Update.
type QuotaLimiter struct {
	mu        sync.Mutex
	key       string
	remaining int
}

// NewQuotaLimiter creates a limiter for key with the given remaining allowance.
func NewQuotaLimiter(key string, remaining int) *QuotaLimiter {
	return &QuotaLimiter{key: key, remaining: remaining}
}

// Authorize permits one call unless the remaining allowance is below the
// safety threshold.
func (q *QuotaLimiter) Authorize() Decision {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.remaining < SafetyThreshold {
		return Denied
	}
	return Authorized
}

// Update records the remaining count reported by the provider.
func (q *QuotaLimiter) Update(remaining int) {
	q.mu.Lock()
	q.remaining = remaining
	q.mu.Unlock()
}

// Remaining returns the last count reported by the provider.
func (q *QuotaLimiter) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining
}

// Key returns the API key sent with every request.
func (q *QuotaLimiter) Key() string {
	return q.key
}
