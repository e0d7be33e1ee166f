package gate

import (
	"net"
	"sync"
	"time"
)

// AdmissionLimiter enforces a sliding window of at most limit admitted
// connections per source address per interval. The check runs before any
// authentication work.
type AdmissionLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewAdmissionLimiter(limit int, interval time.Duration) *AdmissionLimiter {
	return &AdmissionLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (l *AdmissionLimiter) Allow(addr string) bool {
	key := canonicalAddr(addr)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.interval)

	attempts := l.history[key]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= l.limit {
		l.history[key] = fresh
		return false
	}

	fresh = append(fresh, now)
	l.history[key] = fresh
	return true
}

// canonicalAddr strips the ephemeral port so the window is per host.
func canonicalAddr(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
