package faucet

import (
	"errors"
	"sync"
	"time"
)

const (
	DefaultPerIPLimit    = 10
	DefaultPerIPWindow   = time.Minute
	DefaultPerAddrLimit  = 1
	DefaultPerAddrWindow = 24 * time.Hour

	// maxSweepInterval caps how often allow walks every key to drop expired ones.
	maxSweepInterval = time.Minute
)

// ErrRateLimited is returned when a request exceeds one of the limiter windows.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError reports which window rejected a request.
type LimitError struct {
	Kind       string // "ip" or "address"
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return "rate limit exceeded (" + e.Kind + ")"
}

func (e *LimitError) Unwrap() error {
	return ErrRateLimited
}

// LimiterConfig sets the request budget per window.
type LimiterConfig struct {
	PerIP         int
	PerIPWindow   time.Duration
	PerAddr       int
	PerAddrWindow time.Duration
}

func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		PerIP:         DefaultPerIPLimit,
		PerIPWindow:   DefaultPerIPWindow,
		PerAddr:       DefaultPerAddrLimit,
		PerAddrWindow: DefaultPerAddrWindow,
	}
}

// Limiter enforces per-IP and per-address sliding windows in process memory.
// Instances do not share state.
type Limiter struct {
	cfg      LimiterConfig
	mu       sync.Mutex
	ipHits   map[string][]time.Time
	addrHits map[string][]time.Time
	now      func() time.Time

	sweepEvery time.Duration
	lastSweep  time.Time
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{
		cfg:        cfg,
		ipHits:     make(map[string][]time.Time),
		addrHits:   make(map[string][]time.Time),
		now:        time.Now,
		sweepEvery: sweepIntervalFor(cfg),
	}
}

// sweepIntervalFor is the shortest configured window, capped at maxSweepInterval.
func sweepIntervalFor(cfg LimiterConfig) time.Duration {
	every := maxSweepInterval
	for _, win := range []time.Duration{cfg.PerIPWindow, cfg.PerAddrWindow} {
		if win > 0 && win < every {
			every = win
		}
	}
	return every
}

// AllowIP records a hit for ip if it is within budget.
func (l *Limiter) AllowIP(ip string) error {
	return l.allow(l.ipHits, "ip", ip, l.cfg.PerIP, l.cfg.PerIPWindow)
}

// AllowAddress records a hit for addr if it is within budget.
func (l *Limiter) AllowAddress(addr string) error {
	return l.allow(l.addrHits, "address", addr, l.cfg.PerAddr, l.cfg.PerAddrWindow)
}

// Forget drops the last recorded hit for addr. Used when a drip fails before a
// transaction was sent, so the address is not locked out for a full window.
func (l *Limiter) Forget(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hits := l.addrHits[addr]
	if len(hits) == 0 {
		return
	}
	if len(hits) == 1 {
		delete(l.addrHits, addr)
		return
	}
	l.addrHits[addr] = hits[:len(hits)-1]
}

func (l *Limiter) allow(m map[string][]time.Time, kind, key string, limit int, win time.Duration) error {
	if limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)
	prune(m, key, now.Add(-win))
	hits := m[key]
	if len(hits) >= limit {
		return &LimitError{Kind: kind, RetryAfter: hits[0].Add(win).Sub(now)}
	}
	m[key] = append(hits, now)
	return nil
}

// maybeSweep prunes every key of both maps, at most once per sweepEvery. Keys that are never
// requested again would otherwise stay forever. Callers hold l.mu.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.sweepEvery {
		return
	}
	l.lastSweep = now
	for key := range l.ipHits {
		prune(l.ipHits, key, now.Add(-l.cfg.PerIPWindow))
	}
	for key := range l.addrHits {
		prune(l.addrHits, key, now.Add(-l.cfg.PerAddrWindow))
	}
}

// prune drops timestamps at or before cutoff and removes empty keys.
func prune(m map[string][]time.Time, key string, cutoff time.Time) {
	hits := m[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == len(hits) {
		delete(m, key)
		return
	}
	m[key] = hits[i:]
}
