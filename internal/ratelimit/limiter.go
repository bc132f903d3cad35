// Package ratelimit bounds how fast any single caller can submit.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL       = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

// entry pairs a limiter with its last use so idle keys can be swept.
type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store hands out one token bucket per key and forgets keys that go idle.
// Keys are whatever the caller chooses: user ids on the submit path, client
// IPs in the HTTP middleware.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	rps     rate.Limit
	burst   int
	idleTTL time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStore creates a limiter store allowing rps sustained requests per key
// with the given burst.
func NewStore(rps float64, burst int, idleTTL time.Duration) *Store {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &Store{
		entries: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		stop:    make(chan struct{}),
	}
}

// Allow reports whether the key may proceed now.
func (s *Store) Allow(key string) bool {
	return s.limiterFor(key).Allow()
}

func (s *Store) limiterFor(key string) *rate.Limiter {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// StartSweep drops idle keys every interval until Stop is called.
func (s *Store) StartSweep(interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(time.Now())
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Store) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.lastSeen) > s.idleTTL {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Stop ends the background sweep. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Len reports how many keys are currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
