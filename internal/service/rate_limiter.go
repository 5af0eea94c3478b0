package service

import (
	"sync"
	"time"
)

// RateDecision es el resultado de consumir una solicitud del cupo de una clave.
// Remaining es -1 cuando el backend no pudo contar.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter limita la frecuencia de solicitudes por clave (IP, email, etc).
type RateLimiter interface {
	Take(key string) RateDecision
}

type memoryRateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryRateLimiter crea un rate limiter en memoria con ventana deslizante.
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	return newMemoryRateLimiter(window, max, func() time.Time { return time.Now().UTC() })
}

func newMemoryRateLimiter(window time.Duration, max int, now func() time.Time) *memoryRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRateLimiter{
		window:    window,
		max:       max,
		hits:      make(map[string][]time.Time),
		lastSweep: now(),
		now:       now,
	}
}

func (l *memoryRateLimiter) Take(key string) RateDecision {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return RateDecision{
			Allowed:    false,
			Limit:      l.max,
			Remaining:  0,
			RetryAfter: kept[0].Add(l.window).Sub(now),
		}
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return RateDecision{Allowed: true, Limit: l.max, Remaining: l.max - len(kept)}
}

// sweep descarta las claves sin solicitudes dentro de la ventana.
func (l *memoryRateLimiter) sweep(cutoff time.Time) {
	for key, entries := range l.hits {
		if len(entries) == 0 || !entries[len(entries)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}
