// SPDX-License-Identifier: MIT

// Package ratelimit bounds how fast any single client address or author
// identity can publish, and how many concurrent connections one address may
// hold. Windows are in-memory only; they reset on restart, which is fine for
// a defense-in-depth mechanism.
package ratelimit

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type Config struct {
	// EventsPerSecond is the ceiling of events counted in any trailing
	// one-second window, per key. Zero disables the check.
	EventsPerSecond int `yaml:"eventsPerSecond" mapstructure:"eventsPerSecond"`
	// MaxConnections caps concurrent connections per key. Zero disables.
	MaxConnections int `yaml:"maxConnections" mapstructure:"maxConnections"`
	// IdleTTL is how long an untouched window survives before the sweeper
	// evicts it.
	IdleTTL time.Duration `yaml:"idleTTL" mapstructure:"idleTTL"`
	// SweepInterval schedules the background eviction.
	SweepInterval time.Duration `yaml:"sweepInterval" mapstructure:"sweepInterval"`
}

const (
	defaultIdleTTL       = 5 * time.Minute
	defaultSweepInterval = time.Minute

	window = time.Second
)

type (
	slidingWindow struct {
		stamps   []time.Time
		lastSeen time.Time
	}

	connTracker struct {
		count    int
		lastSeen time.Time
	}

	// State is mutated only inside MapOf.Compute, which serializes all
	// operations on a key. That makes decrement-and-delete-at-zero one
	// atomic step, so a concurrent claim can never land on a tracker the
	// releaser is about to drop.
	Limiter struct {
		cfg      Config
		now      func() time.Time
		windows  *xsync.MapOf[string, slidingWindow]
		trackers *xsync.MapOf[string, connTracker]
		stop     chan struct{}
		stopOnce sync.Once
	}
)

// New starts the limiter and its background sweeper. Call Close to stop it.
func New(cfg Config) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	l := &Limiter{
		cfg:      cfg,
		now:      time.Now,
		windows:  xsync.NewMapOf[string, slidingWindow](),
		trackers: xsync.NewMapOf[string, connTracker](),
		stop:     make(chan struct{}),
	}
	go l.sweepLoop()

	return l
}

// CheckEventLimit reports whether key may publish right now. An allowed call
// consumes a slot in the trailing window; a denied call does not, so denied
// attempts never push the quota further away.
func (l *Limiter) CheckEventLimit(key string) bool {
	if l.cfg.EventsPerSecond <= 0 {
		return true
	}

	allowed := false
	l.windows.Compute(key, func(w slidingWindow, _ bool) (slidingWindow, bool) {
		now := l.now()
		w.lastSeen = now

		cutoff := now.Add(-window)
		kept := w.stamps[:0]
		for _, stamp := range w.stamps {
			if stamp.After(cutoff) {
				kept = append(kept, stamp)
			}
		}
		w.stamps = kept

		if len(w.stamps) < l.cfg.EventsPerSecond {
			w.stamps = append(w.stamps, now)
			allowed = true
		}

		return w, false
	})

	return allowed
}

// TrackConnection claims a connection slot for the address. The caller must
// pair every successful claim with ReleaseConnection.
func (l *Limiter) TrackConnection(addr string) bool {
	if l.cfg.MaxConnections <= 0 {
		return true
	}

	allowed := false
	l.trackers.Compute(addr, func(tr connTracker, _ bool) (connTracker, bool) {
		tr.lastSeen = l.now()
		if tr.count < l.cfg.MaxConnections {
			tr.count++
			allowed = true
		}

		return tr, false
	})

	return allowed
}

func (l *Limiter) ReleaseConnection(addr string) {
	if l.cfg.MaxConnections <= 0 {
		return
	}

	l.trackers.Compute(addr, func(tr connTracker, loaded bool) (connTracker, bool) {
		if !loaded {
			return tr, true
		}
		if tr.count > 0 {
			tr.count--
		}

		return tr, tr.count == 0
	})
}

func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep evicts idle windows and trackers so that memory stays bounded under
// address churn. Range only shortlists candidates from a snapshot; the idle
// check is repeated inside Compute so an entry touched in between survives.
func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.windows.Range(func(key string, w slidingWindow) bool {
		if w.lastSeen.Before(cutoff) {
			l.windows.Compute(key, func(cur slidingWindow, loaded bool) (slidingWindow, bool) {
				return cur, loaded && cur.lastSeen.Before(cutoff)
			})
		}

		return true
	})
	l.trackers.Range(func(key string, tr connTracker) bool {
		if tr.count == 0 && tr.lastSeen.Before(cutoff) {
			l.trackers.Compute(key, func(cur connTracker, loaded bool) (connTracker, bool) {
				return cur, loaded && cur.count == 0 && cur.lastSeen.Before(cutoff)
			})
		}

		return true
	})
}
