// Package ratelimiter throttles connections per remote host.
package ratelimiter

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepEvery is how many Allow calls pass between idle-entry sweeps.
const sweepEvery = 512

// HostLimiter applies a token bucket per remote host and periodically evicts
// hosts that have been idle for longer than idleTTL. A nil *HostLimiter allows
// everything.
type HostLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byHost map[string]*entry
	calls  uint64
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a per-host limiter; it returns nil (no limiting) when rps or
// burst is not positive.
func New(rps float64, burst int, idleTTL time.Duration) *HostLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &HostLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byHost:  make(map[string]*entry),
	}
}

// AllowAddr reports whether a connection from addr may be served at now.
func (l *HostLimiter) AllowAddr(addr net.Addr, now time.Time) bool {
	if l == nil || addr == nil {
		return true
	}
	return l.Allow(hostOf(addr), now)
}

// Allow reports whether one token can be consumed for host at now.
func (l *HostLimiter) Allow(host string, now time.Time) bool {
	if l == nil || host == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byHost[host]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byHost[host] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.evictIdle(now)
	}
	return allowed
}

func (l *HostLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for host, e := range l.byHost {
		if e.lastSeen.Before(cutoff) {
			delete(l.byHost, host)
		}
	}
}

func hostOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
