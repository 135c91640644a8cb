package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SizeCapMiddleware denies any inbound transmission payload larger than
// maxBytes. Applies only to messages carrying a transmission (sync-response
// or update), per internal/config.MiddlewareConfig.MaxInboundBytes.
func SizeCapMiddleware(maxBytes int) Middleware {
	return Middleware{
		Name:     "size-cap",
		Requires: []Requirement{RequiresTransmission},
		Check: func(_ context.Context, mc Context) (bool, string) {
			n := len(mc.Message.Transmission.Data)
			if n > maxBytes {
				return false, fmt.Sprintf("transmission of %d bytes exceeds the %d byte cap", n, maxBytes)
			}
			return true, ""
		},
	}
}

// RateLimiter denies a peer's messages once it exceeds maxPerWindow within
// the given window, per-peer. Used in scenario tests as a generic example
// alongside the domain-specific auth/PQC middlewares; not itself part of
// the synchronization protocol.
type RateLimiter struct {
	mu           sync.Mutex
	window       time.Duration
	maxPerWindow int
	seen         map[string][]time.Time
	now          func() time.Time
}

func NewRateLimiter(maxPerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:       window,
		maxPerWindow: maxPerWindow,
		seen:         make(map[string][]time.Time),
		now:          time.Now,
	}
}

// Middleware returns this limiter as a pipeline stage.
func (rl *RateLimiter) Middleware() Middleware {
	return Middleware{
		Name:     "rate-limit",
		Requires: []Requirement{RequiresPeer},
		Check: func(_ context.Context, mc Context) (bool, string) {
			if rl.allow(string(mc.PeerID)) {
				return true, ""
			}
			return false, "peer exceeded its inbound message rate"
		},
	}
}

func (rl *RateLimiter) allow(peer string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	kept := rl.seen[peer][:0]
	for _, t := range rl.seen[peer] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.maxPerWindow {
		rl.seen[peer] = kept
		return false
	}
	rl.seen[peer] = append(kept, now)
	return true
}
