package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc/peer"

	"github.com/Ricardolombre/acdn-elearning/internal/auth"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserLimiter allows a number of requests per window to each caller. Callers are keyed by user id, or by peer
// address before authentication. Idle callers are forgotten.
type UserLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	every     rate.Limit
	burst     int
	expiry    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewUserLimiter(maxRequests int, window time.Duration) *UserLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}

	expiry := window * 3
	if expiry < time.Minute {
		expiry = time.Minute
	}

	return &UserLimiter{
		visitors: make(map[string]*visitor),
		every:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		expiry:   expiry,
		now:      time.Now,
	}
}

// Limit implements ratelimit.Limiter.
func (l *UserLimiter) Limit(ctx context.Context) error {
	key := callerKey(ctx)
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > l.expiry {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.expiry {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	if !v.limiter.AllowN(now, 1) {
		return fmt.Errorf("too many requests from %s", key)
	}
	return nil
}

func callerKey(ctx context.Context) string {
	if id, err := auth.CurrentUserID(ctx); err == nil {
		return "user:" + id
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return "peer:" + p.Addr.String()
	}
	return "anonymous"
}
