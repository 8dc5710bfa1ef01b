package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ricardolombre/acdn-elearning/internal/auth"
	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
	"github.com/Ricardolombre/acdn-elearning/internal/telemetry"
)

func TestMetrics_Subscribe(t *testing.T) {
	eb := event.NewBus()
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	m.Subscribe(eb)

	ctx := context.Background()
	eb.Publish(ctx, domain.EventQuizGraded{Result: domain.Result{Score: 80, Passed: true}})
	eb.Publish(ctx, domain.EventQuizGraded{Result: domain.Result{Score: 20}})
	eb.Publish(ctx, domain.EventQuizGraded{Result: domain.Result{Score: 90, Passed: true}})
	eb.Publish(ctx, domain.EventLessonCompleted{Progress: domain.LessonProgress{LessonID: "l1"}})
	eb.Stop()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Scores))
}

func TestUserLimiter_Limit(t *testing.T) {
	l := telemetry.NewUserLimiter(2, time.Minute)

	u1 := auth.WithClaims(context.Background(), &auth.Claims{Sub: "u1"})
	u2 := auth.WithClaims(context.Background(), &auth.Claims{Sub: "u2"})

	require.NoError(t, l.Limit(u1))
	require.NoError(t, l.Limit(u1))
	assert.Error(t, l.Limit(u1), "third request within the window should be refused")

	assert.NoError(t, l.Limit(u2), "other users keep their own budget")
}

func TestMonitorRedis(t *testing.T) {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	require.NoError(t, telemetry.MonitorRedis(rc, "test"))

	ctx := context.Background()
	require.NoError(t, rc.Set(ctx, "k", "v", 0).Err())
	assert.ErrorIs(t, rc.Get(ctx, "missing").Err(), redis.Nil)

	_, err := rc.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, "n")
		p.Incr(ctx, "n")
		return nil
	})
	require.NoError(t, err)

	n, err := rs.Get("n")
	require.NoError(t, err)
	assert.Equal(t, "2", n)
}
