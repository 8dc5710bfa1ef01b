package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
)

const namespace = "elearning"

// Metrics counts graded attempts and completed lessons from the event bus.
type Metrics struct {
	Submissions *prometheus.CounterVec
	Scores      prometheus.Histogram
	Completions prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quiz_submissions_total",
			Help:      "Graded quiz attempts.",
		}, []string{"passed"}),

		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quiz_score",
			Help:      "Score of graded quiz attempts, 0 to 100.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),

		Completions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lesson_completions_total",
			Help:      "Lessons marked completed.",
		}),
	}
}

func (m *Metrics) Subscribe(eb *event.Bus) {
	event.On(eb, func(_ context.Context, e domain.EventQuizGraded) error {
		m.Submissions.WithLabelValues(strconv.FormatBool(e.Result.Passed)).Inc()
		m.Scores.Observe(float64(e.Result.Score))
		return nil
	})

	event.On(eb, func(_ context.Context, _ domain.EventLessonCompleted) error {
		m.Completions.Inc()
		return nil
	})
}
