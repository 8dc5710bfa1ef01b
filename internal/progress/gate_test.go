package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
	"github.com/Ricardolombre/acdn-elearning/internal/progress"
	"github.com/Ricardolombre/acdn-elearning/internal/progress/progresstest"
	"github.com/Ricardolombre/acdn-elearning/internal/quiz/quiztest"
)

var lessons = []domain.Lesson{
	{LessonID: "l1", CourseID: "c1", Title: "Introduction", Order: 1},
	{LessonID: "l2", CourseID: "c1", Title: "Contrats", Order: 2},
	{LessonID: "l3", CourseID: "c1", Title: "Responsabilité", Order: 3, IsLocked: true},
	{LessonID: "other", CourseID: "c2", Title: "Autre cours", Order: 1},
}

func TestGate_CompleteLesson(t *testing.T) {
	type (
		inputs struct {
			lessonID string
			outcome  func(f *fixture) *progress.QuizOutcome
		}
		outputs struct {
			completion *progress.Completion
			err        error
			fixture    *fixture
		}
	)

	tests := map[string]struct {
		arrange func(f *fixture) inputs
		assert  func(t *testing.T, out outputs)
	}{
		"unknown lesson should be not found": {
			arrange: func(f *fixture) inputs { return inputs{lessonID: "nope"} },
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.HasCode(out.err, errors.CodeNotFound))
			},
		},

		"lesson without quiz should complete": {
			arrange: func(f *fixture) inputs { return inputs{lessonID: "l1"} },
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusCompleted, out.completion.Status)
				assert.True(t, out.completion.Completed)
				assert.True(t, out.completion.Progress.Completed)
				assert.Equal(t, 1, out.fixture.store.Writes)
				assert.Len(t, out.fixture.events(), 1)
			},
		},

		"optional quiz should not block completion": {
			arrange: func(f *fixture) inputs {
				f.saveQuiz(t, "l1", false)
				return inputs{lessonID: "l1"}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusCompleted, out.completion.Status)
			},
		},

		"required quiz without attempt should ask for the quiz": {
			arrange: func(f *fixture) inputs {
				f.saveQuiz(t, "l2", true)
				return inputs{lessonID: "l2"}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusQuizRequired, out.completion.Status)
				assert.Zero(t, out.fixture.store.Writes)
			},
		},

		"failed attempt should ask for a retake and write nothing": {
			arrange: func(f *fixture) inputs {
				quizID := f.saveQuiz(t, "l2", true)
				return inputs{lessonID: "l2", outcome: func(f *fixture) *progress.QuizOutcome {
					r := f.quizzes.AddResult(domain.Result{QuizID: quizID, UserID: "u1", Score: 30, CompletedAt: time.Now()})
					return &progress.QuizOutcome{ResultID: r.ResultID, Score: r.Score, Passed: r.Passed}
				}}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusRetakeRequired, out.completion.Status)
				assert.Equal(t, 30, out.completion.Score)
				assert.Zero(t, out.fixture.store.Writes)
				assert.Empty(t, out.fixture.events())
			},
		},

		"first passing attempt should complete and publish": {
			arrange: func(f *fixture) inputs {
				quizID := f.saveQuiz(t, "l2", true)
				return inputs{lessonID: "l2", outcome: func(f *fixture) *progress.QuizOutcome {
					r := f.quizzes.AddResult(domain.Result{QuizID: quizID, UserID: "u1", Score: 90, Passed: true, CompletedAt: time.Now()})
					return &progress.QuizOutcome{ResultID: r.ResultID, Score: r.Score, Passed: r.Passed}
				}}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusCompleted, out.completion.Status)
				assert.Equal(t, 90, out.completion.Score)
				assert.Equal(t, 1, out.fixture.store.Writes)

				events := out.fixture.events()
				require.Len(t, events, 1)
				assert.Equal(t, "l2", events[0].Progress.LessonID)
				assert.Equal(t, "u1", events[0].Progress.UserID)
			},
		},

		"earlier passing attempt should short circuit with the prior score": {
			arrange: func(f *fixture) inputs {
				quizID := f.saveQuiz(t, "l2", true)
				f.quizzes.AddResult(domain.Result{QuizID: quizID, UserID: "u1", Score: 75, Passed: true, CompletedAt: time.Now().Add(-time.Hour)})
				return inputs{lessonID: "l2", outcome: func(f *fixture) *progress.QuizOutcome {
					r := f.quizzes.AddResult(domain.Result{QuizID: quizID, UserID: "u1", Score: 100, Passed: true, CompletedAt: time.Now()})
					return &progress.QuizOutcome{ResultID: r.ResultID, Score: r.Score, Passed: r.Passed}
				}}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusAlreadyPassed, out.completion.Status)
				assert.Equal(t, 75, out.completion.Score)
				assert.False(t, out.completion.Completed, "nothing was stored for the lesson")
				assert.Zero(t, out.fixture.store.Writes)
				assert.Empty(t, out.fixture.events())
			},
		},

		"already passed should report the stored completion": {
			arrange: func(f *fixture) inputs {
				quizID := f.saveQuiz(t, "l2", true)
				f.quizzes.AddResult(domain.Result{QuizID: quizID, UserID: "u1", Score: 75, Passed: true, CompletedAt: time.Now()})
				_, err := f.store.MarkCompleted(context.Background(), "l2", "u1", time.Now())
				require.NoError(t, err)
				return inputs{lessonID: "l2"}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusAlreadyPassed, out.completion.Status)
				assert.True(t, out.completion.Completed)
				assert.Equal(t, 1, out.fixture.store.Writes)
				assert.Empty(t, out.fixture.events())
			},
		},

		"passed quiz revisited without attempt should be already passed": {
			arrange: func(f *fixture) inputs {
				quizID := f.saveQuiz(t, "l2", true)
				f.quizzes.AddResult(domain.Result{QuizID: quizID, UserID: "u1", Score: 80, Passed: true, CompletedAt: time.Now()})
				return inputs{lessonID: "l2"}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusAlreadyPassed, out.completion.Status)
				assert.Equal(t, 80, out.completion.Score)
			},
		},

		"passing result of another user should not count": {
			arrange: func(f *fixture) inputs {
				quizID := f.saveQuiz(t, "l2", true)
				f.quizzes.AddResult(domain.Result{QuizID: quizID, UserID: "u2", Score: 80, Passed: true, CompletedAt: time.Now()})
				return inputs{lessonID: "l2"}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, progress.StatusQuizRequired, out.completion.Status)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := makeGate(t)
			in := tt.arrange(f)

			var outcome *progress.QuizOutcome
			if in.outcome != nil {
				outcome = in.outcome(f)
			}

			c, err := f.gate.CompleteLesson(context.Background(), progress.CompleteLessonRequest{
				LessonID: in.lessonID,
				UserID:   "u1",
				Outcome:  outcome,
			})
			f.eb.Stop()

			tt.assert(t, outputs{completion: c, err: err, fixture: f})
		})
	}
}

func TestGate_CourseProgress(t *testing.T) {
	ctx := context.Background()
	f := makeGate(t)

	_, err := f.gate.CompleteLesson(ctx, progress.CompleteLessonRequest{LessonID: "l1", UserID: "u1"})
	require.NoError(t, err)

	got, err := f.gate.CourseProgress(ctx, progress.CourseProgressRequest{CourseID: "c1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"l1": true, "l2": false, "l3": false}, got)

	got, err = f.gate.CourseProgress(ctx, progress.CourseProgressRequest{CourseID: "c1", UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"l1": false, "l2": false, "l3": false}, got)

	done, err := f.gate.LessonCompleted(ctx, progress.LessonRequest{LessonID: "l1", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, done)
}

func TestGate_NextLesson(t *testing.T) {
	ctx := context.Background()
	f := makeGate(t)

	tests := map[string]struct {
		lessonID      string
		wantLesson    string
		wantReachable bool
	}{
		"next unlocked lesson should be reachable": {lessonID: "l1", wantLesson: "l2", wantReachable: true},
		"next locked lesson should stay locked":    {lessonID: "l2", wantLesson: "l3", wantReachable: false},
		"last lesson should have no next":          {lessonID: "l3"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := f.gate.NextLesson(ctx, progress.LessonRequest{LessonID: tt.lessonID, UserID: "u1"})
			require.NoError(t, err)

			assert.Equal(t, tt.wantReachable, resp.Reachable)
			if tt.wantLesson == "" {
				assert.Nil(t, resp.Lesson)
				return
			}
			require.NotNil(t, resp.Lesson)
			assert.Equal(t, tt.wantLesson, resp.Lesson.LessonID)
		})
	}
}

type fixture struct {
	gate    *progress.Gate
	store   *progresstest.Memory
	quizzes *quiztest.Memory
	eb      *event.Bus

	mu        sync.Mutex
	published []domain.EventLessonCompleted
}

func (f *fixture) events() []domain.EventLessonCompleted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published
}

func (f *fixture) saveQuiz(t *testing.T, lessonID string, required bool) string {
	t.Helper()

	def, err := f.quizzes.SaveQuiz(context.Background(), domain.Definition{
		Quiz: domain.Quiz{LessonID: lessonID, Title: "Quiz", IsRequired: required, PassingScore: 70},
		Questions: []domain.Question{
			{Text: "Q", Type: domain.SingleChoice, Points: 1, Order: 1, Options: []domain.Option{
				{Text: "A", IsCorrect: true, Order: 1},
				{Text: "B", Order: 2},
			}},
		},
	})
	require.NoError(t, err)
	return def.Quiz.QuizID
}

func makeGate(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   progresstest.NewMemory(lessons...),
		quizzes: quiztest.NewMemory(),
		eb:      event.NewBus(),
	}

	event.On(f.eb, func(_ context.Context, e domain.EventLessonCompleted) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e)
		return nil
	})

	f.gate = progress.NewGate(progress.Config{
		Store:    f.store,
		Quizzes:  f.quizzes,
		EventBus: f.eb,
	})
	return f
}
