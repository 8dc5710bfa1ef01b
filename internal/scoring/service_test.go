package scoring_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
	"github.com/Ricardolombre/acdn-elearning/internal/quiz/quiztest"
	"github.com/Ricardolombre/acdn-elearning/internal/scoring"
)

var def = domain.Definition{
	Quiz: domain.Quiz{QuizID: "quiz-1", LessonID: "lesson-1", Title: "Contrats", IsRequired: true, PassingScore: 50},
	Questions: []domain.Question{
		{QuestionID: "q1", Type: domain.SingleChoice, Points: 1, Order: 1, Options: []domain.Option{
			{OptionID: "a", QuestionID: "q1", IsCorrect: true, Order: 1},
			{OptionID: "b", QuestionID: "q1", Order: 2},
		}},
		{QuestionID: "q2", Type: domain.TrueFalse, Points: 1, Order: 2, Options: []domain.Option{
			{OptionID: "vrai", QuestionID: "q2", Order: 1},
			{OptionID: "faux", QuestionID: "q2", IsCorrect: true, Order: 2},
		}},
	},
}

func TestService_Submit(t *testing.T) {
	type (
		inputs struct {
			repo *quiztest.Memory
			req  scoring.SubmitRequest
		}
		outputs struct {
			resp   *scoring.SubmitResponse
			err    error
			events []domain.EventQuizGraded
			repo   *quiztest.Memory
		}
	)

	submitTime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"half correct at passing score 50 should pass and be recorded": {
			arrange: func() inputs {
				return inputs{
					repo: quiztest.NewMemory(),
					req: scoring.SubmitRequest{
						Definition: def,
						UserID:     "u1",
						Submissions: []domain.Submission{
							{QuestionID: "q1", SelectedOptionID: "a"},
							{QuestionID: "q2", SelectedOptionID: "vrai"},
						},
						SubmitTime: submitTime,
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, 50, out.resp.Result.Score)
				assert.True(t, out.resp.Result.Passed)
				assert.Equal(t, submitTime, out.resp.Result.CompletedAt)

				answers, err := out.repo.ResultAnswers(context.Background(), out.resp.Result.ResultID)
				require.NoError(t, err)
				require.Len(t, answers, 2)
				assert.True(t, answers[0].IsCorrect)
				assert.False(t, answers[1].IsCorrect)

				require.Len(t, out.events, 1)
				assert.Equal(t, "lesson-1", out.events[0].LessonID)
				assert.Equal(t, out.resp.Result, out.events[0].Result)
			},
		},

		"storage failure should return a storage error and publish nothing": {
			arrange: func() inputs {
				repo := quiztest.NewMemory()
				repo.Err = stderrors.New("connection refused")
				return inputs{
					repo: repo,
					req: scoring.SubmitRequest{
						Definition:  def,
						UserID:      "u1",
						Submissions: []domain.Submission{{QuestionID: "q1", SelectedOptionID: "a"}},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.HasCode(out.err, errors.CodeUnavailable))
				assert.Nil(t, out.resp)
				assert.Empty(t, out.events)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			var (
				mu     sync.Mutex
				events []domain.EventQuizGraded
				eb     = event.NewBus()
			)
			event.On(eb, func(_ context.Context, e domain.EventQuizGraded) error {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, e)
				return nil
			})

			svc := scoring.NewService(scoring.Config{EventBus: eb, Results: in.repo})
			resp, err := svc.Submit(context.Background(), in.req)
			eb.Stop()

			tt.assert(t, outputs{resp: resp, err: err, events: events, repo: in.repo})
		})
	}
}
