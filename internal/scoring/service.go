package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
	"github.com/Ricardolombre/acdn-elearning/internal/grading"
	"github.com/Ricardolombre/acdn-elearning/internal/quiz"
)

type ResultRecorder interface {
	RecordResult(ctx context.Context, req quiz.RecordResultRequest) (*domain.Result, error)
}

type Config struct {
	EventBus *event.Bus
	Results  ResultRecorder
}

type Service struct {
	eb      *event.Bus
	results ResultRecorder
}

func NewService(c Config) *Service {
	return &Service{
		eb:      c.EventBus,
		results: c.Results,
	}
}

type SubmitRequest struct {
	Definition  domain.Definition
	UserID      string
	Submissions []domain.Submission
	SubmitTime  time.Time
}

type SubmitResponse struct {
	Result  domain.Result
	Outcome grading.Outcome
}

// Submit grades an attempt, stores the result with its answers and announces it. Nothing is published when the
// result cannot be stored.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	out := grading.Grade(req.Definition, req.Submissions)

	answers := make([]domain.Answer, 0, len(out.Answers))
	for _, a := range out.Answers {
		answers = append(answers, domain.Answer{
			QuestionID:       a.QuestionID,
			SelectedOptionID: a.SelectedOptionID,
			IsCorrect:        a.IsCorrect,
		})
	}

	submitTime := req.SubmitTime
	if submitTime.IsZero() {
		submitTime = time.Now()
	}

	res, err := s.results.RecordResult(ctx, quiz.RecordResultRequest{
		QuizID:      req.Definition.Quiz.QuizID,
		UserID:      req.UserID,
		Score:       out.Score,
		Passed:      out.Passed,
		CompletedAt: submitTime.UTC(),
		Answers:     answers,
	})
	if err != nil {
		slog.ErrorContext(ctx, "scoring: record result failed",
			"quiz_id", req.Definition.Quiz.QuizID,
			"user_id", req.UserID,
			"error", err,
		)
		return nil, err
	}

	slog.InfoContext(ctx, "scoring: quiz graded",
		"quiz_id", res.QuizID,
		"user_id", res.UserID,
		"result_id", res.ResultID,
		"score", res.Score,
		"passed", res.Passed,
	)

	s.eb.Publish(ctx, domain.EventQuizGraded{
		LessonID: req.Definition.Quiz.LessonID,
		Result:   *res,
	})

	return &SubmitResponse{
		Result:  *res,
		Outcome: out,
	}, nil
}
