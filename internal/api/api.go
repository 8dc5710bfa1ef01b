package api

import (
	"context"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/Ricardolombre/acdn-elearning/internal/auth"
	"github.com/Ricardolombre/acdn-elearning/internal/authoring"
	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
	"github.com/Ricardolombre/acdn-elearning/internal/player"
	"github.com/Ricardolombre/acdn-elearning/internal/progress"
)

type QuizStore interface {
	SaveQuiz(ctx context.Context, def domain.Definition) (*domain.Definition, error)
	LoadQuiz(ctx context.Context, quizID string) (*domain.Definition, error)
	LoadQuizForLesson(ctx context.Context, lessonID string) (*domain.Definition, error)
	DeleteQuiz(ctx context.Context, quizID string) error
	ListResults(ctx context.Context, quizID, userID string) ([]domain.Result, error)
	ResultAnswers(ctx context.Context, resultID string) ([]domain.Answer, error)
}

type Config struct {
	GRPC         grpc.ServiceRegistrar
	EventBus     *event.Bus
	Auth         auth.Provider
	Quizzes      QuizStore
	Player       *player.Service
	Gate         *progress.Gate
	Redis        Redis
	PubsubPrefix string
	// Authoring options applied to saved definitions, e.g. the true/false labels.
	Authoring []authoring.Option
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	auth      auth.Provider
	quizzes   QuizStore
	player    *player.Service
	gate      *progress.Gate
	authoring []authoring.Option

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		auth:      c.Auth,
		quizzes:   c.Quizzes,
		player:    c.Player,
		gate:      c.Gate,
		authoring: c.Authoring,
		redis:     c.Redis,
		prefix:    c.PubsubPrefix,
	}

	// gRPC APIs
	RegisterQuizServiceServer(c.GRPC, a)

	// Register event handlers
	event.On(c.EventBus, a.PublishQuizGraded)
	event.On(c.EventBus, a.PublishLessonCompleted)

	return a
}

func (a *API) SaveQuiz(ctx context.Context, req *SaveQuizRequest) (*QuizResponse, error) {
	if err := a.requireAdmin(ctx); err != nil {
		return nil, err
	}

	def, err := authoring.ParseDefinition(req.Definition, a.authoring...)
	if err != nil {
		return nil, err
	}

	saved, err := a.quizzes.SaveQuiz(ctx, def)
	if err != nil {
		return nil, err
	}

	return &QuizResponse{Definition: *saved}, nil
}

// GetQuiz returns the full definition, correct answers included, so it is reserved to admins. Learners see
// quizzes through StartQuiz.
func (a *API) GetQuiz(ctx context.Context, req *GetQuizRequest) (*QuizResponse, error) {
	if err := a.requireAdmin(ctx); err != nil {
		return nil, err
	}

	var (
		def *domain.Definition
		err error
	)
	switch {
	case req.QuizID != "":
		def, err = a.quizzes.LoadQuiz(ctx, req.QuizID)
	case req.LessonID != "":
		def, err = a.quizzes.LoadQuizForLesson(ctx, req.LessonID)
		if err == nil && def == nil {
			err = errors.NotFound("lesson %q has no quiz", req.LessonID)
		}
	default:
		err = errors.Validation(errors.Violation{Field: "quiz_id", Message: "quiz_id or lesson_id is required"})
	}
	if err != nil {
		return nil, err
	}

	return &QuizResponse{Definition: *def}, nil
}

func (a *API) DeleteQuiz(ctx context.Context, req *DeleteQuizRequest) (*DeleteQuizResponse, error) {
	if err := a.requireAdmin(ctx); err != nil {
		return nil, err
	}

	if err := a.quizzes.DeleteQuiz(ctx, req.QuizID); err != nil {
		return nil, err
	}
	return &DeleteQuizResponse{}, nil
}

func (a *API) StartQuiz(ctx context.Context, req *StartQuizRequest) (*PlayerResponse, error) {
	userID, err := a.auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.player.Start(ctx, player.StartRequest{UserID: userID, LessonID: req.LessonID})
	if err != nil {
		return nil, err
	}
	return &PlayerResponse{View: resp.View}, nil
}

func (a *API) SelectOption(ctx context.Context, req *SelectOptionRequest) (*PlayerResponse, error) {
	userID, err := a.auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.player.Select(ctx, player.SelectRequest{
		UserID:     userID,
		QuizID:     req.QuizID,
		QuestionID: req.QuestionID,
		OptionID:   req.OptionID,
	})
	if err != nil {
		return nil, err
	}
	return &PlayerResponse{View: resp.View}, nil
}

// GetAttempt returns the stored attempt without changing it.
func (a *API) GetAttempt(ctx context.Context, req *PlayerRequest) (*PlayerResponse, error) {
	return a.step(ctx, req, a.player.Get)
}

// NextQuestion submits the attempt when called on the last question, the response then carries the lesson
// completion.
func (a *API) NextQuestion(ctx context.Context, req *PlayerRequest) (*PlayerResponse, error) {
	return a.step(ctx, req, a.player.Next)
}

func (a *API) PreviousQuestion(ctx context.Context, req *PlayerRequest) (*PlayerResponse, error) {
	return a.step(ctx, req, a.player.Previous)
}

func (a *API) SubmitQuiz(ctx context.Context, req *PlayerRequest) (*PlayerResponse, error) {
	return a.step(ctx, req, a.player.Submit)
}

func (a *API) RetakeQuiz(ctx context.Context, req *PlayerRequest) (*PlayerResponse, error) {
	return a.step(ctx, req, a.player.Retake)
}

func (a *API) step(ctx context.Context, req *PlayerRequest, fn func(context.Context, player.SessionRequest) (*player.Response, error)) (*PlayerResponse, error) {
	userID, err := a.auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := fn(ctx, player.SessionRequest{UserID: userID, QuizID: req.QuizID})
	if err != nil {
		return nil, err
	}

	out := &PlayerResponse{View: resp.View}
	if resp.Graded == nil {
		return out, nil
	}

	r := resp.Graded.Result
	c, err := a.gate.CompleteLesson(ctx, progress.CompleteLessonRequest{
		LessonID: resp.View.LessonID,
		UserID:   userID,
		Outcome:  &progress.QuizOutcome{ResultID: r.ResultID, Score: r.Score, Passed: r.Passed},
	})
	if err != nil {
		return nil, err
	}

	out.Completion = completion(c)
	return out, nil
}

// CompleteLesson is called when the learner leaves a lesson. A result id, when given, must be one of the
// caller's attempts on the lesson quiz.
func (a *API) CompleteLesson(ctx context.Context, req *CompleteLessonRequest) (*Completion, error) {
	userID, err := a.auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	outcome, err := a.outcome(ctx, req, userID)
	if err != nil {
		return nil, err
	}

	c, err := a.gate.CompleteLesson(ctx, progress.CompleteLessonRequest{
		LessonID: req.LessonID,
		UserID:   userID,
		Outcome:  outcome,
	})
	if err != nil {
		return nil, err
	}

	return completion(c), nil
}

func (a *API) outcome(ctx context.Context, req *CompleteLessonRequest, userID string) (*progress.QuizOutcome, error) {
	if req.ResultID == "" {
		return nil, nil
	}

	def, err := a.quizzes.LoadQuizForLesson(ctx, req.LessonID)
	if err != nil || def == nil {
		return nil, err
	}

	results, err := a.quizzes.ListResults(ctx, def.Quiz.QuizID, userID)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.ResultID == req.ResultID {
			return &progress.QuizOutcome{ResultID: r.ResultID, Score: r.Score, Passed: r.Passed}, nil
		}
	}
	return nil, errors.NotFound("result %q not found", req.ResultID)
}

func completion(c *progress.Completion) *Completion {
	return &Completion{
		Status:    c.Status,
		Score:     c.Score,
		Completed: c.Completed,
	}
}

func (a *API) GetCourseProgress(ctx context.Context, req *GetCourseProgressRequest) (*GetCourseProgressResponse, error) {
	userID, err := a.auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	lessons, err := a.gate.CourseProgress(ctx, progress.CourseProgressRequest{CourseID: req.CourseID, UserID: userID})
	if err != nil {
		return nil, err
	}
	return &GetCourseProgressResponse{Lessons: lessons}, nil
}

func (a *API) GetNextLesson(ctx context.Context, req *GetNextLessonRequest) (*GetNextLessonResponse, error) {
	userID, err := a.auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	next, err := a.gate.NextLesson(ctx, progress.LessonRequest{LessonID: req.LessonID, UserID: userID})
	if err != nil {
		return nil, err
	}

	return &GetNextLessonResponse{
		Lesson:    next.Lesson,
		Reachable: next.Reachable,
		Completed: next.Completed,
	}, nil
}

func (a *API) ListResults(ctx context.Context, req *ListResultsRequest) (*ListResultsResponse, error) {
	userID, err := a.auth.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	if req.UserID != "" && req.UserID != userID {
		if err := a.requireAdmin(ctx); err != nil {
			return nil, err
		}
		userID = req.UserID
	}

	results, err := a.quizzes.ListResults(ctx, req.QuizID, userID)
	if err != nil {
		return nil, err
	}

	resp := &ListResultsResponse{Results: make([]ResultEntry, 0, len(results))}
	for _, r := range results {
		e := ResultEntry{Result: r}
		if req.IncludeAnswers {
			if e.Answers, err = a.quizzes.ResultAnswers(ctx, r.ResultID); err != nil {
				return nil, err
			}
		}
		resp.Results = append(resp.Results, e)
	}

	return resp, nil
}

func (a *API) requireAdmin(ctx context.Context) error {
	if _, err := a.auth.CurrentUserID(ctx); err != nil {
		return err
	}
	if !a.auth.IsAdmin(ctx) {
		return errors.New(errors.CodePermissionDenied, errors.WithMessagef("admin role required"))
	}
	return nil
}
