// Package progress decides when a learner has completed a lesson. A lesson with a required quiz only completes
// once the quiz is passed.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
)

type Store interface {
	Lesson(ctx context.Context, lessonID string) (*domain.Lesson, error)
	CourseLessons(ctx context.Context, courseID string) ([]domain.Lesson, error)
	MarkCompleted(ctx context.Context, lessonID, userID string, at time.Time) (*domain.LessonProgress, error)
	Completed(ctx context.Context, courseID, userID string) (map[string]bool, error)
}

type QuizFinder interface {
	LoadQuizForLesson(ctx context.Context, lessonID string) (*domain.Definition, error)
	FirstPassingResult(ctx context.Context, quizID, userID string) (*domain.Result, error)
}

type Status string

const (
	StatusCompleted      Status = "completed"
	StatusAlreadyPassed  Status = "already_passed"
	StatusQuizRequired   Status = "quiz_required"
	StatusRetakeRequired Status = "retake_required"
)

type Config struct {
	Store    Store
	Quizzes  QuizFinder
	EventBus *event.Bus
	Now      func() time.Time
}

type Gate struct {
	store   Store
	quizzes QuizFinder
	eb      *event.Bus
	now     func() time.Time
}

func NewGate(c Config) *Gate {
	g := &Gate{
		store:   c.Store,
		quizzes: c.Quizzes,
		eb:      c.EventBus,
		now:     c.Now,
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// QuizOutcome is the graded attempt that triggered the completion request.
type QuizOutcome struct {
	ResultID string
	Score    int
	Passed   bool
}

type CompleteLessonRequest struct {
	LessonID string
	UserID   string
	Outcome  *QuizOutcome
}

type Completion struct {
	Status Status
	// Score is the prior passing score when the quiz was already passed, or the outcome score otherwise.
	Score int
	// Completed is the stored completion of the lesson for the user.
	Completed bool
	Progress  *domain.LessonProgress
}

// CompleteLesson marks a lesson completed when its required quiz allows it.
//
// A lesson without a quiz, or whose quiz is optional, completes right away. A learner who already passed the
// quiz in an earlier attempt gets that score back and nothing is written. Otherwise the outcome of the attempt
// decides: no attempt asks for the quiz, a failed one asks for a retake, a passed one completes the lesson.
func (g *Gate) CompleteLesson(ctx context.Context, req CompleteLessonRequest) (*Completion, error) {
	l, err := g.store.Lesson(ctx, req.LessonID)
	if err != nil {
		return nil, err
	}

	def, err := g.quizzes.LoadQuizForLesson(ctx, req.LessonID)
	if err != nil {
		return nil, err
	}

	if def == nil || !def.Quiz.IsRequired {
		return g.complete(ctx, req, 0)
	}

	prior, err := g.quizzes.FirstPassingResult(ctx, def.Quiz.QuizID, req.UserID)
	if err != nil {
		return nil, err
	}
	if prior != nil && (req.Outcome == nil || prior.ResultID != req.Outcome.ResultID) {
		done, err := g.store.Completed(ctx, l.CourseID, req.UserID)
		if err != nil {
			return nil, err
		}
		return &Completion{Status: StatusAlreadyPassed, Score: prior.Score, Completed: done[req.LessonID]}, nil
	}

	switch {
	case req.Outcome == nil:
		return &Completion{Status: StatusQuizRequired}, nil
	case !req.Outcome.Passed:
		return &Completion{Status: StatusRetakeRequired, Score: req.Outcome.Score}, nil
	}

	return g.complete(ctx, req, req.Outcome.Score)
}

func (g *Gate) complete(ctx context.Context, req CompleteLessonRequest, score int) (*Completion, error) {
	p, err := g.store.MarkCompleted(ctx, req.LessonID, req.UserID, g.now().UTC())
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "progress: lesson completed",
		"lesson_id", req.LessonID,
		"user_id", req.UserID,
	)

	g.eb.Publish(ctx, domain.EventLessonCompleted{
		Progress: *p,
	})

	return &Completion{Status: StatusCompleted, Score: score, Completed: true, Progress: p}, nil
}

type LessonRequest struct {
	LessonID string
	UserID   string
}

func (g *Gate) LessonCompleted(ctx context.Context, req LessonRequest) (bool, error) {
	l, err := g.store.Lesson(ctx, req.LessonID)
	if err != nil {
		return false, err
	}

	done, err := g.store.Completed(ctx, l.CourseID, req.UserID)
	if err != nil {
		return false, err
	}
	return done[req.LessonID], nil
}

type CourseProgressRequest struct {
	CourseID string
	UserID   string
}

// CourseProgress maps every lesson of a course to whether the user completed it.
func (g *Gate) CourseProgress(ctx context.Context, req CourseProgressRequest) (map[string]bool, error) {
	lessons, err := g.store.CourseLessons(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	done, err := g.store.Completed(ctx, req.CourseID, req.UserID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		out[l.LessonID] = done[l.LessonID]
	}
	return out, nil
}

type NextLessonResponse struct {
	// Lesson is nil on the last lesson of a course.
	Lesson *domain.Lesson
	// Reachable is false when there is no next lesson or it is locked. A lock is never overridden.
	Reachable bool
	// Completed reports whether the user completed the current lesson.
	Completed bool
}

func (g *Gate) NextLesson(ctx context.Context, req LessonRequest) (*NextLessonResponse, error) {
	cur, err := g.store.Lesson(ctx, req.LessonID)
	if err != nil {
		return nil, err
	}

	lessons, err := g.store.CourseLessons(ctx, cur.CourseID)
	if err != nil {
		return nil, err
	}

	done, err := g.store.Completed(ctx, cur.CourseID, req.UserID)
	if err != nil {
		return nil, err
	}

	resp := &NextLessonResponse{Completed: done[cur.LessonID]}
	for i, l := range lessons {
		if l.LessonID != cur.LessonID || i+1 >= len(lessons) {
			continue
		}
		next := lessons[i+1]
		resp.Lesson = &next
		resp.Reachable = !next.IsLocked
	}

	return resp, nil
}
