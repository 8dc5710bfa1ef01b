// Package quiztest provides an in-memory quiz repository for tests.
package quiztest

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
	"github.com/Ricardolombre/acdn-elearning/internal/quiz"
)

// Memory mirrors the behaviour of quiz.Repository without a database.
// Set Err to make every call fail with a storage error.
type Memory struct {
	mu      sync.Mutex
	quizzes map[string]domain.Definition
	results []domain.Result
	answers map[string][]domain.Answer

	Err error
}

func NewMemory() *Memory {
	return &Memory{
		quizzes: make(map[string]domain.Definition),
		answers: make(map[string][]domain.Answer),
	}
}

func (m *Memory) fail(op string) error {
	if m.Err != nil {
		return errors.Storage(op, m.Err)
	}
	return nil
}

func (m *Memory) SaveQuiz(_ context.Context, def domain.Definition) (*domain.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("save quiz"); err != nil {
		return nil, err
	}

	def = def.Sorted()
	if domain.IsPersisted(def.Quiz.QuizID) {
		if _, ok := m.quizzes[def.Quiz.QuizID]; !ok {
			return nil, errors.NotFound("quiz %q not found", def.Quiz.QuizID)
		}
	} else {
		def.Quiz.QuizID = newID()
	}

	for id, other := range m.quizzes {
		if id != def.Quiz.QuizID && other.Quiz.LessonID == def.Quiz.LessonID {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("lesson %q already has a quiz", def.Quiz.LessonID))
		}
	}

	for i := range def.Questions {
		q := &def.Questions[i]
		q.QuestionID = newID()
		q.QuizID = def.Quiz.QuizID
		for j := range q.Options {
			q.Options[j].OptionID = newID()
			q.Options[j].QuestionID = q.QuestionID
		}
	}

	m.quizzes[def.Quiz.QuizID] = def
	out := def.Sorted()
	return &out, nil
}

func (m *Memory) LoadQuizForLesson(_ context.Context, lessonID string) (*domain.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("load quiz for lesson"); err != nil {
		return nil, err
	}

	for _, def := range m.quizzes {
		if def.Quiz.LessonID == lessonID {
			out := def.Sorted()
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) LoadQuiz(_ context.Context, quizID string) (*domain.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("load quiz"); err != nil {
		return nil, err
	}

	def, ok := m.quizzes[quizID]
	if !ok {
		return nil, errors.NotFound("quiz %q not found", quizID)
	}
	out := def.Sorted()
	return &out, nil
}

func (m *Memory) DeleteQuiz(_ context.Context, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("delete quiz"); err != nil {
		return err
	}

	if _, ok := m.quizzes[quizID]; !ok {
		return errors.NotFound("quiz %q not found", quizID)
	}
	delete(m.quizzes, quizID)
	return nil
}

func (m *Memory) RecordResult(_ context.Context, req quiz.RecordResultRequest) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("record result"); err != nil {
		return nil, err
	}

	res := domain.Result{
		ResultID:    newID(),
		QuizID:      req.QuizID,
		UserID:      req.UserID,
		Score:       req.Score,
		Passed:      req.Passed,
		CompletedAt: req.CompletedAt,
	}
	m.results = append(m.results, res)

	answers := make([]domain.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		a.AnswerID = newID()
		a.ResultID = res.ResultID
		answers = append(answers, a)
	}
	m.answers[res.ResultID] = answers

	return &res, nil
}

func (m *Memory) LatestResult(ctx context.Context, quizID, userID string) (*domain.Result, error) {
	rs, err := m.ListResults(ctx, quizID, userID)
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return &rs[0], nil
}

func (m *Memory) FirstPassingResult(ctx context.Context, quizID, userID string) (*domain.Result, error) {
	rs, err := m.ListResults(ctx, quizID, userID)
	if err != nil {
		return nil, err
	}

	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].Passed {
			return &rs[i], nil
		}
	}
	return nil, nil
}

// ListResults returns results newest first. Results recorded at the same time keep the most recent call first.
func (m *Memory) ListResults(_ context.Context, quizID, userID string) ([]domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("list results"); err != nil {
		return nil, err
	}

	var out []domain.Result
	for i := len(m.results) - 1; i >= 0; i-- {
		r := m.results[i]
		if r.QuizID == quizID && r.UserID == userID {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Result) int { return b.CompletedAt.Compare(a.CompletedAt) })
	return out, nil
}

func (m *Memory) ResultAnswers(_ context.Context, resultID string) ([]domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("result answers"); err != nil {
		return nil, err
	}
	return slices.Clone(m.answers[resultID]), nil
}

// AddResult stores a result directly, bypassing grading.
func (m *Memory) AddResult(r domain.Result) domain.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ResultID == "" {
		r.ResultID = newID()
	}
	m.results = append(m.results, r)
	return r
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
