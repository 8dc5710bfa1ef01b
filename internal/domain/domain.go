package domain

import (
	"slices"
	"strings"
	"time"
)

// DraftIDPrefix marks ids handed out by the authoring model before a quiz is saved.
const DraftIDPrefix = "draft-"

// IsPersisted reports whether id was assigned by the repository.
func IsPersisted(id string) bool {
	return id != "" && !strings.HasPrefix(id, DraftIDPrefix)
}

// QuestionType is how a learner may answer a question.
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
)

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, TrueFalse:
		return true
	}
	return false
}

// SingleAnswer reports whether exactly one option may be correct and selected.
func (t QuestionType) SingleAnswer() bool {
	return t == SingleChoice || t == TrueFalse
}

// Quiz is attached to at most one lesson.
type Quiz struct {
	QuizID       string `json:"quiz_id"`
	LessonID     string `json:"lesson_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	IsRequired   bool   `json:"is_required"`
	PassingScore int    `json:"passing_score"`
}

type Question struct {
	QuestionID string       `json:"question_id"`
	QuizID     string       `json:"quiz_id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Points     int          `json:"points"`
	Order      int          `json:"order"`
	Options    []Option     `json:"options"`
}

type Option struct {
	OptionID   string `json:"option_id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
	Order      int    `json:"order"`
}

// Definition is a quiz with its questions and their options, the unit that is saved, loaded and graded.
type Definition struct {
	Quiz      Quiz       `json:"quiz"`
	Questions []Question `json:"questions"`
}

// TotalPoints is the sum of all question points.
func (d Definition) TotalPoints() int {
	var n int
	for _, q := range d.Questions {
		n += q.Points
	}
	return n
}

// Question returns the question with the given id.
func (d Definition) Question(id string) (Question, bool) {
	for _, q := range d.Questions {
		if q.QuestionID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Sorted returns a copy with questions and options in presentation order.
// Equal orders keep their insertion order.
func (d Definition) Sorted() Definition {
	out := Definition{Quiz: d.Quiz, Questions: slices.Clone(d.Questions)}
	slices.SortStableFunc(out.Questions, func(a, b Question) int { return a.Order - b.Order })
	for i := range out.Questions {
		out.Questions[i].Options = slices.Clone(out.Questions[i].Options)
		slices.SortStableFunc(out.Questions[i].Options, func(a, b Option) int { return a.Order - b.Order })
	}
	return out
}

// Option returns the option with the given id if it belongs to the question.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.OptionID == id {
			return o, true
		}
	}
	return Option{}, false
}

// CorrectCount is the number of options flagged correct.
func (q Question) CorrectCount() int {
	var n int
	for _, o := range q.Options {
		if o.IsCorrect {
			n++
		}
	}
	return n
}

// Submission is one selected option for one question.
type Submission struct {
	QuestionID       string `json:"question_id"`
	SelectedOptionID string `json:"selected_option_id"`
}

// Result is one graded quiz attempt. It is never updated after creation.
type Result struct {
	ResultID    string    `json:"result_id"`
	QuizID      string    `json:"quiz_id"`
	UserID      string    `json:"user_id"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	CompletedAt time.Time `json:"completed_at"`
}

// Answer is the audit row of one selected option within a result.
type Answer struct {
	AnswerID         string `json:"answer_id"`
	ResultID         string `json:"result_id"`
	QuestionID       string `json:"question_id"`
	SelectedOptionID string `json:"selected_option_id"`
	IsCorrect        bool   `json:"is_correct"`
}

// Lesson is owned by the course catalogue, the progression gate only reads it.
type Lesson struct {
	LessonID string `json:"lesson_id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
	IsLocked bool   `json:"is_locked"`
}

type LessonProgress struct {
	LessonID   string    `json:"lesson_id"`
	UserID     string    `json:"user_id"`
	Completed  bool      `json:"completed"`
	UpdateTime time.Time `json:"update_time"`
}
