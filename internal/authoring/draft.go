// Package authoring is the instructor side of a quiz: an editable draft that keeps its questions and options
// consistent while they are being edited and produces a validated definition ready to be saved.
package authoring

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

const (
	DefaultTitle        = "Autoévaluation"
	DefaultDescription  = "Testez vos connaissances sur cette leçon"
	DefaultPassingScore = 70

	DefaultTrueLabel  = "Vrai"
	DefaultFalseLabel = "Faux"
)

// Draft is a quiz being edited. It is not safe for concurrent use.
type Draft struct {
	quiz      domain.Quiz
	questions []domain.Question

	trueLabel  string
	falseLabel string
}

type Option func(*Draft)

// WithTrueFalseLabels sets the option labels generated for true/false questions.
func WithTrueFalseLabels(trueLabel, falseLabel string) Option {
	return func(d *Draft) {
		if trueLabel != "" && falseLabel != "" {
			d.trueLabel, d.falseLabel = trueLabel, falseLabel
		}
	}
}

func newDraft(opts []Option) *Draft {
	d := &Draft{
		trueLabel:  DefaultTrueLabel,
		falseLabel: DefaultFalseLabel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDraft starts a quiz for a lesson with the editor defaults and one question.
func NewDraft(lessonID string, opts ...Option) *Draft {
	d := newDraft(opts)
	d.quiz = domain.Quiz{
		QuizID:       newID(),
		LessonID:     lessonID,
		Title:        DefaultTitle,
		Description:  DefaultDescription,
		PassingScore: DefaultPassingScore,
	}
	d.AddQuestion()
	return d
}

// FromDefinition opens a saved quiz for editing. Persisted ids are kept.
func FromDefinition(def domain.Definition, opts ...Option) *Draft {
	d := newDraft(opts)
	def = def.Sorted()
	d.quiz = def.Quiz
	d.questions = def.Questions
	return d
}

// Snapshot returns a copy of the draft as it stands, valid or not.
func (d *Draft) Snapshot() domain.Definition {
	return domain.Definition{Quiz: d.quiz, Questions: d.questions}.Sorted()
}

// AddQuestion appends a one point single choice question with two options, the first one correct.
func (d *Draft) AddQuestion() string {
	q := domain.Question{
		QuestionID: newID(),
		QuizID:     d.quiz.QuizID,
		Type:       domain.SingleChoice,
		Points:     1,
		Order:      nextQuestionOrder(d.questions),
	}
	q.Options = []domain.Option{
		{OptionID: newID(), QuestionID: q.QuestionID, IsCorrect: true, Order: 1},
		{OptionID: newID(), QuestionID: q.QuestionID, Order: 2},
	}

	d.questions = append(d.questions, q)
	return q.QuestionID
}

// DeleteQuestion removes a question and its options. The last question cannot be deleted.
func (d *Draft) DeleteQuestion(id string) error {
	sortQuestions(d.questions)
	i, err := d.questionIndex(id)
	if err != nil {
		return err
	}

	if len(d.questions) <= 1 {
		return errors.Validation(errors.Violation{Field: "questions", Message: "at least one question is required"})
	}

	d.questions = slices.Delete(d.questions, i, i+1)
	renumberQuestions(d.questions)
	return nil
}

// MoveQuestion moves a question to index and renumbers every question from 1.
func (d *Draft) MoveQuestion(id string, index int) error {
	sortQuestions(d.questions)
	i, err := d.questionIndex(id)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(d.questions) {
		return errors.Validation(errors.Violation{
			Field:   "index",
			Message: fmt.Sprintf("must be between 0 and %d", len(d.questions)-1),
		})
	}

	q := d.questions[i]
	d.questions = slices.Insert(slices.Delete(d.questions, i, i+1), index, q)
	renumberQuestions(d.questions)
	return nil
}

// QuizUpdate holds the editable quiz settings.
type QuizUpdate struct {
	Title        string
	Description  string
	IsRequired   bool
	PassingScore int
}

func (d *Draft) UpdateQuiz(u QuizUpdate) error {
	if u.PassingScore < 0 || u.PassingScore > 100 {
		return errors.Validation(errors.Violation{Field: "passing_score", Message: "must be between 0 and 100"})
	}

	d.quiz.Title = u.Title
	d.quiz.Description = u.Description
	d.quiz.IsRequired = u.IsRequired
	d.quiz.PassingScore = u.PassingScore
	return nil
}

func (d *Draft) UpdateQuestion(id, text string, points int) error {
	q, err := d.question(id)
	if err != nil {
		return err
	}

	if points < 1 {
		return errors.Validation(errors.Violation{Field: "points", Message: "must be at least 1"})
	}

	q.Text = text
	q.Points = points
	return nil
}

// ChangeQuestionType converts a question and reshapes its options for the new type.
//
// A true/false question always gets exactly two options labelled with the true and false labels. The false
// side stays correct only if a previous option carrying the false label was the correct one. Converting to a
// single answer type keeps the first correct option and clears the others.
func (d *Draft) ChangeQuestionType(id string, typ domain.QuestionType) error {
	q, err := d.question(id)
	if err != nil {
		return err
	}

	if !typ.Valid() {
		return errors.Validation(errors.Violation{Field: "type", Message: fmt.Sprintf("unknown question type %q", typ)})
	}

	if q.Type == typ {
		return nil
	}
	q.Type = typ

	if typ == domain.TrueFalse {
		q.Options = d.trueFalseOptions(q)
		return nil
	}

	if typ.SingleAnswer() {
		keepFirstCorrect(q)
	}
	return nil
}

func (d *Draft) trueFalseOptions(q *domain.Question) []domain.Option {
	var trueCorrect, falseCorrect bool
	for _, o := range q.Options {
		if !o.IsCorrect {
			continue
		}
		switch {
		case strings.EqualFold(strings.TrimSpace(o.Text), d.trueLabel):
			trueCorrect = true
		case strings.EqualFold(strings.TrimSpace(o.Text), d.falseLabel):
			falseCorrect = true
		}
	}

	falseSide := falseCorrect && !trueCorrect
	return []domain.Option{
		{OptionID: newID(), QuestionID: q.QuestionID, Text: d.trueLabel, IsCorrect: !falseSide, Order: 1},
		{OptionID: newID(), QuestionID: q.QuestionID, Text: d.falseLabel, IsCorrect: falseSide, Order: 2},
	}
}

// AddOption appends an empty incorrect option. True/false questions have a fixed pair of options.
func (d *Draft) AddOption(questionID string) (string, error) {
	q, err := d.question(questionID)
	if err != nil {
		return "", err
	}

	if q.Type == domain.TrueFalse {
		return "", errors.Validation(errors.Violation{Field: "options", Message: "true/false questions have fixed options"})
	}

	o := domain.Option{
		OptionID:   newID(),
		QuestionID: q.QuestionID,
		Order:      nextOptionOrder(q.Options),
	}
	q.Options = append(q.Options, o)
	return o.OptionID, nil
}

// DeleteOption removes an option, keeping at least two. When the removed option was the only correct answer of
// a single answer question, the first remaining option becomes correct.
func (d *Draft) DeleteOption(questionID, optionID string) error {
	q, err := d.question(questionID)
	if err != nil {
		return err
	}

	i, err := optionIndex(q, optionID)
	if err != nil {
		return err
	}

	if len(q.Options) <= 2 {
		return errors.Validation(errors.Violation{Field: "options", Message: "at least two options are required"})
	}

	wasCorrect := q.Options[i].IsCorrect
	q.Options = slices.Delete(q.Options, i, i+1)
	slices.SortStableFunc(q.Options, func(a, b domain.Option) int { return a.Order - b.Order })
	for j := range q.Options {
		q.Options[j].Order = j + 1
	}

	if wasCorrect && q.Type.SingleAnswer() && q.CorrectCount() == 0 {
		q.Options[0].IsCorrect = true
	}
	return nil
}

func (d *Draft) UpdateOption(questionID, optionID, text string) error {
	q, err := d.question(questionID)
	if err != nil {
		return err
	}

	i, err := optionIndex(q, optionID)
	if err != nil {
		return err
	}

	q.Options[i].Text = text
	return nil
}

// ToggleOptionCorrect marks an option correct or not.
//
// On single choice and true/false questions marking an option correct clears its siblings, and the only correct
// option cannot be unmarked. Multiple choice options toggle independently.
func (d *Draft) ToggleOptionCorrect(questionID, optionID string, value bool) error {
	q, err := d.question(questionID)
	if err != nil {
		return err
	}

	i, err := optionIndex(q, optionID)
	if err != nil {
		return err
	}

	if !q.Type.SingleAnswer() {
		q.Options[i].IsCorrect = value
		return nil
	}

	if !value {
		if q.Options[i].IsCorrect && q.CorrectCount() == 1 {
			return errors.Validation(errors.Violation{
				Field:   "options",
				Message: "exactly one correct option is required",
			})
		}
		q.Options[i].IsCorrect = false
		return nil
	}

	for j := range q.Options {
		q.Options[j].IsCorrect = j == i
	}
	return nil
}

// Validate lists every rule the draft breaks. An empty list means the draft can be saved.
func (d *Draft) Validate() []errors.Violation {
	var vs []errors.Violation
	add := func(field, format string, args ...any) {
		vs = append(vs, errors.Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.quiz.Title) == "" {
		add("title", "title is required")
	}
	if d.quiz.PassingScore < 0 || d.quiz.PassingScore > 100 {
		add("passing_score", "must be between 0 and 100")
	}
	if len(d.questions) == 0 {
		add("questions", "at least one question is required")
	}

	for i, q := range d.Snapshot().Questions {
		field := fmt.Sprintf("questions[%d]", i)

		if strings.TrimSpace(q.Text) == "" {
			add(field+".text", "question %d has no text", i+1)
		}
		if !q.Type.Valid() {
			add(field+".type", "unknown question type %q", q.Type)
		}
		if q.Points < 1 {
			add(field+".points", "must be at least 1")
		}

		if len(q.Options) == 0 {
			add(field+".options", "question %d has no options", i+1)
			continue
		}

		switch n := q.CorrectCount(); {
		case n == 0:
			add(field+".options", "question %d needs at least one correct option", i+1)
		case n > 1 && q.Type.SingleAnswer():
			add(field+".options", "question %d can only have one correct option", i+1)
		}
	}

	return vs
}

// Definition returns the quiz ready to be saved, or a validation error listing every broken rule.
func (d *Draft) Definition() (domain.Definition, error) {
	if vs := d.Validate(); len(vs) > 0 {
		return domain.Definition{}, errors.Validation(vs...)
	}

	def := d.Snapshot()
	for i := range def.Questions {
		def.Questions[i].QuizID = def.Quiz.QuizID
	}
	return def, nil
}

func (d *Draft) question(id string) (*domain.Question, error) {
	i, err := d.questionIndex(id)
	if err != nil {
		return nil, err
	}
	return &d.questions[i], nil
}

func (d *Draft) questionIndex(id string) (int, error) {
	i := slices.IndexFunc(d.questions, func(q domain.Question) bool { return q.QuestionID == id })
	if i < 0 {
		return 0, errors.NotFound("question %q not found", id)
	}
	return i, nil
}

func optionIndex(q *domain.Question, id string) (int, error) {
	i := slices.IndexFunc(q.Options, func(o domain.Option) bool { return o.OptionID == id })
	if i < 0 {
		return 0, errors.NotFound("option %q not found in question %q", id, q.QuestionID)
	}
	return i, nil
}

func keepFirstCorrect(q *domain.Question) {
	if len(q.Options) == 0 {
		return
	}

	slices.SortStableFunc(q.Options, func(a, b domain.Option) int { return a.Order - b.Order })
	first := slices.IndexFunc(q.Options, func(o domain.Option) bool { return o.IsCorrect })
	if first < 0 {
		first = 0
	}
	for i := range q.Options {
		q.Options[i].IsCorrect = i == first
	}
}

func sortQuestions(qs []domain.Question) {
	slices.SortStableFunc(qs, func(a, b domain.Question) int { return a.Order - b.Order })
}

func renumberQuestions(qs []domain.Question) {
	for i := range qs {
		qs[i].Order = i + 1
	}
}

func nextQuestionOrder(qs []domain.Question) int {
	n := 0
	for _, q := range qs {
		n = max(n, q.Order)
	}
	return n + 1
}

func nextOptionOrder(os []domain.Option) int {
	n := 0
	for _, o := range os {
		n = max(n, o.Order)
	}
	return n + 1
}

func newID() string {
	return domain.DraftIDPrefix + uuid.NewString()
}
