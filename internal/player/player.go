// Package player drives a learner through a quiz: one question at a time, collecting selections until the
// attempt is submitted, then showing the result and offering a retake when it failed.
package player

import (
	"encoding/json"
	stderrors "errors"
	"slices"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

type State string

const (
	StateLoading    State = "loading"
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateResults    State = "results"
)

// ResumePolicy decides which prior result sends a returning learner straight to the results screen.
type ResumePolicy string

const (
	// ResumeOnAnyResult shows the last result, passed or failed, until the learner asks for a retake.
	ResumeOnAnyResult ResumePolicy = "any_result"
	// ResumeOnPassingResult only shows a passing result. After a failure a fresh attempt starts.
	ResumeOnPassingResult ResumePolicy = "passing_result"
)

func (p ResumePolicy) Valid() bool {
	return p == ResumeOnAnyResult || p == ResumeOnPassingResult
}

// ErrSubmitRequired is returned by Next on the last question: the attempt has to be submitted instead.
var ErrSubmitRequired = stderrors.New("player: submit required")

// Player is the state of one attempt. The zero value is loading. It is not safe for concurrent use.
type Player struct {
	def        domain.Definition
	state      State
	cursor     int
	selections map[string][]string
	result     *domain.Result
}

// New starts a player on a loaded quiz. With a prior result matching the policy the player opens on the results.
func New(def domain.Definition, prior *domain.Result, policy ResumePolicy) *Player {
	p := &Player{
		def:        def.Sorted(),
		state:      StateInProgress,
		selections: make(map[string][]string),
	}

	if prior != nil && (policy != ResumeOnPassingResult || prior.Passed) {
		res := *prior
		p.state = StateResults
		p.result = &res
	}

	return p
}

func (p *Player) State() State {
	if p.state == "" {
		return StateLoading
	}
	return p.state
}

func (p *Player) Definition() domain.Definition { return p.def }

// Busy reports a submission in flight. Every transition is refused until it completes or fails.
func (p *Player) Busy() bool {
	return p.state == StateSubmitting
}

func (p *Player) Result() *domain.Result {
	return p.result
}

// Select records an option for a question. Single choice and true/false questions keep the last selection,
// multiple choice questions toggle it.
func (p *Player) Select(questionID, optionID string) error {
	if err := p.expect(StateInProgress); err != nil {
		return err
	}

	q, ok := p.def.Question(questionID)
	if !ok {
		return errors.Validation(errors.Violation{Field: "question_id", Message: "question is not part of this quiz"})
	}
	if _, ok := q.Option(optionID); !ok {
		return errors.Validation(errors.Violation{Field: "option_id", Message: "option does not belong to the question"})
	}

	if q.Type.SingleAnswer() {
		p.selections[questionID] = []string{optionID}
		return nil
	}

	sel := p.selections[questionID]
	if i := slices.Index(sel, optionID); i >= 0 {
		sel = slices.Delete(sel, i, i+1)
	} else {
		sel = append(sel, optionID)
	}

	if len(sel) == 0 {
		delete(p.selections, questionID)
		return nil
	}
	p.selections[questionID] = sel
	return nil
}

// Next moves to the following question once the current one is answered.
func (p *Player) Next() error {
	if err := p.expect(StateInProgress); err != nil {
		return err
	}

	if len(p.def.Questions) == 0 {
		return ErrSubmitRequired
	}

	cur := p.def.Questions[p.cursor]
	if len(p.selections[cur.QuestionID]) == 0 {
		return errors.Incomplete(cur.QuestionID)
	}

	if p.cursor == len(p.def.Questions)-1 {
		return ErrSubmitRequired
	}

	p.cursor++
	return nil
}

func (p *Player) Previous() error {
	if err := p.expect(StateInProgress); err != nil {
		return err
	}

	if p.cursor > 0 {
		p.cursor--
	}
	return nil
}

// BeginSubmit checks every question is answered and moves to submitting. It returns one submission per selected
// option, in question order then selection order.
func (p *Player) BeginSubmit() ([]domain.Submission, error) {
	if err := p.expect(StateInProgress); err != nil {
		return nil, err
	}

	var (
		missing []string
		out     []domain.Submission
	)
	for _, q := range p.def.Questions {
		sel := p.selections[q.QuestionID]
		if len(sel) == 0 {
			missing = append(missing, q.QuestionID)
			continue
		}
		for _, optionID := range sel {
			out = append(out, domain.Submission{QuestionID: q.QuestionID, SelectedOptionID: optionID})
		}
	}

	if len(missing) > 0 {
		return nil, errors.Incomplete(missing...)
	}

	p.state = StateSubmitting
	return out, nil
}

// CompleteSubmit shows the stored result.
func (p *Player) CompleteSubmit(res domain.Result) error {
	if p.state != StateSubmitting {
		return p.wrongState()
	}

	p.state = StateResults
	p.result = &res
	return nil
}

// FailSubmit returns to the questions with every selection kept.
func (p *Player) FailSubmit() error {
	if p.state != StateSubmitting {
		return p.wrongState()
	}

	p.state = StateInProgress
	return nil
}

// Retake starts over after a failed attempt.
func (p *Player) Retake() error {
	if err := p.expect(StateResults); err != nil {
		return err
	}

	if p.result != nil && p.result.Passed {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("quiz already passed"))
	}

	p.state = StateInProgress
	p.cursor = 0
	p.selections = make(map[string][]string)
	p.result = nil
	return nil
}

func (p *Player) expect(s State) error {
	if p.state == StateSubmitting {
		return errors.New(errors.CodeAborted, errors.WithMessagef("busy"))
	}
	if p.state != s {
		return p.wrongState()
	}
	return nil
}

func (p *Player) wrongState() error {
	return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("quiz is %s", p.State()))
}

// View is what the learner sees. Correct answers are never part of it.
type View struct {
	State        State          `json:"state"`
	QuizID       string         `json:"quiz_id"`
	LessonID     string         `json:"lesson_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	PassingScore int            `json:"passing_score"`
	Position     int            `json:"position"`
	Total        int            `json:"total"`
	Progress     float64        `json:"progress"`
	Question     *QuestionView  `json:"question,omitempty"`
	Selected     []string       `json:"selected,omitempty"`
	Result       *domain.Result `json:"result,omitempty"`
	CanRetake    bool           `json:"can_retake"`
}

type QuestionView struct {
	QuestionID string              `json:"question_id"`
	Text       string              `json:"text"`
	Type       domain.QuestionType `json:"type"`
	Points     int                 `json:"points"`
	Options    []OptionView        `json:"options"`
}

type OptionView struct {
	OptionID string `json:"option_id"`
	Text     string `json:"text"`
}

func (p *Player) View() View {
	v := View{
		State:        p.State(),
		QuizID:       p.def.Quiz.QuizID,
		LessonID:     p.def.Quiz.LessonID,
		Title:        p.def.Quiz.Title,
		Description:  p.def.Quiz.Description,
		PassingScore: p.def.Quiz.PassingScore,
		Total:        len(p.def.Questions),
		Result:       p.result,
		CanRetake:    p.state == StateResults && p.result != nil && !p.result.Passed,
	}

	if v.State == StateResults || v.Total == 0 {
		return v
	}

	q := p.def.Questions[p.cursor]
	v.Position = p.cursor + 1
	v.Progress = float64(v.Position) / float64(v.Total)
	v.Selected = slices.Clone(p.selections[q.QuestionID])
	v.Question = &QuestionView{
		QuestionID: q.QuestionID,
		Text:       q.Text,
		Type:       q.Type,
		Points:     q.Points,
	}
	for _, o := range q.Options {
		v.Question.Options = append(v.Question.Options, OptionView{OptionID: o.OptionID, Text: o.Text})
	}

	return v
}

type snapshot struct {
	Definition domain.Definition   `json:"definition"`
	State      State               `json:"state"`
	Cursor     int                 `json:"cursor"`
	Selections map[string][]string `json:"selections,omitempty"`
	Result     *domain.Result      `json:"result,omitempty"`
}

func (p *Player) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{
		Definition: p.def,
		State:      p.state,
		Cursor:     p.cursor,
		Selections: p.selections,
		Result:     p.result,
	})
}

func (p *Player) UnmarshalJSON(b []byte) error {
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	p.def = s.Definition
	p.state = s.State
	p.cursor = s.Cursor
	p.selections = s.Selections
	p.result = s.Result
	if p.selections == nil {
		p.selections = make(map[string][]string)
	}
	return nil
}
