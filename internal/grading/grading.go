// Package grading computes quiz scores. Everything here is pure: the same definition and submissions always
// produce the same outcome.
package grading

import (
	"github.com/shopspring/decimal"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// GradedAnswer is the audit record of one submitted option.
type GradedAnswer struct {
	QuestionID       string
	SelectedOptionID string
	IsCorrect        bool
}

// Outcome is the result of grading one attempt.
type Outcome struct {
	Score        int
	Passed       bool
	EarnedPoints int
	TotalPoints  int
	Answers      []GradedAnswer
}

// Grade scores submitted answers against a quiz definition.
//
// A question without any submitted answer earns nothing. A question earns its full points as soon as one of
// its submitted options is correct: extra wrong selections on a multiple choice question are not penalised
// and selecting every correct option is not required. Single choice and true/false questions only ever carry
// one selection, so this is an exact match for them.
//
// Submissions for questions outside the quiz are dropped; repeated submissions of the same option are kept once.
func Grade(def domain.Definition, submitted []domain.Submission) Outcome {
	def = def.Sorted()

	byQuestion := make(map[string][]string, len(def.Questions))
	seen := make(map[domain.Submission]struct{}, len(submitted))
	for _, s := range submitted {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		byQuestion[s.QuestionID] = append(byQuestion[s.QuestionID], s.SelectedOptionID)
	}

	var out Outcome
	for _, q := range def.Questions {
		out.TotalPoints += q.Points

		selected := byQuestion[q.QuestionID]
		if len(selected) == 0 {
			continue
		}

		credited := false
		for _, optionID := range selected {
			o, ok := q.Option(optionID)
			correct := ok && o.IsCorrect
			credited = credited || correct

			out.Answers = append(out.Answers, GradedAnswer{
				QuestionID:       q.QuestionID,
				SelectedOptionID: optionID,
				IsCorrect:        correct,
			})
		}

		if credited {
			out.EarnedPoints += q.Points
		}
	}

	out.Score = Score(out.EarnedPoints, out.TotalPoints)
	out.Passed = out.TotalPoints > 0 && out.Score >= def.Quiz.PassingScore
	return out
}

// Score is round(100 * earned / total), halves rounded up, or 0 for an empty quiz.
func Score(earned, total int) int {
	if total <= 0 {
		return 0
	}

	s := decimal.NewFromInt(int64(earned)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(0).
		IntPart()

	return int(min(max(s, 0), 100))
}
