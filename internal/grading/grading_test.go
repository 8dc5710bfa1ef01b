package grading_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/grading"
)

func TestGrade(t *testing.T) {
	type (
		inputs struct {
			def       domain.Definition
			submitted []domain.Submission
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out grading.Outcome)
	}{
		"single choice answered correctly should score 100 and pass": {
			arrange: func() inputs {
				return inputs{
					def:       quiz(50, question("q1", domain.SingleChoice, 1, true, false)),
					submitted: []domain.Submission{{QuestionID: "q1", SelectedOptionID: "q1-o1"}},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 100, out.Score)
				assert.True(t, out.Passed)
				assert.Equal(t, []grading.GradedAnswer{{QuestionID: "q1", SelectedOptionID: "q1-o1", IsCorrect: true}}, out.Answers)
			},
		},

		"single choice answered incorrectly should score 0 and fail": {
			arrange: func() inputs {
				return inputs{
					def:       quiz(50, question("q1", domain.SingleChoice, 1, true, false)),
					submitted: []domain.Submission{{QuestionID: "q1", SelectedOptionID: "q1-o2"}},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 0, out.Score)
				assert.False(t, out.Passed)
				assert.Equal(t, []grading.GradedAnswer{{QuestionID: "q1", SelectedOptionID: "q1-o2", IsCorrect: false}}, out.Answers)
			},
		},

		"half the points at passing score 50 should pass on the boundary": {
			arrange: func() inputs {
				return inputs{
					def: quiz(50,
						question("q1", domain.SingleChoice, 1, true, false),
						question("q2", domain.TrueFalse, 1, false, true),
					),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q1-o1"},
						{QuestionID: "q2", SelectedOptionID: "q2-o1"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 50, out.Score)
				assert.True(t, out.Passed)
			},
		},

		"multiple choice with one correct and one wrong selection should be credited in full": {
			arrange: func() inputs {
				return inputs{
					def: quiz(70, question("q1", domain.MultipleChoice, 2, true, false, false)),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q1-o1"},
						{QuestionID: "q1", SelectedOptionID: "q1-o2"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 2, out.EarnedPoints)
				assert.Equal(t, 2, out.TotalPoints)
				assert.Equal(t, 100, out.Score)
				assert.Equal(t, []grading.GradedAnswer{
					{QuestionID: "q1", SelectedOptionID: "q1-o1", IsCorrect: true},
					{QuestionID: "q1", SelectedOptionID: "q1-o2", IsCorrect: false},
				}, out.Answers)
			},
		},

		"multiple choice with only wrong selections should earn nothing": {
			arrange: func() inputs {
				return inputs{
					def: quiz(70, question("q1", domain.MultipleChoice, 2, true, false, false)),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q1-o2"},
						{QuestionID: "q1", SelectedOptionID: "q1-o3"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 0, out.EarnedPoints)
				assert.Len(t, out.Answers, 2)
			},
		},

		"unanswered question should weigh in the total but earn nothing": {
			arrange: func() inputs {
				return inputs{
					def: quiz(60,
						question("q1", domain.SingleChoice, 3, true, false),
						question("q2", domain.SingleChoice, 1, true, false),
					),
					submitted: []domain.Submission{{QuestionID: "q2", SelectedOptionID: "q2-o1"}},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 25, out.Score)
				assert.False(t, out.Passed)
				assert.Len(t, out.Answers, 1)
			},
		},

		"points should weight questions": {
			arrange: func() inputs {
				return inputs{
					def: quiz(70,
						question("q1", domain.SingleChoice, 1, true, false),
						question("q2", domain.SingleChoice, 2, true, false),
					),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q1-o2"},
						{QuestionID: "q2", SelectedOptionID: "q2-o1"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 67, out.Score, "2/3 should round to 67")
				assert.False(t, out.Passed)
			},
		},

		"empty quiz should score 0 and never pass": {
			arrange: func() inputs {
				return inputs{def: quiz(0)}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 0, out.Score)
				assert.False(t, out.Passed)
			},
		},

		"submissions for unknown questions should be dropped": {
			arrange: func() inputs {
				return inputs{
					def: quiz(50, question("q1", domain.SingleChoice, 1, true, false)),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q1-o1"},
						{QuestionID: "zz", SelectedOptionID: "zz-o1"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 100, out.Score)
				assert.Len(t, out.Answers, 1)
			},
		},

		"option from another question should be recorded as incorrect": {
			arrange: func() inputs {
				return inputs{
					def: quiz(50,
						question("q1", domain.SingleChoice, 1, true, false),
						question("q2", domain.SingleChoice, 1, true, false),
					),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q2-o1"},
						{QuestionID: "q2", SelectedOptionID: "q2-o1"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Equal(t, 50, out.Score)
				assert.False(t, out.Answers[0].IsCorrect)
				assert.True(t, out.Answers[1].IsCorrect)
			},
		},

		"duplicated submission should be counted once": {
			arrange: func() inputs {
				return inputs{
					def: quiz(50, question("q1", domain.MultipleChoice, 1, true, true)),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q1-o1"},
						{QuestionID: "q1", SelectedOptionID: "q1-o1"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				assert.Len(t, out.Answers, 1)
			},
		},

		"answers should follow question order": {
			arrange: func() inputs {
				q1 := question("q1", domain.SingleChoice, 1, true, false)
				q1.Order = 2
				q2 := question("q2", domain.SingleChoice, 1, true, false)
				q2.Order = 1
				return inputs{
					def: quiz(50, q1, q2),
					submitted: []domain.Submission{
						{QuestionID: "q1", SelectedOptionID: "q1-o1"},
						{QuestionID: "q2", SelectedOptionID: "q2-o1"},
					},
				}
			},
			assert: func(t *testing.T, out grading.Outcome) {
				require.Len(t, out.Answers, 2)
				assert.Equal(t, "q2", out.Answers[0].QuestionID)
				assert.Equal(t, "q1", out.Answers[1].QuestionID)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			tt.assert(t, grading.Grade(in.def, in.submitted))
		})
	}
}

func TestScore_Rounding(t *testing.T) {
	tests := []struct {
		earned, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{3, 3, 100},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.earned, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, grading.Score(tt.earned, tt.total))
		})
	}
}

func TestGrade_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for i := range 500 {
		def := randomQuiz(r)
		submitted := randomSubmissions(r, def)
		out := grading.Grade(def, submitted)

		require.GreaterOrEqual(t, out.Score, 0, "iteration %d", i)
		require.LessOrEqual(t, out.Score, 100, "iteration %d", i)
		require.Equal(t, out.Score >= def.Quiz.PassingScore && out.TotalPoints > 0, out.Passed, "iteration %d", i)
		require.Equal(t, def.TotalPoints(), out.TotalPoints, "iteration %d", i)
		if out.TotalPoints > 0 {
			require.Equal(t, grading.Score(out.EarnedPoints, out.TotalPoints), out.Score, "iteration %d", i)
		} else {
			require.False(t, out.Passed, "iteration %d", i)
		}

		again := grading.Grade(def, submitted)
		require.Equal(t, out, again, "grading should be deterministic")
	}
}

func quiz(passing int, qs ...domain.Question) domain.Definition {
	for i := range qs {
		if qs[i].Order == 0 {
			qs[i].Order = i + 1
		}
		qs[i].QuizID = "quiz"
	}
	return domain.Definition{
		Quiz:      domain.Quiz{QuizID: "quiz", LessonID: "lesson", Title: "Quiz", PassingScore: passing},
		Questions: qs,
	}
}

func question(id string, typ domain.QuestionType, points int, correct ...bool) domain.Question {
	q := domain.Question{QuestionID: id, Text: "Question " + id, Type: typ, Points: points}
	for i, c := range correct {
		q.Options = append(q.Options, domain.Option{
			OptionID:   fmt.Sprintf("%s-o%d", id, i+1),
			QuestionID: id,
			Text:       fmt.Sprintf("Option %d", i+1),
			IsCorrect:  c,
			Order:      i + 1,
		})
	}
	return q
}

func randomQuiz(r *rand.Rand) domain.Definition {
	types := []domain.QuestionType{domain.SingleChoice, domain.MultipleChoice, domain.TrueFalse}

	n := r.IntN(6)
	qs := make([]domain.Question, 0, n)
	for i := range n {
		typ := types[r.IntN(len(types))]
		opts := 2 + r.IntN(3)
		correct := make([]bool, opts)
		if typ == domain.MultipleChoice {
			for j := range correct {
				correct[j] = r.IntN(2) == 0
			}
		}
		correct[r.IntN(opts)] = true
		qs = append(qs, question(fmt.Sprintf("q%d", i), typ, 1+r.IntN(5), correct...))
	}

	return quiz(r.IntN(101), qs...)
}

func randomSubmissions(r *rand.Rand, def domain.Definition) []domain.Submission {
	var out []domain.Submission
	for _, q := range def.Questions {
		if r.IntN(4) == 0 {
			continue
		}
		picks := 1
		if q.Type == domain.MultipleChoice {
			picks = 1 + r.IntN(len(q.Options))
		}
		for range picks {
			o := q.Options[r.IntN(len(q.Options))]
			out = append(out, domain.Submission{QuestionID: q.QuestionID, SelectedOptionID: o.OptionID})
		}
	}
	return out
}
