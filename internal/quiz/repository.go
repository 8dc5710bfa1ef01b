// Package quiz persists quiz definitions, graded results and their answers in Postgres.
package quiz

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

const codeUniqueViolation = "23505"

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Execer
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	DB DB
}

type Repository struct {
	db DB
}

func NewRepository(c Config) *Repository {
	return &Repository{
		db: c.DB,
	}
}

// SaveQuiz stores a definition in one transaction and returns it with the stored ids.
//
// A quiz without a persisted id is inserted. A persisted quiz is updated and all its questions are replaced, so
// question and option ids change on every save.
func (r *Repository) SaveQuiz(ctx context.Context, def domain.Definition) (*domain.Definition, error) {
	def = def.Sorted()

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if domain.IsPersisted(def.Quiz.QuizID) {
			if err := updateQuiz(ctx, tx, def.Quiz); err != nil {
				return err
			}
		} else {
			if err := insertQuiz(ctx, tx, &def.Quiz); err != nil {
				return err
			}
		}

		for i := range def.Questions {
			if err := insertQuestion(ctx, tx, def.Quiz.QuizID, &def.Questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageError("save quiz", err)
	}

	return &def, nil
}

func insertQuiz(ctx context.Context, tx pgx.Tx, q *domain.Quiz) error {
	id, err := newID()
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO quizzes (quiz_id, lesson_id, title, description, is_required, passing_score)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err = tx.Exec(ctx, stmt, id, q.LessonID, q.Title, q.Description, q.IsRequired, q.PassingScore)
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("lesson %q already has a quiz", q.LessonID),
			errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	q.QuizID = id
	return nil
}

func updateQuiz(ctx context.Context, tx pgx.Tx, q domain.Quiz) error {
	const (
		updStmt = `
UPDATE quizzes
SET lesson_id = $2, title = $3, description = $4, is_required = $5, passing_score = $6, update_time = now()
WHERE quiz_id = $1;`
		delStmt = `DELETE FROM quiz_questions WHERE quiz_id = $1;`
	)

	tag, err := tx.Exec(ctx, updStmt, q.QuizID, q.LessonID, q.Title, q.Description, q.IsRequired, q.PassingScore)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("quiz %q not found", q.QuizID)
	}

	if _, err := tx.Exec(ctx, delStmt, q.QuizID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	return nil
}

func insertQuestion(ctx context.Context, tx pgx.Tx, quizID string, q *domain.Question) error {
	id, err := newID()
	if err != nil {
		return err
	}

	const (
		insQuestionStmt = `
INSERT INTO quiz_questions (question_id, quiz_id, question_text, question_type, points, question_order)
VALUES ($1, $2, $3, $4, $5, $6);`
		insOptionStmt = `
INSERT INTO quiz_options (option_id, question_id, option_text, is_correct, option_order)
VALUES ($1, $2, $3, $4, $5);`
	)

	if _, err := tx.Exec(ctx, insQuestionStmt, id, quizID, q.Text, q.Type, q.Points, q.Order); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	q.QuestionID = id
	q.QuizID = quizID

	for i := range q.Options {
		o := &q.Options[i]
		oid, err := newID()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, insOptionStmt, oid, id, o.Text, o.IsCorrect, o.Order); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
		o.OptionID = oid
		o.QuestionID = id
	}
	return nil
}

// LoadQuizForLesson returns the quiz attached to a lesson, or nil when the lesson has none.
func (r *Repository) LoadQuizForLesson(ctx context.Context, lessonID string) (*domain.Definition, error) {
	const stmt = `
SELECT quiz_id, lesson_id, title, description, is_required, passing_score
FROM quizzes
WHERE lesson_id = $1;`

	def, err := r.loadDefinition(ctx, stmt, lessonID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load quiz for lesson", err)
	}

	return def, nil
}

// LoadQuiz returns a quiz by id.
func (r *Repository) LoadQuiz(ctx context.Context, quizID string) (*domain.Definition, error) {
	const stmt = `
SELECT quiz_id, lesson_id, title, description, is_required, passing_score
FROM quizzes
WHERE quiz_id = $1;`

	def, err := r.loadDefinition(ctx, stmt, quizID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("quiz %q not found", quizID)
	}
	if err != nil {
		return nil, storageError("load quiz", err)
	}

	return def, nil
}

func (r *Repository) loadDefinition(ctx context.Context, quizStmt string, arg string) (*domain.Definition, error) {
	const (
		questionsStmt = `
SELECT question_id, quiz_id, question_text, question_type, points, question_order
FROM quiz_questions
WHERE quiz_id = $1
ORDER BY question_order, question_id;`
		optionsStmt = `
SELECT o.option_id, o.question_id, o.option_text, o.is_correct, o.option_order
FROM quiz_options o
JOIN quiz_questions q ON q.question_id = o.question_id
WHERE q.quiz_id = $1
ORDER BY o.option_order, o.option_id;`
	)

	var def domain.Definition
	q := &def.Quiz
	err := r.db.QueryRow(ctx, quizStmt, arg).
		Scan(&q.QuizID, &q.LessonID, &q.Title, &q.Description, &q.IsRequired, &q.PassingScore)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, questionsStmt, q.QuizID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	def.Questions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var qu domain.Question
		err := row.Scan(&qu.QuestionID, &qu.QuizID, &qu.Text, &qu.Type, &qu.Points, &qu.Order)
		return qu, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	rows, err = r.db.Query(ctx, optionsStmt, q.QuizID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	options, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Option, error) {
		var o domain.Option
		err := row.Scan(&o.OptionID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Order)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect options: %w", err)
	}

	index := make(map[string]int, len(def.Questions))
	for i, qu := range def.Questions {
		index[qu.QuestionID] = i
	}
	for _, o := range options {
		if i, ok := index[o.QuestionID]; ok {
			def.Questions[i].Options = append(def.Questions[i].Options, o)
		}
	}

	return &def, nil
}

// DeleteQuiz deletes a quiz with its questions and options. Results and answers are kept.
func (r *Repository) DeleteQuiz(ctx context.Context, quizID string) error {
	const stmt = `DELETE FROM quizzes WHERE quiz_id = $1;`

	tag, err := r.db.Exec(ctx, stmt, quizID)
	if err != nil {
		return storageError("delete quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("quiz %q not found", quizID)
	}

	return nil
}

type RecordResultRequest struct {
	QuizID      string
	UserID      string
	Score       int
	Passed      bool
	CompletedAt time.Time
	Answers     []domain.Answer
}

// RecordResult stores a graded attempt together with one answer row per selected option.
// Either everything is stored or nothing is.
func (r *Repository) RecordResult(ctx context.Context, req RecordResultRequest) (*domain.Result, error) {
	res := domain.Result{
		QuizID:      req.QuizID,
		UserID:      req.UserID,
		Score:       req.Score,
		Passed:      req.Passed,
		CompletedAt: req.CompletedAt,
	}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		id, err := newID()
		if err != nil {
			return err
		}

		const (
			insResultStmt = `
INSERT INTO quiz_results (result_id, quiz_id, user_id, score, passed, completed_at)
VALUES ($1, $2, $3, $4, $5, $6);`
			insAnswerStmt = `
INSERT INTO quiz_user_answers (answer_id, result_id, question_id, selected_option_id, is_correct)
VALUES ($1, $2, $3, $4, $5);`
		)

		if _, err := tx.Exec(ctx, insResultStmt, id, res.QuizID, res.UserID, res.Score, res.Passed, res.CompletedAt); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		res.ResultID = id

		if len(req.Answers) == 0 {
			return nil
		}

		b := new(pgx.Batch)
		for _, a := range req.Answers {
			aid, err := newID()
			if err != nil {
				return err
			}
			b.Queue(insAnswerStmt, aid, id, a.QuestionID, a.SelectedOptionID, a.IsCorrect)
		}

		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("record result", err)
	}

	return &res, nil
}

const resultColumns = `result_id, quiz_id, user_id, score, passed, completed_at`

// LatestResult returns the most recent attempt of a user, or nil if there is none.
func (r *Repository) LatestResult(ctx context.Context, quizID, userID string) (*domain.Result, error) {
	const stmt = `
SELECT ` + resultColumns + `
FROM quiz_results
WHERE quiz_id = $1 AND user_id = $2
ORDER BY completed_at DESC, result_id DESC
LIMIT 1;`

	return r.oneResult(ctx, "latest result", stmt, quizID, userID)
}

// FirstPassingResult returns the earliest passing attempt of a user, or nil if the user never passed.
func (r *Repository) FirstPassingResult(ctx context.Context, quizID, userID string) (*domain.Result, error) {
	const stmt = `
SELECT ` + resultColumns + `
FROM quiz_results
WHERE quiz_id = $1 AND user_id = $2 AND passed
ORDER BY completed_at, result_id
LIMIT 1;`

	return r.oneResult(ctx, "first passing result", stmt, quizID, userID)
}

func (r *Repository) oneResult(ctx context.Context, op, stmt string, args ...any) (*domain.Result, error) {
	res, err := scanResult(r.db.QueryRow(ctx, stmt, args...))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(op, err)
	}
	return &res, nil
}

// ListResults returns every attempt of a user on a quiz, newest first.
func (r *Repository) ListResults(ctx context.Context, quizID, userID string) ([]domain.Result, error) {
	const stmt = `
SELECT ` + resultColumns + `
FROM quiz_results
WHERE quiz_id = $1 AND user_id = $2
ORDER BY completed_at DESC, result_id DESC;`

	rows, err := r.db.Query(ctx, stmt, quizID, userID)
	if err != nil {
		return nil, storageError("list results", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Result, error) {
		return scanResult(row)
	})
	if err != nil {
		return nil, storageError("list results", err)
	}

	return results, nil
}

// ResultAnswers returns the answers stored with a result in the order they were graded.
func (r *Repository) ResultAnswers(ctx context.Context, resultID string) ([]domain.Answer, error) {
	const stmt = `
SELECT answer_id, result_id, question_id, selected_option_id, is_correct
FROM quiz_user_answers
WHERE result_id = $1
ORDER BY answer_id;`

	rows, err := r.db.Query(ctx, stmt, resultID)
	if err != nil {
		return nil, storageError("result answers", err)
	}

	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Answer, error) {
		var a domain.Answer
		err := row.Scan(&a.AnswerID, &a.ResultID, &a.QuestionID, &a.SelectedOptionID, &a.IsCorrect)
		return a, err
	})
	if err != nil {
		return nil, storageError("result answers", err)
	}

	return answers, nil
}

func scanResult(row pgx.Row) (domain.Result, error) {
	var res domain.Result
	err := row.Scan(&res.ResultID, &res.QuizID, &res.UserID, &res.Score, &res.Passed, &res.CompletedAt)
	return res, err
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// storageError keeps coded errors as they are and reports anything else as a storage failure.
func storageError(op string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.Storage(op, err)
}

// newID returns a time ordered id, so sorting by id follows insertion order.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}
