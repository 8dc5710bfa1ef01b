package quiz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Results keep the quiz id they were graded against but have no foreign key to quizzes: deleting a quiz leaves
// the attempt history in place.
const schema = `
CREATE TABLE IF NOT EXISTS quizzes (
	quiz_id       TEXT PRIMARY KEY,
	lesson_id     TEXT NOT NULL UNIQUE,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	is_required   BOOLEAN NOT NULL DEFAULT FALSE,
	passing_score INTEGER NOT NULL CHECK (passing_score BETWEEN 0 AND 100),
	create_time   TIMESTAMPTZ NOT NULL DEFAULT now(),
	update_time   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quiz_questions (
	question_id    TEXT PRIMARY KEY,
	quiz_id        TEXT NOT NULL REFERENCES quizzes (quiz_id) ON DELETE CASCADE,
	question_text  TEXT NOT NULL,
	question_type  TEXT NOT NULL CHECK (question_type IN ('single_choice', 'multiple_choice', 'true_false')),
	points         INTEGER NOT NULL CHECK (points >= 1),
	question_order INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS quiz_questions_quiz_idx ON quiz_questions (quiz_id, question_order);

CREATE TABLE IF NOT EXISTS quiz_options (
	option_id    TEXT PRIMARY KEY,
	question_id  TEXT NOT NULL REFERENCES quiz_questions (question_id) ON DELETE CASCADE,
	option_text  TEXT NOT NULL,
	is_correct   BOOLEAN NOT NULL DEFAULT FALSE,
	option_order INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS quiz_options_question_idx ON quiz_options (question_id, option_order);

CREATE TABLE IF NOT EXISTS quiz_results (
	result_id    TEXT PRIMARY KEY,
	quiz_id      TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	score        INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
	passed       BOOLEAN NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS quiz_results_quiz_user_idx ON quiz_results (quiz_id, user_id, completed_at DESC);

CREATE TABLE IF NOT EXISTS quiz_user_answers (
	answer_id          TEXT PRIMARY KEY,
	result_id          TEXT NOT NULL REFERENCES quiz_results (result_id) ON DELETE CASCADE,
	question_id        TEXT NOT NULL,
	selected_option_id TEXT NOT NULL,
	is_correct         BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS quiz_user_answers_result_idx ON quiz_user_answers (result_id);
`

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate creates the quiz tables if they don't exist yet.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate quiz schema: %w", err)
	}
	return nil
}
