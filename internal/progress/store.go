package progress

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS lessons (
	lesson_id    TEXT PRIMARY KEY,
	course_id    TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	lesson_order INTEGER NOT NULL DEFAULT 0,
	is_locked    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS lessons_course_idx ON lessons (course_id, lesson_order);

CREATE TABLE IF NOT EXISTS lesson_progress (
	user_id     TEXT NOT NULL,
	lesson_id   TEXT NOT NULL REFERENCES lessons (lesson_id) ON DELETE CASCADE,
	completed   BOOLEAN NOT NULL DEFAULT FALSE,
	update_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, lesson_id)
);
`

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate creates the lesson tables if they don't exist yet.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate progress schema: %w", err)
	}
	return nil
}

// PostgresStore reads lessons and writes lesson progress.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const lessonColumns = `lesson_id, course_id, title, lesson_order, is_locked`

func (s *PostgresStore) Lesson(ctx context.Context, lessonID string) (*domain.Lesson, error) {
	const stmt = `SELECT ` + lessonColumns + ` FROM lessons WHERE lesson_id = $1;`

	l, err := scanLesson(s.db.QueryRow(ctx, stmt, lessonID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("lesson %q not found", lessonID)
	}
	if err != nil {
		return nil, errors.Storage("load lesson", err)
	}

	return &l, nil
}

// CourseLessons returns the lessons of a course in order.
func (s *PostgresStore) CourseLessons(ctx context.Context, courseID string) ([]domain.Lesson, error) {
	const stmt = `
SELECT ` + lessonColumns + `
FROM lessons
WHERE course_id = $1
ORDER BY lesson_order, lesson_id;`

	rows, err := s.db.Query(ctx, stmt, courseID)
	if err != nil {
		return nil, errors.Storage("list course lessons", err)
	}

	lessons, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Lesson, error) {
		return scanLesson(row)
	})
	if err != nil {
		return nil, errors.Storage("list course lessons", err)
	}

	return lessons, nil
}

// UpsertLesson mirrors a lesson of the course catalogue.
func (s *PostgresStore) UpsertLesson(ctx context.Context, l domain.Lesson) error {
	const stmt = `
INSERT INTO lessons (lesson_id, course_id, title, lesson_order, is_locked)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (lesson_id) DO UPDATE
SET course_id = EXCLUDED.course_id, title = EXCLUDED.title, lesson_order = EXCLUDED.lesson_order, is_locked = EXCLUDED.is_locked;`

	if _, err := s.db.Exec(ctx, stmt, l.LessonID, l.CourseID, l.Title, l.Order, l.IsLocked); err != nil {
		return errors.Storage("upsert lesson", err)
	}
	return nil
}

// MarkCompleted records the lesson as completed for the user. Completing twice only moves the update time.
func (s *PostgresStore) MarkCompleted(ctx context.Context, lessonID, userID string, at time.Time) (*domain.LessonProgress, error) {
	const stmt = `
INSERT INTO lesson_progress (user_id, lesson_id, completed, update_time)
VALUES ($1, $2, TRUE, $3)
ON CONFLICT (user_id, lesson_id) DO UPDATE
SET completed = TRUE, update_time = EXCLUDED.update_time
RETURNING lesson_id, user_id, completed, update_time;`

	var p domain.LessonProgress
	err := s.db.QueryRow(ctx, stmt, userID, lessonID, at).Scan(&p.LessonID, &p.UserID, &p.Completed, &p.UpdateTime)
	if err != nil {
		return nil, errors.Storage("mark lesson completed", err)
	}

	return &p, nil
}

// Completed returns the lesson ids of a course the user completed.
func (s *PostgresStore) Completed(ctx context.Context, courseID, userID string) (map[string]bool, error) {
	const stmt = `
SELECT p.lesson_id
FROM lesson_progress p
JOIN lessons l ON l.lesson_id = p.lesson_id
WHERE l.course_id = $1 AND p.user_id = $2 AND p.completed;`

	rows, err := s.db.Query(ctx, stmt, courseID, userID)
	if err != nil {
		return nil, errors.Storage("list completed lessons", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Storage("list completed lessons", err)
	}

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func scanLesson(row pgx.Row) (domain.Lesson, error) {
	var l domain.Lesson
	err := row.Scan(&l.LessonID, &l.CourseID, &l.Title, &l.Order, &l.IsLocked)
	return l, err
}
