package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ricardolombre/acdn-elearning/internal/auth"
	"github.com/Ricardolombre/acdn-elearning/internal/authoring"
	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/progress"
	"github.com/Ricardolombre/acdn-elearning/internal/quiz"
	"github.com/Ricardolombre/acdn-elearning/internal/server"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the quiz and lesson tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		db, err := server.ConnectPostgres(c.Postgres)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		ctx := cmd.Context()
		if err := quiz.Migrate(ctx, db); err != nil {
			return err
		}
		if err := progress.Migrate(ctx, db); err != nil {
			return err
		}

		slog.InfoContext(ctx, "migrate: schema is up to date")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <definition.json>",
	Short: "Validate a quiz definition document and save it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		def, err := authoring.ParseDefinition(data, authoring.WithTrueFalseLabels(c.Authoring.TrueLabel, c.Authoring.FalseLabel))
		if err != nil {
			return err
		}

		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions, %d points, valid\n", def.Quiz.Title, len(def.Questions), def.TotalPoints())
			return nil
		}

		db, err := server.ConnectPostgres(c.Postgres)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		saved, err := quiz.NewRepository(quiz.Config{DB: db}).SaveQuiz(cmd.Context(), def)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), saved.Quiz.QuizID)
		return nil
	},
}

var lessonsCmd = &cobra.Command{
	Use:   "lessons <lessons.json>",
	Short: "Mirror lessons of the course catalogue",
	Long:  "Reads a JSON array of lessons {lesson_id, course_id, title, order, is_locked} and upserts them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		var lessons []domain.Lesson
		if err := json.Unmarshal(data, &lessons); err != nil {
			return fmt.Errorf("decode lessons: %w", err)
		}

		db, err := server.ConnectPostgres(c.Postgres)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		return upsertLessons(cmd.Context(), progress.NewPostgresStore(db), lessons)
	},
}

func upsertLessons(ctx context.Context, store *progress.PostgresStore, lessons []domain.Lesson) error {
	for _, l := range lessons {
		if l.LessonID == "" || l.CourseID == "" {
			return fmt.Errorf("lesson %+v: lesson_id and course_id are required", l)
		}
		if err := store.UpsertLesson(ctx, l); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "lessons: upserted", "count", len(lessons))
	return nil
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an access token signed with the configured secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		role := auth.RoleLearner
		if admin, _ := cmd.Flags().GetBool("admin"); admin {
			role = auth.RoleAdmin
		}

		token, err := auth.NewJWT(auth.Config{Secret: c.Auth.Secret, Issuer: c.Auth.Issuer, TTL: c.Auth.TTL}).Issue(args[0], role)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Only validate the document")
	tokenCmd.Flags().Bool("admin", false, "Issue an admin token")
}
