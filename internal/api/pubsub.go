package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	QuizGraded struct {
		LessonID string `json:"lesson_id"`
		QuizID   string `json:"quiz_id"`
		ResultID string `json:"result_id"`
		Score    int    `json:"score"`
		Passed   bool   `json:"passed"`
	}

	LessonCompleted struct {
		LessonID string `json:"lesson_id"`
	}
)

func (a *API) PublishQuizGraded(ctx context.Context, e domain.EventQuizGraded) error {
	return a.publishNotification(ctx, e.Result.UserID, e.Name(), QuizGraded{
		LessonID: e.LessonID,
		QuizID:   e.Result.QuizID,
		ResultID: e.Result.ResultID,
		Score:    e.Result.Score,
		Passed:   e.Result.Passed,
	})
}

func (a *API) PublishLessonCompleted(ctx context.Context, e domain.EventLessonCompleted) error {
	return a.publishNotification(ctx, e.Progress.UserID, e.Name(), LessonCompleted{
		LessonID: e.Progress.LessonID,
	})
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, UserChannel(a.prefix, user), b).Err()
}

// UserChannel is the Redis channel a learner's client subscribes to.
func UserChannel(prefix, user string) string {
	return fmt.Sprintf("%s:user:%s", prefix, user)
}
