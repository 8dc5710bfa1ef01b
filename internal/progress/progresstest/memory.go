// Package progresstest provides an in-memory lesson store for tests.
package progresstest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

type Memory struct {
	mu       sync.Mutex
	lessons  map[string]domain.Lesson
	progress map[[2]string]domain.LessonProgress

	// Writes counts MarkCompleted calls.
	Writes int
}

func NewMemory(lessons ...domain.Lesson) *Memory {
	m := &Memory{
		lessons:  make(map[string]domain.Lesson),
		progress: make(map[[2]string]domain.LessonProgress),
	}
	for _, l := range lessons {
		m.lessons[l.LessonID] = l
	}
	return m
}

func (m *Memory) Lesson(_ context.Context, lessonID string) (*domain.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lessons[lessonID]
	if !ok {
		return nil, errors.NotFound("lesson %q not found", lessonID)
	}
	return &l, nil
}

func (m *Memory) CourseLessons(_ context.Context, courseID string) ([]domain.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Lesson
	for _, l := range m.lessons {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b domain.Lesson) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return strings.Compare(a.LessonID, b.LessonID)
	})
	return out, nil
}

func (m *Memory) MarkCompleted(_ context.Context, lessonID, userID string, at time.Time) (*domain.LessonProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Writes++
	p := domain.LessonProgress{LessonID: lessonID, UserID: userID, Completed: true, UpdateTime: at}
	m.progress[[2]string{userID, lessonID}] = p
	return &p, nil
}

func (m *Memory) Completed(_ context.Context, courseID, userID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool)
	for k, p := range m.progress {
		if k[0] == userID && p.Completed && m.lessons[k[1]].CourseID == courseID {
			out[k[1]] = true
		}
	}
	return out, nil
}
