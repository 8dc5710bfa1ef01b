package domain

const (
	EventNameQuizGraded      = "quiz.graded"
	EventNameLessonCompleted = "lesson.completed"
)

// EventQuizGraded is published once a result and its answers are stored.
type EventQuizGraded struct {
	LessonID string
	Result   Result
}

func (EventQuizGraded) Name() string { return EventNameQuizGraded }

// EventLessonCompleted is published when the gate marks a lesson complete, after a passed quiz or directly for
// a lesson without a required quiz.
type EventLessonCompleted struct {
	Progress LessonProgress
}

func (EventLessonCompleted) Name() string { return EventNameLessonCompleted }
