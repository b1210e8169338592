package domain

import "time"

// Lesson is a university lesson with its quiz.
type Lesson struct {
	ID            int64
	Title         string
	Content       string
	ExamQuestions string
	RewardCaps    int64
	OrderIndex    int
	Completed     bool
	Score         *int
	CompletedAt   *time.Time
}
