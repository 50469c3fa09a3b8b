package model

import (
	"time"

	"github.com/google/uuid"
)

// TestSettings controls how a test session behaves for the student.
// GracePeriodMinutes and ResultReleaseTime are display-only; the platform
// enforces both server-side.
type TestSettings struct {
	ShuffleQuestions        bool       `json:"shuffle_questions"`
	ShuffleOptions          bool       `json:"shuffle_options"`
	AllowPreviousNavigation bool       `json:"allow_previous_navigation"`
	AllowRevisit            bool       `json:"allow_revisit"`
	ShowCorrectAnswers      bool       `json:"show_correct_answers"`
	ResultReleaseTime       *time.Time `json:"result_release_time,omitempty"`
	PassPercentage          float64    `json:"pass_percentage"`
	GracePeriodMinutes      int        `json:"grace_period_minutes"`
}

// TestDefinition is the immutable description of a test for one session.
type TestDefinition struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Type             string       `json:"type,omitempty"`
	TimeLimitMinutes int          `json:"time_limit_minutes"`
	TotalMarks       float64      `json:"total_marks"`
	NegativeMarks    float64      `json:"negative_marks"`
	Settings         TestSettings `json:"settings"`
	Questions        []Question   `json:"questions"`
}

// TimeLimit returns the test duration as a time.Duration.
func (t TestDefinition) TimeLimit() time.Duration {
	return time.Duration(t.TimeLimitMinutes) * time.Minute
}

// Attempt represents one student's instance of taking a test. The platform
// guarantees at most one non-completed attempt per student/test pair.
type Attempt struct {
	ID          uuid.UUID  `json:"attempt_id"`
	StartTime   time.Time  `json:"start_time"`
	IsCompleted bool       `json:"is_completed"`
	Score       *float64   `json:"score,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Remaining computes how much of the time limit is left at now, clamped at
// zero once the attempt window has elapsed.
func (a Attempt) Remaining(limit time.Duration, now time.Time) time.Duration {
	deadline := a.StartTime.Add(limit)
	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// SavedAnswer is one persisted answer as returned by the platform.
type SavedAnswer struct {
	QuestionID uuid.UUID `json:"question_id"`
	AnswerText string    `json:"answer_text"`
}

// ScoreSummary is the final result returned when an attempt completes.
type ScoreSummary struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	Score      float64   `json:"score"`
	TotalMarks float64   `json:"total_marks"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
}
