package session

import (
	"github.com/google/uuid"
)

// EventKind labels the asynchronous signals a session controller emits.
type EventKind string

const (
	// EventPhaseChanged fires on every phase transition.
	EventPhaseChanged EventKind = "phase_changed"
	// EventTimeWarning fires once per warning threshold (5 minutes, 1 minute).
	EventTimeWarning EventKind = "time_warning"
	// EventTimeExpired fires when the countdown reaches zero and the
	// controller begins auto-submission.
	EventTimeExpired EventKind = "time_expired"
	// EventSaveFailed reports a failed answer autosave. Non-fatal: the local
	// answer is kept and resent on the next edit of the same question.
	EventSaveFailed EventKind = "save_failed"
	// EventSubmitFailed reports a failed completion call. The session stays
	// in the submitting phase so the submission can be retried.
	EventSubmitFailed EventKind = "submit_failed"
	// EventNavigateResults signals that the caller should move to the
	// results view for the attempt.
	EventNavigateResults EventKind = "navigate_results"
)

// Event is one asynchronous signal from the controller. Which fields are set
// depends on Kind.
type Event struct {
	Kind        EventKind
	Phase       Phase
	SecondsLeft int
	AttemptID   uuid.UUID
	QuestionID  uuid.UUID
	Err         error
}

// Notifier receives controller events. Callbacks run outside the controller
// lock, so they may call back into the controller.
type Notifier func(Event)

func (s *Controller) emit(events ...Event) {
	if s.notify == nil {
		return
	}
	for _, ev := range events {
		s.notify(ev)
	}
}
