package session

import (
	"context"
	"time"
)

// Run drives the one-second countdown. It exits when the session completes,
// Close is called, or ctx is canceled. Call in a goroutine once the session
// is in progress; tests can skip Run and call Tick directly.
func (s *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances the countdown by one second. Warnings fire exactly once per
// threshold crossing; reaching zero transitions to Submitting and issues the
// completion call regardless of user action. The transition itself makes the
// trigger idempotent: once the session leaves the timed phases, further
// ticks are no-ops.
func (s *Controller) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseInProgress && s.phase != PhaseSummary {
		s.mu.Unlock()
		return
	}
	if s.timeLeft > 0 {
		s.timeLeft--
	}
	left := s.timeLeft

	// A session resumed inside a warning window must still warn once, so the
	// check is a crossing, not an exact hit. Entering deep inside marks every
	// crossed threshold but emits a single warning; zero belongs to expiry,
	// not to warnings.
	var events []Event
	crossed := false
	for _, threshold := range []int{warnFiveMinutes, warnOneMinute} {
		if left > 0 && left <= threshold && !s.warned[threshold] {
			s.warned[threshold] = true
			crossed = true
		}
	}
	if crossed {
		events = append(events, Event{Kind: EventTimeWarning, SecondsLeft: left})
	}

	if left > 0 {
		s.mu.Unlock()
		s.emit(events...)
		return
	}

	// Time exhausted. Not an error: the normal terminal trigger for
	// auto-submission. A pending autosave failure must not block this.
	attemptID := s.attempt.ID
	s.phase = PhaseSubmitting
	s.completing = true
	s.mu.Unlock()

	events = append(events,
		Event{Kind: EventTimeExpired, AttemptID: attemptID},
		Event{Kind: EventPhaseChanged, Phase: PhaseSubmitting},
	)
	s.emit(events...)

	if _, err := s.runComplete(ctx); err != nil {
		s.log.Warn().Err(err).Msg("auto-submit failed")
	}
}
