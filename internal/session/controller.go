// Package session implements the client-side test session controller: the
// state machine that owns one timed exam attempt from preview through
// submission. It talks to the platform through the Backend interface and
// reports asynchronous happenings through a Notifier.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examind/examind-cli/internal/backend"
	"github.com/examind/examind-cli/internal/model"
)

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhasePreview    Phase = "PREVIEW"
	PhaseStarting   Phase = "STARTING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseSummary    Phase = "SUMMARY"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseCompleted  Phase = "COMPLETED"
)

// Warning thresholds, in seconds left.
const (
	warnFiveMinutes = 300
	warnOneMinute   = 60
)

// Backend is the subset of platform operations a session needs.
// *backend.Client satisfies it.
type Backend interface {
	GetTestDetails(ctx context.Context, testID uuid.UUID) (*backend.TestDetails, error)
	StartAttempt(ctx context.Context, testID uuid.UUID) (*backend.StartResult, error)
	SubmitAnswer(ctx context.Context, attemptID, questionID uuid.UUID, answer string) error
	GetSavedAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.SavedAnswer, error)
	CompleteAttempt(ctx context.Context, attemptID uuid.UUID) (*model.ScoreSummary, error)
}

// Rejections surfaced to the caller as transient notices. None of them
// change session state.
var (
	ErrNotInProgress        = errors.New("session is not in progress")
	ErrNavigationRestricted = errors.New("returning to earlier questions is disabled for this test")
	ErrIndexOutOfRange      = errors.New("question index out of range")
	ErrLastQuestion         = errors.New("already at the last question")
	ErrFirstQuestion        = errors.New("already at the first question")
	ErrUnknownQuestion      = errors.New("question does not belong to this test")
	ErrSubmitInFlight       = errors.New("a submission is already in flight")
	ErrInvalidPhase         = errors.New("operation not valid in this phase")
)

// Options tunes a Controller. The zero value gives production behavior.
type Options struct {
	Notifier Notifier
	// Now overrides the clock, for tests.
	Now func() time.Time
	// Rand seeds the shuffle permutations, for tests.
	Rand *rand.Rand
	// RedirectDelay is the pause before signaling results navigation when a
	// start is rejected because the test was already completed.
	RedirectDelay time.Duration
	// Logger defaults to a no-op logger when nil.
	Logger *zerolog.Logger
}

// Controller owns the state of one exam attempt. All exported methods
// are safe for concurrent use; the timer goroutine and autosave goroutines
// share it with the caller.
type Controller struct {
	backend Backend
	testID  uuid.UUID
	notify  Notifier
	now     func() time.Time
	rng     *rand.Rand
	log     zerolog.Logger

	redirectDelay time.Duration

	mu      sync.Mutex
	phase   Phase
	test    *model.TestDefinition
	attempt *model.Attempt

	order       []model.Question          // presentation order, derived once
	optionOrder map[uuid.UUID][]string    // presentation options, derived once
	current     int                       // index into order
	answers     map[uuid.UUID]model.Answer
	marked      map[int]struct{} // presentation indices marked for review
	timeLeft    int              // seconds
	warned      map[int]bool     // threshold → already signaled

	completing    bool // one-way latch while a completion call is in flight
	redirectTimer *time.Timer

	done      chan struct{} // closed on Completed or Close; stops the timer
	closeOnce sync.Once
}

// New creates a controller for the given test. Call Load before anything
// else; it establishes the initial phase from the platform's attempt state.
func New(b Backend, testID uuid.UUID, opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(now().UnixNano()))
	}
	delay := opts.RedirectDelay
	if delay == 0 {
		delay = 3 * time.Second
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Controller{
		backend:       b,
		testID:        testID,
		notify:        opts.Notifier,
		now:           now,
		rng:           rng,
		log:           log.With().Str("component", "session").Str("test_id", testID.String()).Logger(),
		redirectDelay: delay,
		answers:       make(map[uuid.UUID]model.Answer),
		marked:        make(map[int]struct{}),
		warned:        make(map[int]bool),
		done:          make(chan struct{}),
	}
}

// Load fetches the test details and establishes the initial phase:
//
//   - no attempt              → Preview
//   - completed attempt       → Completed, with a results-navigation signal
//   - open attempt, time left → InProgress with answers rehydrated (resume)
//   - open attempt, time gone → Submitting, auto-submitted immediately
//
// A fetch failure is fatal to the preview phase: the session stays unloaded
// and starting is impossible.
func (s *Controller) Load(ctx context.Context) error {
	details, err := s.backend.GetTestDetails(ctx, s.testID)
	if err != nil {
		return fmt.Errorf("load test: %w", err)
	}

	s.mu.Lock()
	s.test = &details.Test

	if details.Attempt == nil {
		s.phase = PhasePreview
		s.mu.Unlock()
		s.emit(Event{Kind: EventPhaseChanged, Phase: PhasePreview})
		return nil
	}

	a := *details.Attempt
	s.attempt = &a

	if a.IsCompleted {
		// The platform is authoritative on completion; skip the preview and
		// send the caller straight to results.
		s.phase = PhaseCompleted
		s.stopLocked()
		s.mu.Unlock()
		s.emit(
			Event{Kind: EventPhaseChanged, Phase: PhaseCompleted},
			Event{Kind: EventNavigateResults, AttemptID: a.ID},
		)
		return nil
	}

	return s.resumeLocked(ctx, a)
}

// resumeLocked restores an open attempt. Presentation order is re-derived
// fresh (the platform does not guarantee stable question order across
// fetches) while answers are restored keyed by question id, so shuffling
// across resumes never loses them. Called with s.mu held; releases it.
func (s *Controller) resumeLocked(ctx context.Context, a model.Attempt) error {
	s.order, s.optionOrder = derivePresentation(s.rng, s.test)

	remaining := a.Remaining(s.test.TimeLimit(), s.now())
	if remaining <= 0 {
		// The window elapsed while the student was away: no InProgress stop,
		// straight to auto-submission.
		s.phase = PhaseSubmitting
		s.completing = true
		s.mu.Unlock()
		s.emit(
			Event{Kind: EventTimeExpired, AttemptID: a.ID},
			Event{Kind: EventPhaseChanged, Phase: PhaseSubmitting},
		)
		if _, err := s.runComplete(ctx); err != nil {
			s.log.Warn().Err(err).Msg("auto-submit on resume failed")
		}
		return nil
	}

	attemptID := a.ID
	s.mu.Unlock()

	saved, err := s.backend.GetSavedAnswers(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("hydrate answers: %w", err)
	}

	s.mu.Lock()
	known := make(map[uuid.UUID]struct{}, len(s.test.Questions))
	for _, q := range s.test.Questions {
		known[q.ID] = struct{}{}
	}
	for _, sa := range saved {
		if _, ok := known[sa.QuestionID]; ok {
			s.answers[sa.QuestionID] = model.DecodeAnswer(sa.AnswerText)
		}
	}

	s.timeLeft = int(remaining / time.Second)
	s.current = 0
	s.phase = PhaseInProgress
	s.mu.Unlock()

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("seconds_left", s.TimeLeft()).
		Int("answers", len(saved)).
		Msg("resumed open attempt")
	s.emit(Event{Kind: EventPhaseChanged, Phase: PhaseInProgress})
	return nil
}

// Start opens a new attempt. Only valid in Preview. When the platform
// reports the test was already completed, the session transitions to
// Completed and a delayed results-navigation signal is scheduled; any other
// failure leaves the session in Preview.
func (s *Controller) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhasePreview {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	s.phase = PhaseStarting
	s.mu.Unlock()
	s.emit(Event{Kind: EventPhaseChanged, Phase: PhaseStarting})

	result, err := s.backend.StartAttempt(ctx, s.testID)
	if err != nil {
		if errors.Is(err, backend.ErrAttemptCompleted) {
			// The platform knows an attempt this session never saw (completed
			// on another device, or between Load and Start). The redirect must
			// carry its id, so fetch it before settling.
			s.mu.Lock()
			known := s.attempt != nil
			s.mu.Unlock()
			if !known {
				if details, derr := s.backend.GetTestDetails(ctx, s.testID); derr == nil && details.Attempt != nil {
					a := *details.Attempt
					s.mu.Lock()
					s.attempt = &a
					s.mu.Unlock()
				} else {
					s.log.Warn().Err(derr).Msg("could not resolve completed attempt for redirect")
				}
			}

			s.mu.Lock()
			s.phase = PhaseCompleted
			var attemptID uuid.UUID
			if s.attempt != nil {
				attemptID = s.attempt.ID
			}
			s.redirectTimer = time.AfterFunc(s.redirectDelay, func() {
				s.emit(Event{Kind: EventNavigateResults, AttemptID: attemptID})
			})
			s.stopLocked()
			s.mu.Unlock()
			s.emit(Event{Kind: EventPhaseChanged, Phase: PhaseCompleted})
			return fmt.Errorf("start: %w", err)
		}

		s.mu.Lock()
		s.phase = PhasePreview
		s.mu.Unlock()
		s.emit(Event{Kind: EventPhaseChanged, Phase: PhasePreview})
		return fmt.Errorf("start: %w", err)
	}

	s.mu.Lock()
	attempt := result.Attempt
	s.attempt = &attempt
	s.test = &result.Test // snapshot as of the start
	s.order, s.optionOrder = derivePresentation(s.rng, s.test)
	s.timeLeft = s.test.TimeLimitMinutes * 60
	s.current = 0
	s.phase = PhaseInProgress
	s.mu.Unlock()

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("questions", len(result.Test.Questions)).
		Msg("attempt started")
	s.emit(Event{Kind: EventPhaseChanged, Phase: PhaseInProgress})
	return nil
}

// SetAnswer records the answer for a question locally and fires off a
// best-effort autosave. The local write always wins immediately; a failed
// save is reported through EventSaveFailed and never reverts state. The
// value is resent only when this question's answer changes again.
func (s *Controller) SetAnswer(ctx context.Context, questionID uuid.UUID, answer model.Answer) error {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if _, ok := s.optionOrder[questionID]; !ok {
		s.mu.Unlock()
		return ErrUnknownQuestion
	}
	s.answers[questionID] = answer
	attemptID := s.attempt.ID
	s.mu.Unlock()

	// Fire and forget. Saves for different questions may race freely; saves
	// for the same question rely on the platform being last-write-wins.
	go func() {
		if err := s.backend.SubmitAnswer(ctx, attemptID, questionID, answer.Encode()); err != nil {
			s.log.Warn().Err(err).Str("question_id", questionID.String()).Msg("autosave failed")
			s.emit(Event{Kind: EventSaveFailed, QuestionID: questionID, Err: err})
		}
	}()
	return nil
}

// SetCurrentAnswer records an answer for the currently displayed question.
// A test served with no questions has nothing to answer; the rejection is
// transient, like an out-of-range jump.
func (s *Controller) SetCurrentAnswer(ctx context.Context, answer model.Answer) error {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if len(s.order) == 0 || s.current >= len(s.order) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	questionID := s.order[s.current].ID
	s.mu.Unlock()
	return s.SetAnswer(ctx, questionID, answer)
}

// Next advances to the following question.
func (s *Controller) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	if s.current >= len(s.order)-1 {
		return ErrLastQuestion
	}
	s.current++
	return nil
}

// Previous moves back one question, if the test permits it.
func (s *Controller) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	if !s.test.Settings.AllowPreviousNavigation {
		return ErrNavigationRestricted
	}
	if s.current == 0 {
		return ErrFirstQuestion
	}
	s.current--
	return nil
}

// GoTo jumps to the question at presentation index i. Jumping backward is
// subject to the same restriction as Previous.
func (s *Controller) GoTo(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	if i < 0 || i >= len(s.order) {
		return ErrIndexOutOfRange
	}
	if i < s.current && !s.test.Settings.AllowPreviousNavigation {
		return ErrNavigationRestricted
	}
	s.current = i
	return nil
}

// ToggleReview flips the review mark on the current question. Purely local;
// no platform call. Returns whether the question is now marked.
func (s *Controller) ToggleReview() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return false, ErrNotInProgress
	}
	if _, ok := s.marked[s.current]; ok {
		delete(s.marked, s.current)
		return false, nil
	}
	s.marked[s.current] = struct{}{}
	return true, nil
}

// Summary is the pre-submission overview shown for confirmation.
type Summary struct {
	Total           int
	Answered        int
	Unanswered      int
	Marked          int
	PercentAnswered float64
}

// RequestSubmit moves the session into the Summary phase and returns the
// counts the confirmation view needs. The countdown keeps running; reaching
// zero here still auto-submits.
func (s *Controller) RequestSubmit() (Summary, error) {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return Summary{}, ErrNotInProgress
	}
	s.phase = PhaseSummary
	sum := s.summaryLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: EventPhaseChanged, Phase: PhaseSummary})
	return sum, nil
}

// CancelSubmit returns from the Summary phase to the exam loop.
func (s *Controller) CancelSubmit() error {
	s.mu.Lock()
	if s.phase != PhaseSummary {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	s.phase = PhaseInProgress
	s.mu.Unlock()
	s.emit(Event{Kind: EventPhaseChanged, Phase: PhaseInProgress})
	return nil
}

// ConfirmSubmit performs the completion call. Valid from the Summary phase,
// and from Submitting to retry after a failed call. The completion is
// single-flight: while one call is outstanding, further confirmations are
// rejected with ErrSubmitInFlight rather than producing a second request.
func (s *Controller) ConfirmSubmit(ctx context.Context) (*model.ScoreSummary, error) {
	s.mu.Lock()
	if s.phase != PhaseSummary && s.phase != PhaseSubmitting {
		s.mu.Unlock()
		return nil, ErrInvalidPhase
	}
	if s.completing {
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	s.completing = true
	changed := s.phase != PhaseSubmitting
	s.phase = PhaseSubmitting
	s.mu.Unlock()

	if changed {
		s.emit(Event{Kind: EventPhaseChanged, Phase: PhaseSubmitting})
	}
	return s.runComplete(ctx)
}

// runComplete issues the completion call. The caller must have set the
// completing latch under lock. On failure the latch is released and the
// session stays in Submitting so the user may retry; on success the session
// is Completed and the timer stops.
func (s *Controller) runComplete(ctx context.Context) (*model.ScoreSummary, error) {
	s.mu.Lock()
	attemptID := s.attempt.ID
	s.mu.Unlock()

	summary, err := s.backend.CompleteAttempt(ctx, attemptID)
	if err != nil {
		s.mu.Lock()
		s.completing = false
		s.mu.Unlock()
		s.emit(Event{Kind: EventSubmitFailed, AttemptID: attemptID, Err: err})
		return nil, fmt.Errorf("complete attempt: %w", err)
	}

	s.mu.Lock()
	s.phase = PhaseCompleted
	s.attempt.IsCompleted = true
	score := summary.Score
	s.attempt.Score = &score
	s.stopLocked()
	s.mu.Unlock()

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Float64("score", summary.Score).
		Msg("attempt completed")
	s.emit(
		Event{Kind: EventPhaseChanged, Phase: PhaseCompleted},
		Event{Kind: EventNavigateResults, AttemptID: attemptID},
	)
	return summary, nil
}

// Close tears the session down: the timer goroutine stops and any pending
// redirect signal is canceled. The platform keeps all autosaved answers, so
// a later Load resumes where the student left off.
func (s *Controller) Close() {
	s.mu.Lock()
	if s.redirectTimer != nil {
		s.redirectTimer.Stop()
		s.redirectTimer = nil
	}
	s.stopLocked()
	s.mu.Unlock()
}

// stopLocked halts the countdown driver. Scheduled redirect signals are left
// alone; only Close cancels those.
func (s *Controller) stopLocked() {
	s.closeOnce.Do(func() { close(s.done) })
}

// ─── Accessors ──────────────────────────────────────────────────────────────

// Phase returns the current lifecycle phase.
func (s *Controller) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Test returns the definition this session is bound to. Nil before Load.
func (s *Controller) Test() *model.TestDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.test
}

// Attempt returns a copy of the current attempt, or nil if none exists yet.
func (s *Controller) Attempt() *model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil {
		return nil
	}
	a := *s.attempt
	return &a
}

// TimeLeft returns the remaining seconds.
func (s *Controller) TimeLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft
}

// CurrentIndex returns the presentation index of the displayed question.
func (s *Controller) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// QuestionCount returns the number of questions in presentation order.
func (s *Controller) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// CurrentQuestion returns the displayed question. ok is false outside the
// exam loop.
func (s *Controller) CurrentQuestion() (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 || s.current >= len(s.order) {
		return model.Question{}, false
	}
	return s.order[s.current], true
}

// PresentationOrder returns a copy of the questions in display order.
func (s *Controller) PresentationOrder() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, len(s.order))
	copy(out, s.order)
	return out
}

// OptionsFor returns the display-ordered options of a question.
func (s *Controller) OptionsFor(questionID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts := s.optionOrder[questionID]
	out := make([]string, len(opts))
	copy(out, opts)
	return out
}

// AnswerFor returns the locally held answer for a question.
func (s *Controller) AnswerFor(questionID uuid.UUID) (model.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// Answers returns a copy of all locally held answers keyed by question id.
func (s *Controller) Answers() map[uuid.UUID]model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]model.Answer, len(s.answers))
	for qid, a := range s.answers {
		out[qid] = a
	}
	return out
}

// MarkedForReview returns the sorted presentation indices marked for review.
func (s *Controller) MarkedForReview() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.marked))
	for i := range s.marked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// IsMarked reports whether presentation index i is marked for review.
func (s *Controller) IsMarked(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.marked[i]
	return ok
}

func (s *Controller) summaryLocked() Summary {
	sum := Summary{Total: len(s.order), Marked: len(s.marked)}
	for _, q := range s.order {
		if a, ok := s.answers[q.ID]; ok && !a.IsZero() {
			sum.Answered++
		}
	}
	sum.Unanswered = sum.Total - sum.Answered
	if sum.Total > 0 {
		sum.PercentAnswered = float64(sum.Answered) / float64(sum.Total) * 100
	}
	return sum
}
