package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/examind/examind-cli/internal/backend"
	"github.com/examind/examind-cli/internal/config"
	"github.com/examind/examind-cli/internal/logger"
	"github.com/examind/examind-cli/internal/model"
	"github.com/examind/examind-cli/internal/session"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		fmt.Println("Usage: examind <test-id>")
		os.Exit(1)
	}
	testID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Println("Error: test id must be a valid UUID")
		os.Exit(1)
	}

	// ─── Bearer Token ──────────────────────────────────────────────────
	token := cfg.APIToken
	if token == "" {
		fmt.Print("Enter API token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil || len(raw) == 0 {
			fmt.Println("Error: a token is required")
			os.Exit(1)
		}
		token = string(raw)
	}

	client := backend.New(cfg.APIBaseURL, token, cfg.HTTPTimeout, log)
	if id, err := client.Identity(); err == nil {
		greet := id.StudentID
		if id.Name != "" {
			greet = id.Name
		}
		fmt.Printf("Signed in as %s\n", greet)
		if id.Expired(time.Now()) {
			fmt.Println("Warning: this token looks expired; the platform will likely reject it.")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &app{in: bufio.NewScanner(os.Stdin)}
	app.ctrl = session.New(client, testID, session.Options{
		Notifier:      app.onEvent,
		RedirectDelay: cfg.RedirectDelay,
		Logger:        &log,
	})
	defer app.ctrl.Close()

	// Interrupt guard: while the exam loop is live, Ctrl-C must not just
	// drop the session. Answers survive server-side either way, but leaving
	// needs an explicit decision, like closing the browser tab would.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			switch app.ctrl.Phase() {
			case session.PhaseInProgress, session.PhaseSummary:
				fmt.Println("\nExam in progress. Use the q command to leave.")
			default:
				cancel()
				os.Exit(0)
			}
		}
	}()

	if err := app.run(ctx); err != nil {
		log.Error().Err(err).Msg("session ended with error")
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	ctrl *session.Controller
	in   *bufio.Scanner
}

func (a *app) run(ctx context.Context) error {
	if err := a.ctrl.Load(ctx); err != nil {
		return err
	}

	switch a.ctrl.Phase() {
	case session.PhaseCompleted:
		return nil // onEvent already pointed at the results
	case session.PhasePreview:
		if !a.preview(ctx) {
			return nil
		}
	}

	go a.ctrl.Run(ctx)
	a.loop(ctx)
	return nil
}

// preview shows the instructions screen and waits for the student to start.
// Returns false if the student walked away or the start redirected to
// results.
func (a *app) preview(ctx context.Context) bool {
	test := a.ctrl.Test()
	a.rule()
	fmt.Printf("%s\n", test.Title)
	if test.Description != "" {
		fmt.Println(test.Description)
	}
	fmt.Printf("Time limit: %d minutes · Questions: %d · Total marks: %.0f\n",
		test.TimeLimitMinutes, len(test.Questions), test.TotalMarks)
	if !test.Settings.AllowPreviousNavigation {
		fmt.Println("Note: you cannot return to earlier questions in this test.")
	}
	a.rule()

	for {
		fmt.Print("Type 'start' to begin, or 'quit' to leave: ")
		if !a.in.Scan() {
			return false
		}
		switch strings.TrimSpace(strings.ToLower(a.in.Text())) {
		case "start":
			if err := a.ctrl.Start(ctx); err != nil {
				if a.ctrl.Phase() == session.PhaseCompleted {
					return false
				}
				fmt.Printf("Could not start: %v\n", err)
				continue
			}
			return true
		case "quit", "q":
			return false
		}
	}
}

// loop is the exam read-eval loop. It runs until the session is completed or
// the student confirms leaving.
func (a *app) loop(ctx context.Context) {
	for {
		if a.ctrl.Phase() == session.PhaseCompleted {
			return
		}
		a.render()
		fmt.Print("> ")
		if !a.in.Scan() {
			return
		}
		line := strings.TrimSpace(a.in.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		switch strings.ToLower(cmd) {
		case "n", "next":
			a.report(a.ctrl.Next())
		case "p", "prev":
			a.report(a.ctrl.Previous())
		case "g", "goto":
			num, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil {
				fmt.Println("Usage: g <question number>")
				continue
			}
			a.report(a.ctrl.GoTo(num - 1))
		case "m", "mark":
			marked, err := a.ctrl.ToggleReview()
			if err != nil {
				a.report(err)
			} else if marked {
				fmt.Println("Marked for review.")
			} else {
				fmt.Println("Review mark removed.")
			}
		case "a", "answer":
			a.answer(ctx, arg)
		case "s", "submit":
			if a.submit(ctx) {
				return
			}
		case "q", "quit":
			fmt.Print("Leave the exam? Your saved answers are kept and you can resume. [y/N]: ")
			if a.in.Scan() && strings.EqualFold(strings.TrimSpace(a.in.Text()), "y") {
				return
			}
		default:
			fmt.Println("Commands: a <answer> · n · p · g <num> · m · s · q")
		}
	}
}

// answer interprets the argument for the current question type and records
// it. Numeric input selects a displayed option by position; "key=value"
// pairs build multi-part answers for MATCH and multi-blank questions.
func (a *app) answer(ctx context.Context, arg string) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		fmt.Println("Usage: a <answer>")
		return
	}
	q, ok := a.ctrl.CurrentQuestion()
	if !ok {
		return
	}

	var ans model.Answer
	switch {
	case q.MultiPart():
		parts := parseParts(arg)
		if parts == nil {
			fmt.Println("Use key=value pairs separated by commas, e.g. a Item1=B,Item2=A")
			return
		}
		ans = model.PartsAnswer(parts)
	case len(a.ctrl.OptionsFor(q.ID)) > 0:
		opts := a.ctrl.OptionsFor(q.ID)
		if idx := optionIndex(arg, len(opts)); idx >= 0 {
			ans = model.TextAnswer(opts[idx])
		} else {
			ans = model.TextAnswer(arg)
		}
	default:
		ans = model.TextAnswer(arg)
	}

	if err := a.ctrl.SetCurrentAnswer(ctx, ans); err != nil {
		a.report(err)
		return
	}
	fmt.Println("Answer recorded.")
}

// submit walks the summary/confirmation flow. Returns true when the attempt
// actually completed.
func (a *app) submit(ctx context.Context) bool {
	// A session resumed past its deadline is already in the submitting phase;
	// there is nothing to summarize, only the completion call to retry.
	if a.ctrl.Phase() != session.PhaseSubmitting {
		sum, err := a.ctrl.RequestSubmit()
		if err != nil {
			a.report(err)
			return false
		}
		a.rule()
		fmt.Printf("Answered %d of %d (%.0f%%) · Unanswered %d · Marked for review %d\n",
			sum.Answered, sum.Total, sum.PercentAnswered, sum.Unanswered, sum.Marked)
		a.rule()
		fmt.Print("Submit now? This cannot be undone. [y/N]: ")
		if !a.in.Scan() || !strings.EqualFold(strings.TrimSpace(a.in.Text()), "y") {
			_ = a.ctrl.CancelSubmit()
			return false
		}
	}

	for {
		summary, err := a.ctrl.ConfirmSubmit(ctx)
		if err != nil {
			if errors.Is(err, session.ErrSubmitInFlight) || errors.Is(err, session.ErrInvalidPhase) {
				return a.ctrl.Phase() == session.PhaseCompleted
			}
			fmt.Printf("Submission failed: %v\n", err)
			fmt.Print("Retry? [y/N]: ")
			if a.in.Scan() && strings.EqualFold(strings.TrimSpace(a.in.Text()), "y") {
				continue
			}
			return false
		}
		fmt.Printf("Score: %.1f / %.1f (%.1f%%)\n", summary.Score, summary.TotalMarks, summary.Percentage)
		return true
	}
}

// render draws the current question.
func (a *app) render() {
	q, ok := a.ctrl.CurrentQuestion()
	if !ok {
		return
	}
	idx := a.ctrl.CurrentIndex()

	a.rule()
	mark := ""
	if a.ctrl.IsMarked(idx) {
		mark = " [review]"
	}
	fmt.Printf("Question %d/%d · %s left%s\n", idx+1, a.ctrl.QuestionCount(), clock(a.ctrl.TimeLeft()), mark)
	fmt.Println(q.Text)

	switch q.Type {
	case model.QuestionTypeMatch:
		left, right := q.MatchSides()
		for i, item := range left {
			fmt.Printf("  %d. %s\n", i+1, item)
		}
		for i, item := range right {
			fmt.Printf("  %s. %s\n", session.OptionLabel(i), item)
		}
	case model.QuestionTypeMCQ, model.QuestionTypeTrueFalse:
		for i, opt := range a.ctrl.OptionsFor(q.ID) {
			fmt.Printf("  %s. %s\n", session.OptionLabel(i), opt)
		}
	case model.QuestionTypeFillInTheBlank, model.QuestionTypeEssay:
		// Free-form entry, nothing to list.
	}

	if ans, ok := a.ctrl.AnswerFor(q.ID); ok && !ans.IsZero() {
		fmt.Printf("Your answer: %s\n", ans)
	}
}

// onEvent surfaces controller events as non-blocking notices.
func (a *app) onEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventTimeWarning:
		fmt.Printf("\n!! %s remaining\n", clock(ev.SecondsLeft))
	case session.EventTimeExpired:
		fmt.Println("\n!! Time is up. Submitting your answers.")
	case session.EventSaveFailed:
		fmt.Println("\n!! An answer could not be saved. It will be resent when you change it.")
	case session.EventSubmitFailed:
		fmt.Printf("\n!! Submission failed: %v. Use s to retry.\n", ev.Err)
	case session.EventNavigateResults:
		fmt.Printf("\nResults: attempt %s\n", ev.AttemptID)
	}
}

func (a *app) report(err error) {
	if err != nil {
		fmt.Printf("!! %v\n", err)
	}
}

// rule prints a horizontal separator sized to the terminal.
func (a *app) rule() {
	width := 60
	if w, _, err := term.GetSize(int(syscall.Stdin)); err == nil && w > 20 && w < 200 {
		width = w
	}
	fmt.Println(strings.Repeat("─", width))
}

// parseParts parses "k=v,k2=v2" into a parts map. Returns nil on malformed
// input.
func parseParts(arg string) map[string]string {
	parts := make(map[string]string)
	for _, pair := range strings.Split(arg, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil
		}
		parts[k] = v
	}
	return parts
}

// optionIndex resolves "2" or "B" style input to a zero-based option index,
// or -1 when the input is not a positional reference.
func optionIndex(arg string, count int) int {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= count {
		return n - 1
	}
	if len(arg) == 1 {
		c := strings.ToUpper(arg)[0]
		if c >= 'A' && int(c-'A') < count {
			return int(c - 'A')
		}
	}
	return -1
}

// clock formats seconds as m:ss.
func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
