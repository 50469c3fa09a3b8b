package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examind/examind-cli/internal/api"
	"github.com/examind/examind-cli/internal/model"
)

// Client is the HTTP gateway to the Examind platform API. It exposes the five
// operations a test session needs and maps envelope error codes to typed
// errors. All methods are safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	log     zerolog.Logger
}

// New creates a Client for the given API base URL and bearer token.
func New(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
		log:     log.With().Str("component", "backend_client").Logger(),
	}
}

// TestDetails is the payload of the test-details operation: the definition
// plus the student's current attempt, if any.
type TestDetails struct {
	Test    model.TestDefinition `json:"test"`
	Attempt *model.Attempt       `json:"attempt,omitempty"`
}

// StartResult is the payload of the start-attempt operation: the new attempt
// and a definition snapshot (questions + settings as of the start).
type StartResult struct {
	Attempt model.Attempt        `json:"attempt"`
	Test    model.TestDefinition `json:"test"`
}

// GetTestDetails fetches the test definition and the current attempt state.
func (c *Client) GetTestDetails(ctx context.Context, testID uuid.UUID) (*TestDetails, error) {
	var details TestDetails
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tests/%s", testID), nil, &details); err != nil {
		return nil, fmt.Errorf("get test details: %w", err)
	}
	normalizeQuestions(details.Test.Questions)
	return &details, nil
}

// StartAttempt asks the platform to open a new attempt for the test. Returns
// ErrAttemptCompleted (wrapped) when a completed attempt already exists.
func (c *Client) StartAttempt(ctx context.Context, testID uuid.UUID) (*StartResult, error) {
	var result StartResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tests/%s/attempts", testID), struct{}{}, &result); err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	normalizeQuestions(result.Test.Questions)
	return &result, nil
}

// SubmitAnswer persists one answer for the attempt. Callers treat failures as
// non-fatal; the platform is last-write-wins per question.
func (c *Client) SubmitAnswer(ctx context.Context, attemptID, questionID uuid.UUID, answer string) error {
	body := struct {
		QuestionID uuid.UUID `json:"question_id"`
		Answer     string    `json:"answer"`
	}{QuestionID: questionID, Answer: answer}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/attempts/%s/answers", attemptID), body, nil); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	return nil
}

// GetSavedAnswers fetches every answer persisted for the attempt so far.
func (c *Client) GetSavedAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.SavedAnswer, error) {
	var payload struct {
		Answers []model.SavedAnswer `json:"answers"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/attempts/%s/answers", attemptID), nil, &payload); err != nil {
		return nil, fmt.Errorf("get saved answers: %w", err)
	}
	return payload.Answers, nil
}

// CompleteAttempt finalizes the attempt and returns the score summary.
func (c *Client) CompleteAttempt(ctx context.Context, attemptID uuid.UUID) (*model.ScoreSummary, error) {
	var summary model.ScoreSummary
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/attempts/%s/complete", attemptID), struct{}{}, &summary); err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	return &summary, nil
}

// do performs one request/response round trip through the platform envelope.
// A structured envelope error becomes an *APIError; out may be nil when the
// caller only cares about success.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	env, err := api.DecodeEnvelope(raw)
	if err != nil {
		return fmt.Errorf("%s %s (http %d): %w", method, path, resp.StatusCode, err)
	}

	if env.Error != nil {
		c.log.Debug().
			Str("code", string(env.Error.Code)).
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("platform reported error")
		return &APIError{Code: env.Error.Code, Message: env.Error.Message, Status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: unexpected http %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := env.DecodeData(out); err != nil {
			return err
		}
	}
	return nil
}

// normalizeQuestions coerces free-form type strings into the closed variant
// set so the rest of the client never sees an unknown type.
func normalizeQuestions(questions []model.Question) {
	for i := range questions {
		questions[i].Type = model.NormalizeQuestionType(string(questions[i].Type))
	}
}
