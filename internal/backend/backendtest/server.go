// Package backendtest provides an in-memory stand-in for the Examind
// platform API. It implements the five operations the client consumes, with
// the same envelope and error-code vocabulary as the real service, plus
// switches for simulating failures.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/examind/examind-cli/internal/api"
	"github.com/examind/examind-cli/internal/model"
	"github.com/examind/examind-cli/internal/validator"
)

var setupOnce sync.Once

// Server hosts one test definition and at most one attempt for it, mirroring
// the platform's one-active-attempt-per-student rule.
type Server struct {
	URL string

	httpSrv *httptest.Server
	secret  []byte

	mu      sync.Mutex
	test    model.TestDefinition
	correct map[uuid.UUID]string
	attempt *model.Attempt
	answers map[uuid.UUID]string

	// Failure switches, safe to flip mid-test.
	FailAnswers  atomic.Bool
	FailComplete atomic.Bool

	answerCalls   atomic.Int32
	completeCalls atomic.Int32
}

// New starts an in-memory platform serving the given test definition.
// correct maps question id to the graded answer text; it may be nil when a
// test does not care about scores.
func New(test model.TestDefinition, correct map[uuid.UUID]string) *Server {
	setupOnce.Do(func() {
		gin.SetMode(gin.TestMode)
		validator.Setup()
	})

	s := &Server{
		secret:  []byte("backendtest-secret"),
		test:    test,
		correct: correct,
		answers: make(map[uuid.UUID]string),
	}

	r := gin.New()
	v1 := r.Group("/api/v1", s.requireToken)
	v1.GET("/tests/:test_id", s.getTestDetails)
	v1.POST("/tests/:test_id/attempts", s.startAttempt)
	v1.POST("/attempts/:attempt_id/answers", s.submitAnswer)
	v1.GET("/attempts/:attempt_id/answers", s.getSavedAnswers)
	v1.POST("/attempts/:attempt_id/complete", s.completeAttempt)

	s.httpSrv = httptest.NewServer(r)
	s.URL = s.httpSrv.URL + "/api/v1"
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Token issues a signed bearer token the server will accept.
func (s *Server) Token(studentID, name string) string {
	claims := jwt.MapClaims{
		"sub":  studentID,
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// SeedAttempt installs a pre-existing attempt and its persisted answers,
// simulating a student who already started (or finished) the test.
func (s *Server) SeedAttempt(attempt model.Attempt, answers map[uuid.UUID]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := attempt
	s.attempt = &a
	s.answers = make(map[uuid.UUID]string, len(answers))
	for qid, ans := range answers {
		s.answers[qid] = ans
	}
}

// TestID returns the id of the hosted test definition.
func (s *Server) TestID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.test.ID
}

// Attempt returns a copy of the current attempt, or nil if none exists.
func (s *Server) Attempt() *model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil {
		return nil
	}
	a := *s.attempt
	return &a
}

// Answers returns a copy of the persisted answers.
func (s *Server) Answers() map[uuid.UUID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(s.answers))
	for qid, ans := range s.answers {
		out[qid] = ans
	}
	return out
}

// AnswerCalls returns how many submit-answer requests reached the server.
func (s *Server) AnswerCalls() int { return int(s.answerCalls.Load()) }

// CompleteCalls returns how many complete-attempt requests reached the server.
func (s *Server) CompleteCalls() int { return int(s.completeCalls.Load()) }

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) requireToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if len(header) < 8 || header[:7] != "Bearer " {
		api.AbortFail(c, http.StatusUnauthorized, api.ErrTokenRequired)
		return
	}
	_, err := jwt.Parse(header[7:], func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		api.AbortFail(c, http.StatusUnauthorized, api.ErrTokenInvalid)
		return
	}
	c.Next()
}

func (s *Server) getTestDetails(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if testID != s.test.ID {
		api.Fail(c, http.StatusNotFound, api.ErrTestNotFound)
		return
	}

	api.Success(c, http.StatusOK, gin.H{"test": s.test, "attempt": s.attempt})
}

func (s *Server) startAttempt(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if testID != s.test.ID {
		api.Fail(c, http.StatusNotFound, api.ErrTestNotFound)
		return
	}

	if s.attempt != nil {
		if s.attempt.IsCompleted {
			api.Fail(c, http.StatusConflict, api.ErrAttemptCompleted)
			return
		}
		// Starting twice resumes the open attempt rather than failing.
		api.Success(c, http.StatusOK, gin.H{"attempt": s.attempt, "test": s.test})
		return
	}

	s.attempt = &model.Attempt{
		ID:        uuid.New(),
		StartTime: time.Now(),
	}
	api.Success(c, http.StatusCreated, gin.H{"attempt": s.attempt, "test": s.test})
}

type answerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer"`
}

func (s *Server) submitAnswer(c *gin.Context) {
	s.answerCalls.Add(1)

	if s.FailAnswers.Load() {
		api.Fail(c, http.StatusInternalServerError, api.ErrInternal)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	var req answerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		api.FailWithFields(c, http.StatusBadRequest, api.ErrValidation, fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil || s.attempt.ID != attemptID {
		api.Fail(c, http.StatusNotFound, api.ErrAttemptNotFound)
		return
	}
	if s.attempt.IsCompleted {
		api.Fail(c, http.StatusConflict, api.ErrAttemptCompleted)
		return
	}

	// Last write wins per question, as in production.
	s.answers[req.QuestionID] = req.Answer
	api.Success(c, http.StatusOK, gin.H{"saved": true})
}

func (s *Server) getSavedAnswers(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil || s.attempt.ID != attemptID {
		api.Fail(c, http.StatusNotFound, api.ErrAttemptNotFound)
		return
	}

	saved := make([]model.SavedAnswer, 0, len(s.answers))
	for qid, ans := range s.answers {
		saved = append(saved, model.SavedAnswer{QuestionID: qid, AnswerText: ans})
	}
	api.Success(c, http.StatusOK, gin.H{"answers": saved})
}

func (s *Server) completeAttempt(c *gin.Context) {
	s.completeCalls.Add(1)

	if s.FailComplete.Load() {
		api.Fail(c, http.StatusInternalServerError, api.ErrInternal)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil || s.attempt.ID != attemptID {
		api.Fail(c, http.StatusNotFound, api.ErrAttemptNotFound)
		return
	}

	if !s.attempt.IsCompleted {
		now := time.Now()
		score := s.grade()
		s.attempt.IsCompleted = true
		s.attempt.Score = &score
		s.attempt.FinishedAt = &now
	}

	summary := model.ScoreSummary{
		AttemptID:  s.attempt.ID,
		Score:      *s.attempt.Score,
		TotalMarks: s.test.TotalMarks,
	}
	if s.test.TotalMarks > 0 {
		summary.Percentage = summary.Score / s.test.TotalMarks * 100
	}
	summary.Passed = summary.Percentage >= s.test.Settings.PassPercentage
	api.Success(c, http.StatusOK, summary)
}

// grade scores the stored answers against the correct-answer key. Questions
// without a key entry score zero, like ungraded essays.
func (s *Server) grade() float64 {
	var score float64
	for _, q := range s.test.Questions {
		want, ok := s.correct[q.ID]
		if !ok {
			continue
		}
		if got, answered := s.answers[q.ID]; answered && got == want {
			score += q.Marks
		}
	}
	return score
}
