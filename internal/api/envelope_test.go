package api

import (
	"testing"
)

func TestDecodeEnvelopeSuccess(t *testing.T) {
	body := []byte(`{
		"data": {"attempt_id": "a-1", "score": 4.5},
		"metadata": {"request_id": "r-1", "timestamp": "2026-03-01T10:00:00Z"}
	}`)

	env, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Error != nil {
		t.Fatalf("unexpected error body: %+v", env.Error)
	}

	var payload struct {
		AttemptID string  `json:"attempt_id"`
		Score     float64 `json:"score"`
	}
	if err := env.DecodeData(&payload); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if payload.AttemptID != "a-1" || payload.Score != 4.5 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestDecodeEnvelopeError(t *testing.T) {
	body := []byte(`{
		"data": null,
		"error": {"code": "ATTEMPT_COMPLETED", "message": "done"},
		"metadata": {"request_id": "r-2", "timestamp": "2026-03-01T10:00:00Z"}
	}`)

	env, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Error == nil || env.Error.Code != ErrAttemptCompleted {
		t.Fatalf("error body = %+v, want ATTEMPT_COMPLETED", env.Error)
	}
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("<html>bad gateway</html>")); err == nil {
		t.Error("expected error for non-JSON body")
	}
}

func TestGetMessageCoversAllCodes(t *testing.T) {
	codes := []ErrCode{
		ErrTokenRequired, ErrTokenInvalid, ErrTokenExpired,
		ErrValidation, ErrInvalidID,
		ErrTestNotFound, ErrAttemptNotFound, ErrAttemptCompleted, ErrAttemptExpired,
		ErrInternal,
	}
	fallback := GetMessage("SOMETHING_ELSE")
	for _, code := range codes {
		if msg := GetMessage(code); msg == "" || msg == fallback {
			t.Errorf("GetMessage(%s) = %q, want a dedicated message", code, msg)
		}
	}
}
