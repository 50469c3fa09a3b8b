package api

import (
	"encoding/json"
	"fmt"
)

// Envelope is the standardized JSON envelope every platform response uses.
// Data stays raw so callers can decode it into their own payload types.
type Envelope struct {
	Data     json.RawMessage `json:"data"`
	Error    *ErrorBody      `json:"error,omitempty"`
	Metadata Metadata        `json:"metadata"`
}

// ErrorBody is the structured error half of the envelope.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Metadata carries request tracing and timing information.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// DecodeEnvelope parses a raw response body. A non-nil *ErrorBody means the
// platform reported a structured failure; the error return is reserved for
// malformed bodies.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// DecodeData unmarshals the envelope's data payload into dst.
func (e *Envelope) DecodeData(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope has no data payload")
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}
