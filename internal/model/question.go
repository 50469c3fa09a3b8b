package model

import (
	"strings"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question variants. The platform API
// transports the type as a free-form string; NormalizeQuestionType maps it
// into this closed set so downstream switches stay exhaustive.
type QuestionType string

const (
	QuestionTypeMCQ            QuestionType = "MCQ"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeFillInTheBlank QuestionType = "FILL_IN_THE_BLANK"
	QuestionTypeMatch          QuestionType = "MATCH"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// NormalizeQuestionType maps a raw type string to a QuestionType.
// Unrecognized values fall back to ESSAY (free-text entry).
func NormalizeQuestionType(raw string) QuestionType {
	switch QuestionType(strings.ToUpper(strings.TrimSpace(raw))) {
	case QuestionTypeMCQ:
		return QuestionTypeMCQ
	case QuestionTypeTrueFalse:
		return QuestionTypeTrueFalse
	case QuestionTypeFillInTheBlank:
		return QuestionTypeFillInTheBlank
	case QuestionTypeMatch:
		return QuestionTypeMatch
	default:
		return QuestionTypeEssay
	}
}

// Question represents a single test question as served by the platform.
type Question struct {
	ID        uuid.UUID    `json:"id"`
	Text      string       `json:"question_text"`
	Type      QuestionType `json:"question_type"`
	Options   []string     `json:"options,omitempty"`
	Marks     float64      `json:"marks"`
	LeftSide  string       `json:"left_side,omitempty"`
	RightSide string       `json:"right_side,omitempty"`
}

// MatchSides splits the comma-separated left/right columns of a MATCH
// question into ordered item lists. Returns nil slices for other types.
func (q Question) MatchSides() (left, right []string) {
	if q.Type != QuestionTypeMatch {
		return nil, nil
	}
	return splitSide(q.LeftSide), splitSide(q.RightSide)
}

// MultiPart reports whether answers to this question are key-value maps
// rather than plain text (match pairs, multi-blank fills).
func (q Question) MultiPart() bool {
	return q.Type == QuestionTypeMatch || q.Type == QuestionTypeFillInTheBlank
}

func splitSide(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
