package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// Answer holds a student's response to one question. Exactly one of Text or
// Parts is set: Parts carries multi-part responses (match pairs, multi-blank
// fills) keyed by sub-item, Text carries everything else.
type Answer struct {
	Text  string
	Parts map[string]string
}

// TextAnswer wraps a plain-text response.
func TextAnswer(s string) Answer {
	return Answer{Text: s}
}

// PartsAnswer wraps a multi-part response.
func PartsAnswer(m map[string]string) Answer {
	return Answer{Parts: m}
}

// IsZero reports whether the answer carries no response at all.
func (a Answer) IsZero() bool {
	return strings.TrimSpace(a.Text) == "" && len(a.Parts) == 0
}

// Encode produces the wire form expected by the platform: the raw text, or
// the parts map serialized as a JSON object.
func (a Answer) Encode() string {
	if len(a.Parts) > 0 {
		raw, _ := json.Marshal(a.Parts)
		return string(raw)
	}
	return a.Text
}

// DecodeAnswer reverses Encode. Persisted answers come back as strings; a
// string that parses as a JSON object is a multi-part answer.
func DecodeAnswer(raw string) Answer {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var parts map[string]string
		if err := json.Unmarshal([]byte(trimmed), &parts); err == nil {
			return Answer{Parts: parts}
		}
	}
	return Answer{Text: raw}
}

// Equal compares two answers by value, treating Parts maps as unordered.
func (a Answer) Equal(b Answer) bool {
	if a.Text != b.Text || len(a.Parts) != len(b.Parts) {
		return false
	}
	for k, v := range a.Parts {
		if b.Parts[k] != v {
			return false
		}
	}
	return true
}

// String renders the answer for display. Parts are shown in key order so the
// output is stable.
func (a Answer) String() string {
	if len(a.Parts) == 0 {
		return a.Text
	}
	keys := make([]string, 0, len(a.Parts))
	for k := range a.Parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+a.Parts[k])
	}
	return strings.Join(pairs, ", ")
}
