package session

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/examind/examind-cli/internal/model"
)

// derivePresentation computes the presentation order of questions and the
// per-question option order for this session. It runs exactly once per
// start/resume; the result is held on the Controller and never re-randomized,
// so navigation and re-rendering always see the same order.
func derivePresentation(rng *rand.Rand, test *model.TestDefinition) ([]model.Question, map[uuid.UUID][]string) {
	order := make([]model.Question, len(test.Questions))
	copy(order, test.Questions)

	if test.Settings.ShuffleQuestions {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	options := make(map[uuid.UUID][]string, len(order))
	for _, q := range order {
		opts := make([]string, len(q.Options))
		copy(opts, q.Options)
		// Each question's options are permuted independently. The displayed
		// positional label maps back to the underlying option value through
		// this slice; grading stays server-side on values, not labels.
		if test.Settings.ShuffleOptions && len(opts) > 1 {
			rng.Shuffle(len(opts), func(i, j int) {
				opts[i], opts[j] = opts[j], opts[i]
			})
		}
		options[q.ID] = opts
	}

	return order, options
}

// OptionLabel returns the positional letter (A, B, C, ...) shown next to the
// i-th displayed option.
func OptionLabel(i int) string {
	if i < 0 {
		return "?"
	}
	label := ""
	for {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	return label
}
