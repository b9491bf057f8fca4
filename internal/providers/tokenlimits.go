package providers

import (
	"fmt"

	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

// TokenLimitFor maps an exact model name to its maximum output tokens. The
// Open Question of how to handle an unrecognized model name is resolved
// here against a fatal startup error rather than a substring heuristic: a
// typo'd or newly released model name must be added to this table
// explicitly before the process will start.
var TokenLimitFor = map[string]int{
	"gpt-4o":                      16384,
	"gpt-4o-mini":                 16384,
	"gpt-4.1":                     32768,
	"gpt-4.1-mini":                32768,
	"claude-3-5-sonnet-20241022":  8192,
	"claude-3-5-haiku-20241022":   8192,
	"claude-3-opus-20240229":      4096,
}

// TokenLimit returns the configured max-output-tokens for model, or an
// ErrUnknownModel-wrapping error if it has no table entry.
func TokenLimit(model string) (int, error) {
	limit, ok := TokenLimitFor[model]
	if !ok {
		return 0, fmt.Errorf("model %q: %w", model, ocrerrors.ErrUnknownModel)
	}
	return limit, nil
}
