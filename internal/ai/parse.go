// Package ai provides the AI client interface and implementations.
package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/medilens/internal/domain"
)

// ErrMalformedAnalysis is returned when the extraction answer is not JSON
// or decodes to null or a scalar.
var ErrMalformedAnalysis = errors.New("malformed analysis")

// StripFences removes every ```json and ``` marker anywhere in s and trims
// surrounding whitespace.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// DecodeAnalysis strips code fences from raw and decodes the remainder.
// An array has no named keys and decodes to an empty Analysis, so the
// validator reports every required field missing. Null and scalars are
// malformed.
func DecodeAnalysis(raw string) (domain.Analysis, error) {
	var decoded any
	if err := json.Unmarshal([]byte(StripFences(raw)), &decoded); err != nil {
		return nil, errors.Join(ErrMalformedAnalysis, err)
	}
	switch v := decoded.(type) {
	case map[string]any:
		return domain.Analysis(v), nil
	case []any:
		return domain.Analysis{}, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrMalformedAnalysis, decoded)
	}
}

// ParseAnalysis decodes raw and checks it with v. Errors wrap
// ErrMalformedAnalysis or are a *MissingFieldsError.
func ParseAnalysis(raw string, v ResponseValidator) (domain.Analysis, error) {
	analysis, err := DecodeAnalysis(raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = NewDefaultValidator()
	}
	if err := v.Validate(analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// IsAffirmative reports whether a classification answer means yes. Anything
// other than a case-insensitive "yes" is a no.
func IsAffirmative(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}

// checkImage rejects media the providers cannot transcribe. The error is
// permanent, so the orchestrator does not retry it.
func checkImage(mimeType string) error {
	if !strings.HasPrefix(mimeType, "image/") {
		return domain.WrapError("extract_text", fmt.Errorf("%w: %q", domain.ErrUnsupportedMedia, mimeType), false)
	}
	return nil
}
