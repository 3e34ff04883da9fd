// Package ai provides the AI client interface and implementations.
package ai

import (
	"fmt"
	"strings"

	"github.com/medilens/internal/domain"
)

// MissingFieldsError reports required analysis keys the model left out.
type MissingFieldsError struct {
	Fields []string
}

// Error implements the error interface. The text is shown to end users.
func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("Analysis missing required fields: %s", strings.Join(e.Fields, ", "))
}

// DefaultValidator implements ResponseValidator with a key-presence check.
// Values are not inspected: an empty list or string still counts as present.
type DefaultValidator struct{}

// NewDefaultValidator creates a new response validator.
func NewDefaultValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// Validate returns a *MissingFieldsError naming every absent required key.
func (v *DefaultValidator) Validate(analysis domain.Analysis) error {
	if missing := analysis.Missing(); len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}
