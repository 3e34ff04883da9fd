// Package sanitizer masks personal identifiers in report text before it is
// sent to an AI provider.
package sanitizer

import (
	"regexp"
	"strings"
)

// Sanitizer handles report preprocessing and PII masking.
type Sanitizer struct {
	patterns []pattern
	maxSize  int
}

type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// Pattern definitions for identifiers commonly printed on lab and clinic reports.
// Order matters: labelled identifiers are masked before the bare number forms.
var defaultPatterns = []pattern{
	// Medical record, patient and insurance numbers with a label
	{regexp.MustCompile(`(?i)\b(MRN|medical\s+record\s+(?:no|number)|patient\s+id|UHID|member\s+id|policy\s+(?:no|number))(\s*[:#.]?\s*)([A-Z0-9][A-Z0-9\-]{3,})`), "${1}${2}[REDACTED]"},

	// US social security numbers
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},

	// Email addresses
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},

	// Phone numbers with a label; the number stays on the label's line
	{regexp.MustCompile(`(?i)\b(phone|telephone|tel|mobile|mob|fax|contact(?:[ \t]+(?:no|number))?)([ \t]*[:#.]?[ \t]*)(\+?[\d(][\d \t().-]{6,}\d)`), "${1}${2}[PHONE]"},

	// Unlabelled phone numbers need a country code, an area code in
	// parentheses or dash/dot separators. Space-separated digit runs are
	// left alone since lab tables print reference ranges that way.
	{regexp.MustCompile(`\+\d{1,3}[ .-]?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\(\d{3}\)[ ]?\d{3}[.-]\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{4}\b`), "[PHONE]"},
}

// New creates a new Sanitizer with default patterns.
func New(maxSize int) *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns,
		maxSize:  maxSize,
	}
}

// NewWithPatterns creates a Sanitizer that replaces every match of the given
// patterns with "[REDACTED]".
func NewWithPatterns(maxSize int, patterns []*regexp.Regexp) *Sanitizer {
	ps := make([]pattern, 0, len(patterns))
	for _, re := range patterns {
		ps = append(ps, pattern{re: re, replacement: "[REDACTED]"})
	}
	return &Sanitizer{
		patterns: ps,
		maxSize:  maxSize,
	}
}

// Sanitize trims the text, enforces the size limit and masks identifiers.
func (s *Sanitizer) Sanitize(text string) string {
	text = strings.TrimSpace(text)

	if s.maxSize > 0 && len(text) > s.maxSize {
		text = truncateUTF8(text, s.maxSize)
	}

	return s.mask(text)
}

func (s *Sanitizer) mask(text string) string {
	for _, p := range s.patterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// IsEmpty checks if the text is empty or whitespace only.
func (s *Sanitizer) IsEmpty(text string) bool {
	return strings.TrimSpace(text) == ""
}

// IsTooLarge checks if the text exceeds the maximum size.
func (s *Sanitizer) IsTooLarge(text string) bool {
	return s.maxSize > 0 && len(text) > s.maxSize
}

// SanitizationStats describes what Sanitize changed.
type SanitizationStats struct {
	OriginalSize  int
	SanitizedSize int
	Truncated     bool
	MaskedCount   int
}

// SanitizeWithStats performs sanitization and returns statistics.
func (s *Sanitizer) SanitizeWithStats(text string) (string, SanitizationStats) {
	stats := SanitizationStats{
		OriginalSize: len(text),
		Truncated:    s.IsTooLarge(strings.TrimSpace(text)),
	}

	for _, p := range s.patterns {
		stats.MaskedCount += len(p.re.FindAllStringIndex(text, -1))
	}

	sanitized := s.Sanitize(text)
	stats.SanitizedSize = len(sanitized)

	return sanitized, stats
}
