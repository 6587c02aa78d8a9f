package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks secrets and payment identifiers in log output.
type Redactor struct {
	rules []rule
}

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			// Bearer tokens
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`), "Bearer " + redacted},

			// Key/value secrets in JSON or k=v form; the key is kept
			{regexp.MustCompile(`(?i)("?[a-z_]*(?:password|passwd|pwd|secret|api_key|apikey|token)"?\s*[:=]\s*"?)[^\s",}]+`), "${1}" + redacted},

			// AWS access keys
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), redacted},

			// IBANs
			{regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`), redacted},

			// Card numbers (13-19 digits, optional separators)
			{regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), redacted},
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{pattern: re, replacement: redacted})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, rule := range r.rules {
		result = rule.pattern.ReplaceAllString(result, rule.replacement)
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
