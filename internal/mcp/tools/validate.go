package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/moolen/magma/internal/errors"
)

// FieldError is one schema violation at a given input path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationErrors aggregates all schema violations for one tool call.
// The handler renders each entry as its own "path: message" line.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	lines := make([]string, len(v))
	for i, fe := range v {
		lines[i] = fmt.Sprintf("%s: %s", fe.Path, fe.Message)
	}
	return strings.Join(lines, "\n")
}

// validator accumulates field errors while a tool checks its input.
type validator struct {
	errs ValidationErrors
}

func (v *validator) fail(path, format string, args ...interface{}) {
	v.errs = append(v.errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) requireString(path, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(path, "must not be empty")
	}
}

func (v *validator) requireStrings(path string, values []string) {
	if len(values) == 0 {
		v.fail(path, "must contain at least one element")
		return
	}
	for i, value := range values {
		if strings.TrimSpace(value) == "" {
			v.fail(fmt.Sprintf("%s[%d]", path, i), "must not be empty")
		}
	}
}

func (v *validator) intInRange(path string, value, min, max int) {
	if value < min || value > max {
		v.fail(path, "must be between %d and %d, got %d", min, max, value)
	}
}

func (v *validator) floatInRange(path string, value, min, max float64) {
	if value < min || value > max {
		v.fail(path, "must be between %g and %g, got %g", min, max, value)
	}
}

// result returns the accumulated errors, or nil when the input passed.
func (v *validator) result() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

// decodeInput unmarshals the raw tool arguments, mapping malformed JSON
// to a parse error. A nil or empty payload decodes as all-defaults.
func decodeInput(op string, raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewParse(op, "invalid tool input: %v", err)
	}
	return nil
}
