// Package validate holds the stateless input checks applied before a user
// record is written.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var markupStripper = strings.NewReplacer("<", "", ">", "")

// Email reports whether value looks like local@domain.tld.
func Email(value string) bool {
	if value == "" {
		return false
	}
	return emailPattern.MatchString(value)
}

// EmailValue is Email for loosely typed input. Non-strings are never valid.
func EmailValue(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return Email(s)
}

// RequiredFields returns one "<field> is required" message per field that is
// missing from data, nil, or blank once rendered as a string. Messages follow
// the order of fields; the result is nil when everything is present.
func RequiredFields(data map[string]any, fields ...string) []string {
	var errs []string
	for _, field := range fields {
		v, ok := data[field]
		if !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
			errs = append(errs, field+" is required")
		}
	}
	return errs
}

// Sanitize trims s and strips every '<' and '>'.
func Sanitize(s string) string {
	return markupStripper.Replace(strings.TrimSpace(s))
}

// SanitizeValue applies Sanitize to strings and returns other values unchanged.
func SanitizeValue(v any) any {
	if s, ok := v.(string); ok {
		return Sanitize(s)
	}
	return v
}
