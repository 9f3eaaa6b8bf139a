// Package timestamp repairs Slack message timestamps into the canonical
// "<seconds>.<fraction>" form the Slack API requires.
//
// Slack identifies messages by strings like "1690000000.123456", but the
// values that arrive in action payloads are not always clean: locales swap
// the dot for a comma, copy/paste adds whitespace, and some clients embed
// the digits in other noise. Normalize is a best-effort repair; callers must
// treat ErrNotRepairable as "skip the API call that needed this value",
// never as a request-level failure.
package timestamp

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotRepairable indicates that a raw value could not be coerced into the
// canonical timestamp shape.
var ErrNotRepairable = errors.New("timestamp: not repairable")

var (
	canonical = regexp.MustCompile(`^\d+\.\d+$`)
	nonDigit  = regexp.MustCompile(`\D`)
)

// minDigits is the fewest digits a plausible second-resolution Slack
// timestamp can carry (10 digits of Unix seconds).
const minDigits = 10

// Valid reports whether raw already has the canonical shape.
func Valid(raw string) bool {
	return canonical.MatchString(raw)
}

// Normalize returns raw coerced into "<seconds>.<fraction>" form, applying
// repairs in order and stopping at the first that yields a canonical value:
//
//  1. accept raw as-is,
//  2. trim whitespace and swap a single comma for a dot,
//  3. strip every non-digit and re-insert the dot at a plausible split.
//
// When no repair succeeds it returns ErrNotRepairable.
func Normalize(raw string) (string, error) {
	if canonical.MatchString(raw) {
		return raw, nil
	}

	trimmed := strings.TrimSpace(raw)
	if strings.Count(trimmed, ",") == 1 {
		candidate := strings.Replace(trimmed, ",", ".", 1)
		if canonical.MatchString(candidate) {
			return candidate, nil
		}
	}
	if canonical.MatchString(trimmed) {
		return trimmed, nil
	}

	digits := nonDigit.ReplaceAllString(trimmed, "")
	if len(digits) >= minDigits {
		split := len(digits) / 2
		if split > minDigits {
			split = minDigits
		}
		candidate := digits[:split] + "." + digits[split:]
		if canonical.MatchString(candidate) {
			return candidate, nil
		}
	}

	return "", ErrNotRepairable
}
