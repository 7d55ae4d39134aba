// backend/src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	MaxInstrumentIDLength = 20
	MaxListLimit          = 500
)

// Instrument ids look like "7203.T", "AAPL" or "BRK-B".
var instrumentIDRegex = regexp.MustCompile(`^[A-Za-z0-9^][A-Za-z0-9.\-=]*$`)

// ValidateInstrumentID checks a ticker-like instrument id taken from a URL.
func ValidateInstrumentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: instrument id cannot be empty", ErrValidationFailed)
	}
	if len(id) > MaxInstrumentIDLength {
		return fmt.Errorf("%w: instrument id exceeds maximum length of %d characters", ErrValidationFailed, MaxInstrumentIDLength)
	}
	if !instrumentIDRegex.MatchString(id) {
		return fmt.Errorf("%w: instrument id ('%s') is not in the expected format", ErrValidationFailed, id)
	}
	return nil
}

// ValidateAnalysisID checks that an id is a UUID.
func ValidateAnalysisID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: analysis id ('%s') is not a valid UUID", ErrValidationFailed, id)
	}
	return nil
}

// ParseLimit reads an optional positive list limit, capped at MaxListLimit.
func ParseLimit(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrValidationFailed)
	}
	if n > MaxListLimit {
		n = MaxListLimit
	}
	return n, nil
}
