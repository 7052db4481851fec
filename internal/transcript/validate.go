package transcript

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ValidationError describes a malformed event. In batch submissions the item
// is counted as failed and the batch continues; single-item paths surface it
// directly.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks an inbound event against the fragment invariants.
func Validate(ev Event) error {
	if ev.Text == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(ev.Text) > MaxTextChars {
		return &ValidationError{Field: "text", Reason: fmt.Sprintf("exceeds %d chars", MaxTextChars)}
	}
	if ev.Confidence < 0 || ev.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: "must be in [0,1]"}
	}
	if ev.StartMs >= ev.EndMs {
		return &ValidationError{Field: "startMs", Reason: "must be before endMs"}
	}
	return nil
}
