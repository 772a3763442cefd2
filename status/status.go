// Package status turns homework records into notification text.
package status

import (
	"errors"
	"fmt"

	"homework-notifier/pkg/homework"
)

// MissingFieldError indicates a homework record without a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("homework record has no %q field", e.Field)
}

// UnknownStatusError indicates a status code outside the verdict table.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	if e.Status == "" {
		return "homework record has no status"
	}
	return fmt.Sprintf("unknown homework status: %q", e.Status)
}

// IsMissingField checks if an error is a MissingFieldError.
func IsMissingField(err error) bool {
	var missing *MissingFieldError
	return errors.As(err, &missing)
}

// IsUnknownStatus checks if an error is an UnknownStatusError.
func IsUnknownStatus(err error) bool {
	var unknown *UnknownStatusError
	return errors.As(err, &unknown)
}

// Parse builds the notification sentence for a homework record.
func Parse(hw *homework.Homework) (string, error) {
	if hw == nil || hw.Name == "" {
		return "", &MissingFieldError{Field: "homework_name"}
	}
	verdict, ok := homework.Verdict(hw.Status)
	if !ok {
		return "", &UnknownStatusError{Status: hw.Status}
	}
	return fmt.Sprintf("Changed review status for \"%s\". %s", hw.Name, verdict), nil
}
