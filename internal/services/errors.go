package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolchainUnavailable = errors.New("toolchain unavailable")
	ErrValidation           = errors.New("validation error")
	ErrConversion           = errors.New("conversion failure")
	ErrJobInProgress        = errors.New("conversion already in progress")
	ErrConfiguration        = errors.New("configuration error")
)

// Wrap builds an error message that includes phase context while tagging it with
// the provided marker for later outcome classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrConversion
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsUserRecoverable reports whether the failure can be fixed by the user
// without touching the job inputs (installing tooling, waiting for another run).
func IsUserRecoverable(err error) bool {
	return errors.Is(err, ErrToolchainUnavailable) || errors.Is(err, ErrJobInProgress)
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
