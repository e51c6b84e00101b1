package tasteid

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData means the user has too few ratings; the caller should ask
	// for more instead of retrying.
	ErrInsufficientData = errors.New("insufficient rating history")
	// ErrConflict means another recompute for the same user won the race.
	ErrConflict = errors.New("concurrent recompute conflict")
	// ErrComputation means a component failed mid-run; nothing was persisted.
	ErrComputation = errors.New("taste computation failed")
)

// IsRetryable reports whether err is a conflict or computation fault that a
// caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrComputation)
}

func insufficientData(have, need int) error {
	return fmt.Errorf("%w: have %d ratings, need %d", ErrInsufficientData, have, need)
}
