package browser

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoEngine is returned when a manager was built without an engine.
var ErrNoEngine = errors.New("browser engine not configured")

// InitializationError reports a failed browser launch. The next caller of
// Manager.Browser starts a fresh launch.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize browser: %v", e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// CapacityExceededError reports that no page slot became free within the
// admission wait ceiling.
type CapacityExceededError struct {
	MaxPages int
	Waited   time.Duration
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("maximum number of pages (%d) reached. Waited %s for available slot", e.MaxPages, humanWait(e.Waited))
}

// humanWait renders whole minutes and seconds in words, anything finer as a
// Go duration.
func humanWait(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int64(d/time.Second), "second")
	default:
		return d.String()
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// IsCapacityExceeded returns true if err is, or wraps, a CapacityExceededError.
func IsCapacityExceeded(err error) bool {
	var capErr *CapacityExceededError
	return errors.As(err, &capErr)
}

// IsInitializationError returns true if err is, or wraps, an InitializationError.
func IsInitializationError(err error) bool {
	var initErr *InitializationError
	return errors.As(err, &initErr)
}
