package crawl

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is wrapped by the InvalidInputError for a malformed URL.
	ErrInvalidURL = errors.New("Invalid URL format")

	// ErrHostNotAllowed is wrapped by the InvalidInputError for a host the
	// policy rejects.
	ErrHostNotAllowed = errors.New("URL not allowed")
)

// InvalidInputError is returned for input rejected before any page is acquired.
type InvalidInputError struct {
	URL string
	Err error
}

func (e *InvalidInputError) Error() string {
	return e.Err.Error()
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

// NavigationError is returned when every navigation attempt failed. Its
// message is that of the last attempt's error.
type NavigationError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return e.Err.Error()
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ExtractionError is returned when reading the rendered page failed.
type ExtractionError struct {
	// Target is what was being read: "content" or "title"
	Target string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to read page %s: %v", e.Target, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ReleaseError records a page that could not be closed. It never becomes a
// crawl's outcome; it is only logged and counted.
type ReleaseError struct {
	URL string
	Err error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("error closing page for %s: %v", e.URL, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}
