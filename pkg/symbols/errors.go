package symbols

import (
	"fmt"
	"strings"
)

// OpenError is returned by Load when the executable could not be opened.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("could not open file %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// FormatError is returned by Load when the executable is not an ELF file,
// carries no debug information, or its debug information is malformed.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("could not load debugging symbols from %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// NotFoundError is returned when a location does not map to any address.
type NotFoundError struct {
	Location string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("location %q not found", e.Location)
}

// AmbiguousError is returned when a location matches more than one
// function or source file.
type AmbiguousError struct {
	Location   string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("location %q ambiguous: %s", e.Location, strings.Join(e.Candidates, ", "))
}
