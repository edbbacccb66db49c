package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTemplate is returned when a mapping entry has no template field.
	ErrMissingTemplate = errors.New("dork entry has no template")

	// ErrInvalidShape is returned when a category value or entry has a layout
	// the loader does not understand.
	ErrInvalidShape = errors.New("unexpected catalog structure")

	// ErrUnknownRisk is returned when a category declares an unrecognized risk level.
	ErrUnknownRisk = errors.New("unknown risk level")
)

// Error describes a catalog that could not be loaded.
// It is fatal: no query is dispatched when the catalog fails to load.
type Error struct {
	// Path is the catalog file, empty when parsing from memory.
	Path string

	// Category is the category being parsed when the error occurred, if any.
	Category string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "dork catalog"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Category != "" {
		msg += fmt.Sprintf(" (category %q)", e.Category)
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}
