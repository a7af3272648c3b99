package manifest

import (
	"fmt"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
)

// Position is a location in a descriptor file.
type Position struct {
	Filename string
	Line     int
	Column   int
}

func (p Position) String() string {
	if p.Line == 0 {
		return p.Filename
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// ParseError reports a syntax or declaration error.
type ParseError struct {
	Pos     Position
	Message string
	Wrapped error
}

func (e *ParseError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s: %s", e.Pos, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}

// Declaration is one bundle call.
type Declaration struct {
	Pos  Position
	Spec bundlestate.BundleSpec
}

// File is a parsed descriptor file.
type File struct {
	Path         string
	Platforms    []bundlestate.Properties
	Declarations []Declaration

	// Warnings lists ignored keyword arguments and statements.
	Warnings []*ParseError
}

// Summary counts the changes File.Apply made to a State.
type Summary struct {
	Added   int
	Updated int
	Removed int
}
