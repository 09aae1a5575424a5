package importer

import (
	"errors"
	"fmt"
)

// Kind classifies an import failure.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindFetch      Kind = "fetch"
	KindValidation Kind = "validation"
	KindEmpty      Kind = "empty"
	KindStore      Kind = "store"
)

// Error is returned for every failed import.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
	// Written counts tasks already committed when a store failure stopped the run.
	Written int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an import Error of kind k.
func IsKind(err error, k Kind) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == k
}

// CardError is a normalization failure for one card. It drops the card and
// never fails the run.
type CardError struct {
	CardID string
	Err    error
}

func (e *CardError) Error() string {
	return fmt.Sprintf("card %s: %v", e.CardID, e.Err)
}

func (e *CardError) Unwrap() error { return e.Err }
