package cardsource

import "errors"

var (
	// ErrMalformedResponse is returned when a source replies with something other than a list of cards.
	ErrMalformedResponse = errors.New("malformed card response")

	// ErrInvalidConfig is returned when source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid source configuration")

	// ErrUnsupported is returned for unknown source types.
	ErrUnsupported = errors.New("unsupported source type")
)
