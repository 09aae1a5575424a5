package cardsource

import (
	"context"

	"taskrank/internal/domain"
)

// CardSource is a board-like service that tasks can be imported from.
type CardSource interface {
	// Info returns metadata about this source.
	Info() SourceInfo

	// CheckIdentity probes the credentials without fetching any cards.
	// A non-nil error is only returned for failures that are not about
	// reachability or credentials (e.g. a request that cannot be built).
	CheckIdentity(ctx context.Context) (Identity, error)

	// ListCards returns every card visible to the authenticated account.
	// A response that is not a list yields ErrMalformedResponse.
	ListCards(ctx context.Context) ([]domain.ExternalCard, error)

	// Close releases any resources held by the source.
	Close() error
}
