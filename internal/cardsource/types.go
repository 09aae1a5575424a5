// Package cardsource fetches task-like cards from external board services.
package cardsource

// SourceType identifies which service the cards came from.
type SourceType string

const (
	SourceTypeTrello   SourceType = "trello"   // Trello REST API
	SourceTypeJSONFile SourceType = "jsonfile" // JSON array of cards on disk
)

// IdentityStatus is the outcome of a credential probe.
type IdentityStatus int

const (
	IdentityOK IdentityStatus = iota
	IdentityUnauthorized
	IdentityUnreachable
)

func (s IdentityStatus) String() string {
	switch s {
	case IdentityOK:
		return "ok"
	case IdentityUnauthorized:
		return "unauthorized"
	case IdentityUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Identity describes the external account behind the configured credentials.
type Identity struct {
	Status   IdentityStatus `json:"status"`
	Detail   string         `json:"detail,omitempty"` // HTTP status text or transport error
	MemberID string         `json:"member_id,omitempty"`
	Username string         `json:"username,omitempty"`
}

// SourceInfo provides metadata about a card source.
type SourceInfo struct {
	Type        SourceType        `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Config      map[string]string `json:"config,omitempty"`
}
