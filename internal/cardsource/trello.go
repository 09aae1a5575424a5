package cardsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"taskrank/internal/domain"
)

const (
	DefaultTrelloBaseURL = "https://api.trello.com"
	DefaultTrelloTimeout = 30 * time.Second

	trelloCardFields = "name,desc,due,dueComplete,labels,idChecklists"
)

// TrelloSource implements CardSource for the cards of the Trello member
// owning the API token.
type TrelloSource struct {
	apiKey  string
	token   string
	baseURL string
	client  *http.Client
	info    SourceInfo
}

// TrelloConfig holds configuration for the Trello source.
type TrelloConfig struct {
	APIKey  string // Trello API key (or TRELLO_API_KEY)
	Token   string // Trello member token (or TRELLO_TOKEN)
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

type trelloMember struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type trelloCard struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Desc         string            `json:"desc"`
	Due          *string           `json:"due"`
	DueComplete  bool              `json:"dueComplete"`
	Labels       []trelloLabel     `json:"labels"`
	IDChecklists []string          `json:"idChecklists"`
	Checklists   []json.RawMessage `json:"checklists"`
}

type trelloLabel struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// NewTrelloSource creates a new Trello source.
func NewTrelloSource(cfg TrelloConfig) (*TrelloSource, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("TRELLO_API_KEY")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TRELLO_TOKEN")
	}
	if cfg.APIKey == "" || cfg.Token == "" {
		return nil, fmt.Errorf("%w: trello api key and token are required", ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTrelloBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTrelloTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &TrelloSource{
		apiKey:  cfg.APIKey,
		token:   cfg.Token,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		info: SourceInfo{
			Type:        SourceTypeTrello,
			Name:        "Trello",
			Description: "Cards assigned to the Trello member owning the token",
			Config: map[string]string{
				"base_url": cfg.BaseURL,
			},
		},
	}, nil
}

// Info returns metadata about this source.
func (s *TrelloSource) Info() SourceInfo {
	return s.info
}

// CheckIdentity calls /1/members/me.
func (s *TrelloSource) CheckIdentity(ctx context.Context) (Identity, error) {
	req, err := s.newRequest(ctx, "/1/members/me", nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Identity{Status: IdentityUnreachable, Detail: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return Identity{Status: IdentityUnauthorized, Detail: resp.Status}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Identity{Status: IdentityUnreachable, Detail: resp.Status}, nil
	}

	var member trelloMember
	// The probe only needs a 2xx; a body we cannot read is not a failure.
	_ = json.NewDecoder(resp.Body).Decode(&member)
	return Identity{Status: IdentityOK, MemberID: member.ID, Username: member.Username}, nil
}

// ListCards fetches all cards of the member in one call.
func (s *TrelloSource) ListCards(ctx context.Context) ([]domain.ExternalCard, error) {
	req, err := s.newRequest(ctx, "/1/members/me/cards", url.Values{
		"fields":     {trelloCardFields},
		"checklists": {"all"},
	})
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trello response: %w", err)
	}
	return decodeTrelloCards(body)
}

// Close cleans up resources (no-op for trello).
func (s *TrelloSource) Close() error {
	return nil
}

func (s *TrelloSource) newRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", s.apiKey)
	params.Set("token", s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func decodeTrelloCards(body []byte) ([]domain.ExternalCard, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrMalformedResponse
	}
	var raw []trelloCard
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	cards := make([]domain.ExternalCard, 0, len(raw))
	for _, c := range raw {
		cards = append(cards, c.toExternal())
	}
	return cards, nil
}

func (c trelloCard) toExternal() domain.ExternalCard {
	labels := make([]string, 0, len(c.Labels))
	for _, l := range c.Labels {
		if l.Name != "" {
			labels = append(labels, l.Name)
		}
	}
	checklists := len(c.Checklists)
	if checklists == 0 {
		checklists = len(c.IDChecklists)
	}
	var due *string
	if c.Due != nil && *c.Due != "" {
		due = c.Due
	}
	return domain.ExternalCard{
		ID:             c.ID,
		Title:          c.Name,
		Description:    c.Desc,
		Due:            due,
		Labels:         labels,
		ChecklistCount: checklists,
		Completed:      c.DueComplete,
	}
}

// StatusError is a non-success reply from a card service.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return e.Status
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Body)
}
