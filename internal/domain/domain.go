package domain

import (
	"fmt"
	"strings"
	"time"
)

type Effort string

const (
	EffortShort  Effort = "SHORT"
	EffortMedium Effort = "MEDIUM"
	EffortLong   Effort = "LONG"
)

// ParseEffort accepts the three effort values case-insensitively.
func ParseEffort(s string) (Effort, error) {
	switch e := Effort(strings.ToUpper(strings.TrimSpace(s))); e {
	case EffortShort, EffortMedium, EffortLong:
		return e, nil
	}
	return "", fmt.Errorf("invalid effort %q (want SHORT, MEDIUM or LONG)", s)
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q (want LOW, MEDIUM or HIGH)", s)
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q (want PENDING or COMPLETED)", s)
}

const SourceManual = "manual"

type Task struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	DueDate       time.Time `json:"due_date" format:"date-time"`
	Effort        Effort    `json:"effort" enum:"SHORT,MEDIUM,LONG"`
	Priority      Priority  `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	PriorityScore int       `json:"priority_score" minimum:"1" maximum:"10"`
	Status        Status    `json:"status" enum:"PENDING,COMPLETED"`
	OwnerID       string    `json:"owner_id"`
	Source        string    `json:"source"`
	ExternalID    string    `json:"external_id,omitempty"`
	CreatedAt     string    `json:"created_at" format:"date-time"`
	UpdatedAt     string    `json:"updated_at" format:"date-time"`
}

// ExternalCard is a task-like record pulled from a board service. Due is kept
// as delivered so that parsing happens during normalization.
type ExternalCard struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Due            *string  `json:"due,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	ChecklistCount int      `json:"checklist_count"`
	Completed      bool     `json:"completed"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	OwnerID  string `json:"owner_id"`
	EntityID string `json:"entity_id,omitempty"`
	Payload  string `json:"payload_json"`
}

// ImportRun summarises one import attempt.
type ImportRun struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	Source     string `json:"source"`
	Fetched    int    `json:"fetched"`
	Normalized int    `json:"normalized"`
	Dropped    int    `json:"dropped"`
	Skipped    int    `json:"skipped"`
	Written    int    `json:"written"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	StartedAt  string `json:"started_at" format:"date-time"`
	FinishedAt string `json:"finished_at" format:"date-time"`
}
