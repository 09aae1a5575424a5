package server

import (
	"time"

	"taskrank/internal/domain"
	"taskrank/internal/importer"
)

// Request payloads

type CreateTaskRequest struct {
	Name        string    `json:"name" minLength:"1"`
	Description string    `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date" format:"date-time"`
	Effort      string    `json:"effort" doc:"SHORT, MEDIUM or LONG (case-insensitive)"`
}

type ImportRequest struct {
	Source       string `json:"source,omitempty" doc:"Card source type, e.g. trello:. Parameters are only taken from server config."`
	SkipExisting bool   `json:"skip_existing,omitempty"`
	Atomic       bool   `json:"atomic,omitempty"`
}

// Response payloads

type TaskResponse = domain.Task

type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
}

type ImportResponse struct {
	importer.Result
}

type ImportHistoryResponse struct {
	Items []domain.ImportRun `json:"items"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}

type WhoAmIResponse struct {
	OwnerID string         `json:"owner_id"`
	Source  string         `json:"source"`
	Pending map[string]int `json:"pending"`
}

func nonNilTasks(items []domain.Task) []TaskResponse {
	if items == nil {
		return []TaskResponse{}
	}
	return items
}
