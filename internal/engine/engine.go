package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskrank/internal/cardsource"
	"taskrank/internal/config"
	"taskrank/internal/domain"
	"taskrank/internal/events"
	"taskrank/internal/importer"
	"taskrank/internal/logging"
	"taskrank/internal/priority"
	"taskrank/internal/repo"
)

// RunLog stores import run outcomes; nil disables import history.
type RunLog interface {
	importer.RunRecorder
	History(ctx context.Context, ownerID string, limit int) ([]domain.ImportRun, error)
}

var ErrHistoryDisabled = errors.New("import history disabled: configure redis.url")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Scorer priority.Scorer
	Runs   RunLog
	Logger *logging.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db, Events: events.Writer{}},
		Config: cfg,
		Scorer: priority.New(cfg.Priority),
		Logger: logging.Get(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *logging.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.Get()
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	OwnerID     string
	Name        string
	Description string
	DueDate     time.Time
	Effort      string
}

// CreateTask ranks and stores a single PENDING task.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.OwnerID == "" {
		return domain.Task{}, errors.New("owner is required")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Task{}, errors.New("name is required")
	}
	if opts.DueDate.IsZero() {
		return domain.Task{}, errors.New("due date is required")
	}
	effort, err := domain.ParseEffort(opts.Effort)
	if err != nil {
		return domain.Task{}, err
	}
	rank := e.Scorer.Score(priority.Input{DueDate: opts.DueDate, Effort: effort, Status: domain.StatusPending}, e.now())
	t := domain.Task{
		Name:          name,
		Description:   opts.Description,
		DueDate:       opts.DueDate.UTC(),
		Effort:        effort,
		Priority:      rank.Priority,
		PriorityScore: rank.Score,
		Status:        domain.StatusPending,
		OwnerID:       opts.OwnerID,
		Source:        domain.SourceManual,
	}
	batch := []domain.Task{t}
	if err := e.Repo.InsertTasks(ctx, batch); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return batch[0], nil
}

// CompleteTask marks the task done and re-ranks it.
func (e Engine) CompleteTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	rank := e.Scorer.Score(priority.Input{DueDate: t.DueDate, Effort: t.Effort, Status: domain.StatusCompleted}, e.now())
	return e.Repo.CompleteTask(ctx, ownerID, id, rank.Priority, rank.Score)
}

func (e Engine) DeleteTask(ctx context.Context, ownerID, id string) error {
	return e.Repo.DeleteTask(ctx, ownerID, id)
}

func (e Engine) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, ownerID, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// Summary counts the owner's pending tasks per priority.
func (e Engine) Summary(ctx context.Context, ownerID string) (map[domain.Priority]int, error) {
	return e.Repo.CountTasksByPriority(ctx, ownerID)
}

// ImportOptions select the card source and write mode of an import.
type ImportOptions struct {
	OwnerID string
	// Source is a card source spec such as "trello:" or "jsonfile:path=cards.json".
	// Empty uses the configured default.
	Source       string
	SkipExisting bool
	Atomic       bool
	// Restricted marks Source as caller input: it may pick a source type but
	// not set parameters such as base_url, token or path, since the server's
	// own credentials fill the rest. The configured default is always allowed.
	Restricted bool
	// CardSource overrides Source when set.
	CardSource cardsource.CardSource
}

// Import runs the reconciler for one owner against the task store.
func (e Engine) Import(ctx context.Context, opts ImportOptions) (importer.Result, error) {
	src := opts.CardSource
	if src == nil {
		spec := opts.Source
		if spec == "" {
			spec = e.Config.Import.Source
		}
		parsed, err := cardsource.ParseSourceSpec(spec)
		if err != nil {
			return importer.Result{}, fmt.Errorf("card source: %w: %v", cardsource.ErrInvalidConfig, err)
		}
		if opts.Restricted && spec != e.Config.Import.Source && len(parsed.Config) > 0 {
			return importer.Result{}, fmt.Errorf("card source: %w: parameters cannot be set per request", cardsource.ErrInvalidConfig)
		}
		src, err = cardsource.CreateSource(parsed, cardsource.Defaults{
			Trello: cardsource.TrelloConfig{
				APIKey:  e.Config.Trello.APIKey,
				Token:   e.Config.Trello.Token,
				BaseURL: e.Config.Trello.BaseURL,
				Timeout: e.Config.Trello.Timeout,
			},
		})
		if err != nil {
			return importer.Result{}, fmt.Errorf("card source: %w", err)
		}
		defer src.Close()
	}

	iopts := importer.Options{
		BatchSize:    e.Config.Import.BatchSize,
		Vocabulary:   e.Config.Import.Vocabulary,
		Scorer:       e.Scorer,
		Now:          e.Now,
		Logger:       e.logger(),
		Atomic:       opts.Atomic || e.Config.Import.Atomic,
		SkipExisting: opts.SkipExisting || e.Config.Import.SkipExisting,
	}
	if e.Runs != nil {
		iopts.Recorder = e.Runs
	}
	return importer.New(src, e.Repo, iopts).Import(ctx, opts.OwnerID)
}

// ImportHistory returns the owner's recent import runs, newest first.
func (e Engine) ImportHistory(ctx context.Context, ownerID string, limit int) ([]domain.ImportRun, error) {
	if e.Runs == nil {
		return nil, ErrHistoryDisabled
	}
	return e.Runs.History(ctx, ownerID, limit)
}

// Events returns the owner's latest task events.
func (e Engine) Events(ctx context.Context, ownerID string, limit int) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, ownerID, limit)
}
