package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskrank/internal/domain"
	"taskrank/internal/events"
)

type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = errors.New("not found")

// dueLayout has a fixed fraction width so due_date text sorts chronologically.
const dueLayout = "2006-01-02T15:04:05.000Z07:00"

const taskColumns = `id,owner_id,name,description,due_date,effort,priority,priority_score,status,source,COALESCE(external_id,''),created_at,updated_at`

type TaskFilters struct {
	OwnerID  string
	Priority domain.Priority
	Status   domain.Status
	Limit    int
}

func New(db *sql.DB) Repo {
	return Repo{DB: db}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var due string
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &due, &t.Effort, &t.Priority, &t.PriorityScore, &t.Status, &t.Source, &t.ExternalID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.DueDate, err = time.Parse(time.RFC3339Nano, due)
	if err != nil {
		return t, fmt.Errorf("task %s: bad due_date %q: %w", t.ID, due, err)
	}
	return t, nil
}

// InsertTasks writes one batch in a single transaction. IDs, timestamps and
// the manual source are filled in when missing.
func (r Repo) InsertTasks(ctx context.Context, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.insertTasksTx(ctx, tx, tasks); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertTaskBatches writes every batch in one transaction: all or nothing.
func (r Repo) InsertTaskBatches(ctx context.Context, batches [][]domain.Task) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, batch := range batches {
		if err := r.insertTasksTx(ctx, tx, batch); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r Repo) insertTasksTx(ctx context.Context, tx *sql.Tx, tasks []domain.Task) error {
	ts := r.now().UTC().Format(time.RFC3339)
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tasks(id,owner_id,name,description,due_date,effort,priority,priority_score,status,source,external_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range tasks {
		t := &tasks[i]
		if t.OwnerID == "" {
			return fmt.Errorf("task %q: owner_id required", t.Name)
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Source == "" {
			t.Source = domain.SourceManual
		}
		if t.CreatedAt == "" {
			t.CreatedAt = ts
		}
		t.UpdatedAt = ts
		if _, err := stmt.ExecContext(ctx, t.ID, t.OwnerID, t.Name, t.Description, formatDue(t.DueDate), t.Effort, t.Priority, t.PriorityScore, t.Status, t.Source, nullable(t.ExternalID), t.CreatedAt, t.UpdatedAt); err != nil {
			return fmt.Errorf("insert task %q: %w", t.Name, err)
		}
		if err := r.Events.Append(ctx, tx, events.TaskCreated, t.OwnerID, t.ID, events.EventPayload{
			"source":         t.Source,
			"external_id":    t.ExternalID,
			"priority":       t.Priority,
			"priority_score": t.PriorityScore,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ListTasks returns the owner's tasks, soonest due first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	if f.OwnerID == "" {
		return nil, fmt.Errorf("owner_id required")
	}
	clauses := []string{"owner_id=?"}
	args := []any{f.OwnerID}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY due_date ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// GetTask returns ErrNotFound for tasks of other owners as well as missing ones.
func (r Repo) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner_id=? AND id=?`, ownerID, id))
}

// CompleteTask marks a task COMPLETED with the given ranking.
func (r Repo) CompleteTask(ctx context.Context, ownerID, id string, priority domain.Priority, score int) (domain.Task, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	ts := r.now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?,priority=?,priority_score=?,updated_at=? WHERE owner_id=? AND id=?`,
		domain.StatusCompleted, priority, score, ts, ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, events.TaskCompleted, ownerID, id, events.EventPayload{
		"priority":       priority,
		"priority_score": score,
	}); err != nil {
		return domain.Task{}, err
	}
	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return domain.Task{}, err
	}
	return t, tx.Commit()
}

func (r Repo) DeleteTask(ctx context.Context, ownerID, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id=? AND id=?`, ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, events.TaskDeleted, ownerID, id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ExternalIDs lists the external ids the owner already imported from source.
func (r Repo) ExternalIDs(ctx context.Context, ownerID, source string) (map[string]struct{}, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT external_id FROM tasks WHERE owner_id=? AND source=? AND external_id IS NOT NULL`, ownerID, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (r Repo) CountTasksByPriority(ctx context.Context, ownerID string) (map[domain.Priority]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT priority, COUNT(*) FROM tasks WHERE owner_id=? AND status=? GROUP BY priority`, ownerID, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Priority]int{}
	for rows.Next() {
		var p domain.Priority
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		res[p] = n
	}
	return res, rows.Err()
}

// LatestEvents returns the owner's newest events first.
func (r Repo) LatestEvents(ctx context.Context, ownerID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,owner_id,COALESCE(entity_id,''),payload_json FROM events WHERE owner_id=? ORDER BY id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OwnerID, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func formatDue(t time.Time) string {
	return t.UTC().Format(dueLayout)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
