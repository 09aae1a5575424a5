package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskrank/internal/db"
	"taskrank/internal/domain"
	"taskrank/internal/events"
	"taskrank/internal/migrate"
	"taskrank/internal/repo"
)

var fixedNow = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := func() time.Time { return fixedNow }
	return repo.Repo{DB: conn, Events: events.Writer{Now: clock}, Now: clock}
}

func task(owner, name string, dueIn time.Duration, p domain.Priority) domain.Task {
	return domain.Task{
		Name:          name,
		DueDate:       fixedNow.Add(dueIn),
		Effort:        domain.EffortMedium,
		Priority:      p,
		PriorityScore: 4,
		Status:        domain.StatusPending,
		OwnerID:       owner,
	}
}

func TestInsertAndListOrderedByDueDate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	batch := []domain.Task{
		task("u1", "later", 72*time.Hour, domain.PriorityMedium),
		task("u1", "sooner", 1500*time.Millisecond, domain.PriorityHigh),
		task("u1", "soonest", time.Second, domain.PriorityHigh),
		task("u2", "other owner", time.Hour, domain.PriorityLow),
	}
	if err := r.InsertTasks(ctx, batch); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if batch[0].ID == "" || batch[0].Source != domain.SourceManual || batch[0].CreatedAt == "" {
		t.Fatalf("insert did not fill defaults: %+v", batch[0])
	}

	got, err := r.ListTasks(ctx, repo.TaskFilters{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, tk := range got {
		names = append(names, tk.Name)
	}
	if len(names) != 3 || names[0] != "soonest" || names[1] != "sooner" || names[2] != "later" {
		t.Fatalf("order = %v", names)
	}
	if !got[2].DueDate.Equal(fixedNow.Add(72 * time.Hour)) {
		t.Errorf("due date round trip = %v", got[2].DueDate)
	}

	high, err := r.ListTasks(ctx, repo.TaskFilters{OwnerID: "u1", Priority: domain.PriorityHigh, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(high) != 1 || high[0].Name != "soonest" {
		t.Fatalf("filtered = %+v", high)
	}
}

func TestInsertTasksRollsBackBatch(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	bad := task("u1", "bad", time.Hour, domain.PriorityLow)
	bad.PriorityScore = 42
	if err := r.InsertTasks(ctx, []domain.Task{task("u1", "good", time.Hour, domain.PriorityLow), bad}); err == nil {
		t.Fatal("expected constraint failure")
	}
	got, err := r.ListTasks(ctx, repo.TaskFilters{OwnerID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("batch partially committed: %d rows", len(got))
	}
}

func TestInsertTaskBatchesIsAllOrNothing(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	bad := task("u1", "bad", time.Hour, domain.PriorityLow)
	bad.Effort = "HUGE"
	err := r.InsertTaskBatches(ctx, [][]domain.Task{
		{task("u1", "a", time.Hour, domain.PriorityLow)},
		{bad},
	})
	if err == nil {
		t.Fatal("expected failure")
	}
	got, _ := r.ListTasks(ctx, repo.TaskFilters{OwnerID: "u1"})
	if len(got) != 0 {
		t.Fatalf("rows = %d, want 0", len(got))
	}
}

func TestGetCompleteDeleteScopedToOwner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tasks := []domain.Task{task("u1", "mine", time.Hour, domain.PriorityHigh)}
	if err := r.InsertTasks(ctx, tasks); err != nil {
		t.Fatal(err)
	}
	id := tasks[0].ID

	if _, err := r.GetTask(ctx, "u2", id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign get err = %v", err)
	}
	if _, err := r.CompleteTask(ctx, "u2", id, domain.PriorityLow, 1); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign complete err = %v", err)
	}

	done, err := r.CompleteTask(ctx, "u1", id, domain.PriorityLow, 1)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.Priority != domain.PriorityLow || done.PriorityScore != 1 {
		t.Fatalf("completed = %+v", done)
	}

	if err := r.DeleteTask(ctx, "u2", id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign delete err = %v", err)
	}
	if err := r.DeleteTask(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetTask(ctx, "u1", id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get after delete err = %v", err)
	}

	evts, err := r.LatestEvents(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{events.TaskDeleted, events.TaskCompleted, events.TaskCreated}
	if len(evts) != len(want) {
		t.Fatalf("events = %+v", evts)
	}
	for i, e := range evts {
		if e.Type != want[i] || e.EntityID != id {
			t.Errorf("event %d = %+v, want %s", i, e, want[i])
		}
	}
}

func TestExternalIDsAndCounts(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	a := task("u1", "a", time.Hour, domain.PriorityHigh)
	a.Source, a.ExternalID = "trello", "c1"
	b := task("u1", "b", time.Hour, domain.PriorityHigh)
	c := task("u1", "c", time.Hour, domain.PriorityMedium)
	c.Source, c.ExternalID = "jsonfile", "c2"
	if err := r.InsertTasks(ctx, []domain.Task{a, b, c}); err != nil {
		t.Fatal(err)
	}
	ids, err := r.ExternalIDs(ctx, "u1", "trello")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ids["c1"]; !ok || len(ids) != 1 {
		t.Fatalf("ids = %v", ids)
	}
	counts, err := r.CountTasksByPriority(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.PriorityHigh] != 2 || counts[domain.PriorityMedium] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestListRequiresOwner(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.ListTasks(context.Background(), repo.TaskFilters{}); err == nil {
		t.Fatal("expected error")
	}
}
