package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskrank/internal/config"
	"taskrank/internal/db"
	"taskrank/internal/domain"
	"taskrank/internal/engine"
	"taskrank/internal/importer"
	"taskrank/internal/logging"
	"taskrank/internal/migrate"
	"taskrank/internal/repo"
	"taskrank/internal/runlog"
)

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Dir    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return fixedNow }
	eng.Logger = logging.Nop()
	return testEnv{Engine: eng, Ctx: context.Background(), Dir: dir}
}

func TestCreateTaskRanks(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name     string
		due      time.Time
		effort   string
		priority domain.Priority
		score    int
	}{
		{"due now long", fixedNow, "LONG", domain.PriorityHigh, 10},
		{"two days medium", fixedNow.Add(48 * time.Hour), "medium", domain.PriorityHigh, 7},
		{"ten days short", fixedNow.Add(240 * time.Hour), "SHORT", domain.PriorityLow, 1},
		{"two days short", fixedNow.Add(48 * time.Hour), "short", domain.PriorityMedium, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
				OwnerID: "u1", Name: tt.name, DueDate: tt.due, Effort: tt.effort,
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if task.Priority != tt.priority || task.PriorityScore != tt.score || task.Status != domain.StatusPending {
				t.Fatalf("got %s/%d/%s, want %s/%d", task.Priority, task.PriorityScore, task.Status, tt.priority, tt.score)
			}
			stored, err := env.Engine.GetTask(env.Ctx, "u1", task.ID)
			if err != nil {
				t.Fatal(err)
			}
			if stored.PriorityScore != tt.score || stored.Source != domain.SourceManual {
				t.Fatalf("stored = %+v", stored)
			}
		})
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.TaskCreateOptions{
		{Name: "x", DueDate: fixedNow, Effort: "SHORT"},
		{OwnerID: "u1", Name: "  ", DueDate: fixedNow, Effort: "SHORT"},
		{OwnerID: "u1", Name: "x", Effort: "SHORT"},
		{OwnerID: "u1", Name: "x", DueDate: fixedNow, Effort: "ENORMOUS"},
	}
	for i, opts := range cases {
		if _, err := env.Engine.CreateTask(env.Ctx, opts); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestCompleteTaskRescores(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{OwnerID: "u1", Name: "urgent", DueDate: fixedNow, Effort: "LONG"})
	if err != nil {
		t.Fatal(err)
	}
	done, err := env.Engine.CompleteTask(env.Ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.Priority != domain.PriorityLow || done.PriorityScore != 1 {
		t.Fatalf("done = %+v", done)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, "u2", task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign complete err = %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, "u1", task.ID); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Events(env.Ctx, "u1", 10)
	if err != nil || len(evts) != 3 {
		t.Fatalf("events = %+v, err = %v", evts, err)
	}
}

func TestListTasksOrderAndFilter(t *testing.T) {
	env := newTestEnv(t)
	for _, o := range []engine.TaskCreateOptions{
		{OwnerID: "u1", Name: "far", DueDate: fixedNow.Add(240 * time.Hour), Effort: "SHORT"},
		{OwnerID: "u1", Name: "near", DueDate: fixedNow.Add(time.Hour), Effort: "SHORT"},
		{OwnerID: "u2", Name: "theirs", DueDate: fixedNow, Effort: "SHORT"},
	} {
		if _, err := env.Engine.CreateTask(env.Ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{OwnerID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].Name != "near" || tasks[1].Name != "far" {
		t.Fatalf("tasks = %+v", tasks)
	}
	low, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{OwnerID: "u1", Priority: domain.PriorityLow})
	if err != nil || len(low) != 1 || low[0].Name != "far" {
		t.Fatalf("low = %+v, err = %v", low, err)
	}
	summary, err := env.Engine.Summary(env.Ctx, "u1")
	if err != nil || summary[domain.PriorityHigh] != 1 || summary[domain.PriorityLow] != 1 {
		t.Fatalf("summary = %v, err = %v", summary, err)
	}
}

func TestImportFromFileWithHistory(t *testing.T) {
	env := newTestEnv(t)
	mr := miniredis.RunT(t)
	runs := runlog.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), runlog.Config{})
	env.Engine.Runs = runs

	path := filepath.Join(env.Dir, "cards.json")
	cards := `[
	  {"id":"c1","title":"Ship release","due":"2024-01-02T00:00:00Z","labels":["EFFORT: HARD"]},
	  {"id":"c2","title":"Tidy desk","due":"2024-01-20","labels":["EASY"]},
	  {"id":"c3","title":"Bad date","due":"someday"}
	]`
	if err := os.WriteFile(path, []byte(cards), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.Import(env.Ctx, engine.ImportOptions{OwnerID: "u1", Source: "jsonfile:path=" + path})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Written != 2 || res.Dropped != 1 {
		t.Fatalf("res = %+v", res)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{OwnerID: "u1"})
	if err != nil || len(tasks) != 2 {
		t.Fatalf("tasks = %+v, err = %v", tasks, err)
	}
	if tasks[0].ExternalID != "c1" || tasks[0].Source != "jsonfile" || tasks[0].Priority != domain.PriorityHigh {
		t.Fatalf("first task = %+v", tasks[0])
	}

	res, err = env.Engine.Import(env.Ctx, engine.ImportOptions{OwnerID: "u1", Source: "jsonfile:path=" + path, SkipExisting: true})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Skipped != 2 || res.Written != 0 {
		t.Fatalf("skip run = %+v", res)
	}

	_, err = env.Engine.Import(env.Ctx, engine.ImportOptions{OwnerID: "", Source: "jsonfile:path=" + path})
	if !importer.IsKind(err, importer.KindAuth) {
		t.Fatalf("anonymous import err = %v", err)
	}

	history, err := env.Engine.ImportHistory(env.Ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Skipped != 2 || history[1].Written != 2 {
		t.Fatalf("history = %+v", history)
	}
}

func TestImportHistoryDisabled(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ImportHistory(env.Ctx, "u1", 5); !errors.Is(err, engine.ErrHistoryDisabled) {
		t.Fatalf("err = %v", err)
	}
}

func TestImportUnknownSource(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Import(env.Ctx, engine.ImportOptions{OwnerID: "u1", Source: "asana:"}); err == nil {
		t.Fatal("expected error")
	}
}
