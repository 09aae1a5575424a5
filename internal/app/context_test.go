package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"taskrank/internal/app"
	"taskrank/internal/config"
	"taskrank/internal/db"
	"taskrank/internal/engine"
	"taskrank/internal/repo"
)

func TestOpenMigratesAndServes(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	a, err := app.Open(context.Background(), dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	if _, err := a.Engine.CreateTask(context.Background(), engine.TaskCreateOptions{
		OwnerID: "u1", Name: "first", DueDate: time.Now().Add(time.Hour), Effort: "SHORT",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tasks, err := a.Engine.ListTasks(context.Background(), repo.TaskFilters{OwnerID: "u1"})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %v, err = %v", tasks, err)
	}
	if a.Engine.Runs != nil {
		t.Fatal("run log should be disabled without redis.url")
	}
	if got := db.Path(dir); got == "" {
		t.Fatal("empty db path")
	}
}

func TestOpenConnectsRunLog(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Redis.URL = "redis://" + mr.Addr()
	a, err := app.Open(context.Background(), t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Engine.Runs == nil {
		t.Fatal("run log not wired")
	}
	runs, err := a.Engine.ImportHistory(context.Background(), "u1", 5)
	if err != nil || len(runs) != 0 {
		t.Fatalf("runs = %v, err = %v", runs, err)
	}
}

func TestOpenRejectsBadLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "shouty"
	if _, err := app.Open(context.Background(), t.TempDir(), cfg); err == nil {
		t.Fatal("expected error")
	}
}
