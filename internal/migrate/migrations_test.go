package migrate

import (
	"testing"
	"testing/fstest"

	"taskrank/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	pending, err := Pending(conn)
	if err != nil || len(pending) != 1 || pending[0].Name != "001_init.sql" {
		t.Fatalf("pending = %+v, err = %v", pending, err)
	}
	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
	v, err := Version(conn)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Fatalf("version = %d, want 1", v)
	}
	if pending, _ := Pending(conn); len(pending) != 0 {
		t.Fatalf("pending after migrate = %+v", pending)
	}
	for _, table := range []string{"tasks", "events"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestStepsValidation(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
		want  []int
		ok    bool
	}{
		{"sorted", fstest.MapFS{
			"sql/010_b.sql": {Data: []byte("SELECT 1")},
			"sql/002_a.sql": {Data: []byte("SELECT 1")},
		}, []int{2, 10}, true},
		{"duplicate", fstest.MapFS{
			"sql/001_a.sql": {Data: []byte("SELECT 1")},
			"sql/1_b.sql":   {Data: []byte("SELECT 1")},
		}, nil, false},
		{"no version", fstest.MapFS{
			"sql/init.sql": {Data: []byte("SELECT 1")},
		}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := steps(tt.files)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v", got)
			}
			for i, v := range tt.want {
				if got[i].Version != v {
					t.Fatalf("step %d version = %d, want %d", i, got[i].Version, v)
				}
			}
		})
	}
}
