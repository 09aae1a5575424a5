package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TRELLO_API_KEY", "TRELLO_TOKEN", "TASKRANK_TRELLO_BASE_URL",
		"TASKRANK_IMPORT_BATCH_SIZE", "TASKRANK_REDIS_URL", "REDIS_URL",
		"TASKRANK_JWT_SECRET", "TASKRANK_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Import.BatchSize != 10 || cfg.Import.Source != DefaultSource {
		t.Fatalf("import defaults = %+v", cfg.Import)
	}
	if cfg.Priority.HighWithinDays != 1 || cfg.Priority.MediumWithinDays != 3 {
		t.Fatalf("priority defaults = %+v", cfg.Priority)
	}
	if cfg.Server.BasePath != "/v0" || cfg.Redis.HistoryLen != DefaultHistoryLen {
		t.Fatalf("server/redis defaults = %+v %+v", cfg.Server, cfg.Redis)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	data := `
trello:
  api_key: filekey
  timeout: 5s
import:
  batch_size: 25
  skip_existing: true
priority:
  high_within_days: 2
  medium_within_days: 5
redis:
  url: redis://file:6379/0
`
	if err := os.WriteFile(Path(dir), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRELLO_TOKEN", "envtoken")
	t.Setenv("REDIS_URL", "redis://env:6379/1")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Trello.APIKey != "filekey" || cfg.Trello.Token != "envtoken" || cfg.Trello.Timeout != 5*time.Second {
		t.Errorf("trello = %+v", cfg.Trello)
	}
	if cfg.Import.BatchSize != 25 || !cfg.Import.SkipExisting {
		t.Errorf("import = %+v", cfg.Import)
	}
	if cfg.Priority.HighWithinDays != 2 || cfg.Priority.DeadlineHighPoints != 4 {
		t.Errorf("priority = %+v", cfg.Priority)
	}
	if cfg.Redis.URL != "redis://env:6379/1" {
		t.Errorf("redis url = %q", cfg.Redis.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"batch size", "import:\n  batch_size: 0\n", "batch_size"},
		{"thresholds", "priority:\n  high_within_days: 4\n  medium_within_days: 3\n", "high_within_days"},
		{"history", "redis:\n  history_len: -1\n", "history_len"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestExampleTemplateParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskrank.yml")
	if err := WriteExample(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := FromYAML(data)
	if err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if cfg.Import.Vocabulary.Prefix != "EFFORT:" || cfg.Import.Vocabulary.ChecklistLongAbove != 2 {
		t.Fatalf("vocabulary = %+v", cfg.Import.Vocabulary)
	}
}

func TestMarshalRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Trello.Token = "secret-token"
	cfg.Server.JWTSecret = "secret-jwt"
	out, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "secret-token") || strings.Contains(string(out), "secret-jwt") {
		t.Fatalf("secrets leaked: %s", out)
	}
	if cfg.Trello.Token != "secret-token" {
		t.Fatal("marshal mutated the config")
	}
}
