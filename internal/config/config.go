package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"taskrank/internal/importer"
	"taskrank/internal/logging"
	"taskrank/internal/priority"
)

// Config models taskrank.yml.
type Config struct {
	Trello   TrelloConfig       `yaml:"trello"`
	Import   ImportConfig       `yaml:"import"`
	Priority priority.Config    `yaml:"priority"`
	Logging  logging.FileConfig `yaml:"logging"`
	Redis    RedisConfig        `yaml:"redis"`
	Server   ServerConfig       `yaml:"server"`
}

type TrelloConfig struct {
	APIKey  string        `yaml:"api_key"`
	Token   string        `yaml:"token"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ImportConfig struct {
	// Source is the default card source spec, e.g. "trello:".
	Source       string              `yaml:"source"`
	BatchSize    int                 `yaml:"batch_size"`
	Vocabulary   importer.Vocabulary `yaml:"effort_vocabulary"`
	Atomic       bool                `yaml:"atomic"`
	SkipExisting bool                `yaml:"skip_existing"`
}

type RedisConfig struct {
	// URL enables the import run log when set.
	URL        string        `yaml:"url"`
	HistoryLen int           `yaml:"history_len"`
	TTL        time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Addr             string `yaml:"addr"`
	BasePath         string `yaml:"base_path"`
	JWTSecret        string `yaml:"jwt_secret"`
	AllowOwnerHeader bool   `yaml:"allow_owner_header"`
}

const (
	DefaultSource     = "trello:"
	DefaultAddr       = "127.0.0.1:8080"
	DefaultBasePath   = "/v0"
	DefaultHistoryLen = 20
	DefaultHistoryTTL = 30 * 24 * time.Hour
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Trello: TrelloConfig{
			Timeout: 30 * time.Second,
		},
		Import: ImportConfig{
			Source:     DefaultSource,
			BatchSize:  importer.DefaultBatchSize,
			Vocabulary: importer.DefaultVocabulary(),
		},
		Priority: priority.DefaultConfig(),
		Logging:  logging.FileConfig{Level: "info"},
		Redis: RedisConfig{
			HistoryLen: DefaultHistoryLen,
			TTL:        DefaultHistoryTTL,
		},
		Server: ServerConfig{
			Addr:     DefaultAddr,
			BasePath: DefaultBasePath,
		},
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskrank.yml")
}

// Load reads the workspace config if present, then applies environment
// overrides. A missing file is not an error.
func Load(workspace string) (*Config, error) {
	return LoadFile(Path(workspace))
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config yaml %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config values are usable.
func (c *Config) Validate() error {
	if c.Import.BatchSize < 1 {
		return fmt.Errorf("import.batch_size must be at least 1")
	}
	if c.Priority.HighWithinDays > c.Priority.MediumWithinDays {
		return fmt.Errorf("priority.high_within_days must not exceed priority.medium_within_days")
	}
	if c.Redis.HistoryLen < 0 {
		return fmt.Errorf("redis.history_len must not be negative")
	}
	if c.Trello.Timeout < 0 {
		return fmt.Errorf("trello.timeout must not be negative")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if val := os.Getenv("TRELLO_API_KEY"); val != "" {
		c.Trello.APIKey = val
	}
	if val := os.Getenv("TRELLO_TOKEN"); val != "" {
		c.Trello.Token = val
	}
	if val := os.Getenv("TASKRANK_TRELLO_BASE_URL"); val != "" {
		c.Trello.BaseURL = val
	}
	if val := os.Getenv("TASKRANK_IMPORT_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Import.BatchSize = n
		}
	}
	// Support both REDIS_URL and TASKRANK_REDIS_URL
	if val := os.Getenv("TASKRANK_REDIS_URL"); val != "" {
		c.Redis.URL = val
	} else if val := os.Getenv("REDIS_URL"); val != "" {
		c.Redis.URL = val
	}
	if val := os.Getenv("TASKRANK_JWT_SECRET"); val != "" {
		c.Server.JWTSecret = val
	}
	if val := os.Getenv("TASKRANK_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
}

// Marshal renders the config as YAML, with credentials redacted.
func (c *Config) Marshal() ([]byte, error) {
	cp := *c
	if cp.Trello.Token != "" {
		cp.Trello.Token = "***"
	}
	if cp.Server.JWTSecret != "" {
		cp.Server.JWTSecret = "***"
	}
	return yaml.Marshal(&cp)
}

// WriteExample writes an example configuration file to path.
func WriteExample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(exampleTemplate), 0o644)
}

const exampleTemplate = `# taskrank configuration

trello:
  api_key: ""       # or TRELLO_API_KEY
  token: ""         # or TRELLO_TOKEN
  timeout: 30s

import:
  source: "trello:"
  batch_size: 10
  atomic: false          # write all batches in one transaction
  skip_existing: false   # skip cards already imported for the owner
  effort_vocabulary:
    prefix: "EFFORT:"
    short: [EASY, SHORT]
    medium: [MEDIUM]
    long: [HARD, LONG]
    checklist_long_above: 2

priority:
  high_within_days: 1
  medium_within_days: 3
  deadline_high_points: 4
  deadline_medium_points: 2
  effort_high_points: 3
  effort_medium_points: 2
  either_high_bonus: 3
  both_medium_bonus: 2
  either_medium_bonus: 1

logging:
  level: info
  file: ""

redis:
  url: ""          # e.g. redis://localhost:6379/0, enables import history
  history_len: 20
  ttl: 720h

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""   # or TASKRANK_JWT_SECRET
  allow_owner_header: false
`
