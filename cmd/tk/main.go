package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskrank/internal/app"
	"taskrank/internal/config"
	"taskrank/internal/db"
	"taskrank/internal/engine"
	"taskrank/internal/importer"
	"taskrank/internal/repo"
	"taskrank/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tk",
	Short: "taskrank CLI",
	Long: `taskrank keeps a personal task list ranked by urgency.
Core concepts:
- Priority: every task gets LOW, MEDIUM or HIGH and a score from 1 to 10, computed from how soon it is due and how much effort it takes.
- Effort: SHORT, MEDIUM or LONG. Imported cards get it from labels like "EFFORT: HARD" and from checklists.
- Import: pulls your Trello cards (or a JSON file) and adds them as tasks in batches of 10.
- Workspace: the .taskrank directory holding the task database; taskrank.yml beside it holds settings.
- Event log: diary of task changes, view with 'tk log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(exitCode(err))
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKRANK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner-id", "local-user", "owner whose tasks are used")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/taskrank.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("owner-id", rootCmd.PersistentFlags().Lookup("owner-id"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskGetCmd())
	t.AddCommand(taskCompleteCmd())
	t.AddCommand(taskDeleteCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		Long:  "Creates a pending task. Priority and score are computed from --due and --effort.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := parseDueFlag(due, time.Now())
			if err != nil {
				return err
			}
			opts.DueDate = dueDate
			opts.OwnerID = viper.GetString("owner-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "task name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&due, "due", "", "due date (2024-05-01, RFC3339, or +3d / +12h)")
	cmd.Flags().StringVar(&opts.Effort, "effort", "MEDIUM", "SHORT, MEDIUM or LONG")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func taskListCmd() *cobra.Command {
	var priority, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, soonest due first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := listFilters(viper.GetString("owner-id"), priority, status, limit)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTasks(os.Stdout, tasks, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max tasks")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, viper.GetString("owner-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CompleteTask(ctx, viper.GetString("owner-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, viper.GetString("owner-id"), args[0]); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func importCmd() *cobra.Command {
	var opts engine.ImportOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import cards as tasks",
		Long: `Fetches the owner's cards from the configured source and stores them as tasks.
Sources: "trello:" (uses TRELLO_API_KEY / TRELLO_TOKEN) or "jsonfile:path=cards.json".
Cards with an unreadable due date are dropped; the rest are written in batches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.OwnerID = viper.GetString("owner-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Import(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("imported %d of %d cards (%d dropped, %d skipped)\n", res.Written, res.Fetched, res.Dropped, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Source, "source", "", "card source spec (default from config)")
	cmd.Flags().BoolVar(&opts.SkipExisting, "skip-existing", false, "skip cards imported before")
	cmd.Flags().BoolVar(&opts.Atomic, "atomic", false, "write all batches in one transaction")
	cmd.AddCommand(importHistoryCmd())
	return cmd
}

func importHistoryCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent import runs (needs redis.url)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				runs, err := e.ImportHistory(ctx, viper.GetString("owner-id"), n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				renderRuns(os.Stdout, runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 10, "number of runs")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect settings",
		Long:  "Settings live in taskrank.yml next to the workspace; environment variables override the file.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				redacted := *cfg
				redacted.Trello.Token = redact(redacted.Trello.Token)
				redacted.Server.JWTSecret = redact(redacted.Server.JWTSecret)
				return printJSON(redacted)
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example taskrank.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for --owner-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("TASKRANK_JWT_SECRET (or server.jwt_secret) is required")
			}
			token, err := server.SignToken(cfg.Server.JWTSecret, viper.GetString("owner-id"), ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for none)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if cfg.Server.JWTSecret == "" && !cfg.Server.AllowOwnerHeader {
				return fmt.Errorf("TASKRANK_JWT_SECRET is required for bearer auth")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := app.Open(ctx, viper.GetString("workspace"), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:        cfg.Server.JWTSecret,
					AllowOwnerHeader: cfg.Server.AllowOwnerHeader,
				},
				Logger: a.Logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			a.Logger.WithField("addr", cfg.Server.Addr).Info("serving taskrank API")
			fmt.Printf("Serving taskrank API on http://%s%s (OpenAPI at %s/openapi.json)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", config.DefaultBasePath, "API base path")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Events(ctx, viper.GetString("owner-id"), n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- helpers ---

func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.Path(viper.GetString("workspace"))
}

func loadConfig() (*config.Config, error) {
	return config.LoadFile(configPath())
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func exitCode(err error) int {
	var ie *importer.Error
	if errors.As(err, &ie) {
		switch ie.Kind {
		case importer.KindAuth:
			return 3
		case importer.KindEmpty:
			return 4
		}
		return 2
	}
	if errors.Is(err, repo.ErrNotFound) {
		return 5
	}
	return 1
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
