package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/lex/internal/analyze"
	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/collect"
	"github.com/TobiSchelling/lex/internal/config"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/dedup"
	"github.com/TobiSchelling/lex/internal/fetch"
	"github.com/TobiSchelling/lex/internal/llm"
	"github.com/TobiSchelling/lex/internal/logging"
	"github.com/TobiSchelling/lex/internal/mailer"
	"github.com/TobiSchelling/lex/internal/notify"
	"github.com/TobiSchelling/lex/internal/publish"
	"github.com/TobiSchelling/lex/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	ctx, stop := signalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "lex",
	Short:        "Chinese tech news intelligence",
	Long:         "lex scrapes Chinese tech news, deduplicates it, writes briefings and publishes drafts to social platforms.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnv(); err != nil {
			return err
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(logging.Options{Level: level, Format: cfg.Logging.Format})
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		logger.Debug("config loaded", "path", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(dedupCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lex", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/lex/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources and LLM provider; put credentials in ~/.config/lex/.env.")
		return nil
	},
}

func openDB() (*database.DB, error) {
	dbPath := filepath.Join(cfg.GetDataDir(), "lex.db")
	return database.Open(dbPath)
}

func newQueueStore(db *database.DB) *queue.Store {
	p := cfg.Publish
	return queue.NewStore(db,
		queue.WithBackoff(queue.Backoff{
			Base:       time.Duration(p.BaseDelayMinutes * float64(time.Minute)),
			Multiplier: p.Multiplier,
		}),
		queue.WithMaxRetries(p.MaxRetries),
		queue.WithLogger(logger),
	)
}

// newDeduplicator wires the exact history to SQLite, the recent window to
// Redis when an address is configured, and the semantic layer when enabled
// and an embedder is available. The returned func releases the Redis client.
func newDeduplicator(db *database.DB) (*dedup.Deduplicator, func()) {
	d := cfg.Dedup
	dd := dedup.New(db, dedup.Options{
		WindowDays:         d.WindowDays,
		FuzzyThreshold:     d.FuzzyThreshold,
		RecentWindow:       d.RecentWindow,
		SemanticThreshold:  d.SemanticThreshold,
		SemanticWindowDays: d.SemanticWindowDays,
		SemanticTopK:       d.SemanticTopK,
	})
	dd.Logger = logger
	dd.Window = db

	closeFn := func() {}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: config.Env(cfg.Redis.PasswordEnv),
			DB:       cfg.Redis.DB,
		})
		dd.Window = dedup.NewRedisWindow(rdb, cfg.Redis.Key)
		closeFn = func() { rdb.Close() }
		logger.Debug("recent-title window on redis", "addr", cfg.Redis.Addr)
	}

	if d.SemanticEnabled {
		if emb := llm.CreateEmbedder(cfg.Summarization, logger); emb != nil {
			dd.Embedder = emb
			dd.Index = db
		} else {
			logger.Warn("semantic dedup enabled but no embedder available")
		}
	}
	return dd, closeFn
}

func newCollector(db *database.DB, dd *dedup.Deduplicator) *collect.Collector {
	return collect.NewCollector(db, dd, collect.SourcesFromConfig(cfg.Sources, clock.System()), logger)
}

func newFetcher(db *database.DB) *fetch.ContentFetcher {
	return fetch.NewContentFetcher(db, time.Duration(cfg.Sources.Fetch.TimeoutSeconds)*time.Second, logger)
}

func newAnalyzer(db *database.DB, q *queue.Store, m *mailer.Mailer) *analyze.Analyzer {
	provider := llm.CreateProvider(cfg.Summarization, logger)
	a := analyze.New(db, q, provider, analyze.OptionsFromConfig(cfg), logger)
	switch p := provider.(type) {
	case *llm.OllamaProvider:
		a.Model = p.Model
	case *llm.OpenAIProvider:
		a.Model = p.Model
	}
	if m.Configured() {
		a.Mailer = m
	}
	return a
}

func newDrainer(q *queue.Store, m *mailer.Mailer, n notify.Service) *publish.Drainer {
	d := publish.NewDrainer(q, publish.DefaultRegistry(cfg, m), logger)
	d.Notifier = n
	return d
}
