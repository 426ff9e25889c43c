package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/TobiSchelling/lex/internal/analyze"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/mailer"
	"github.com/TobiSchelling/lex/internal/notify"
	"github.com/TobiSchelling/lex/internal/pipeline"
	"github.com/TobiSchelling/lex/internal/publish"
	"github.com/TobiSchelling/lex/internal/queue"
	"github.com/TobiSchelling/lex/internal/server"
	"github.com/spf13/cobra"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context(), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n", db.Path())
		if stats.LastRunStartedAt != nil {
			fmt.Printf("Last run: %s\n", stats.LastRunStartedAt.Format(time.RFC3339))
		}
		fmt.Println()

		articleRows := [][]string{{"total", strconv.Itoa(stats.TotalArticles)}}
		for _, s := range []database.ArticleStatus{
			database.ArticlePending, database.ArticleAnalyzed,
			database.ArticleEnrichmentFailed, database.ArticleArchived,
		} {
			articleRows = append(articleRows, []string{string(s), strconv.Itoa(stats.Articles[s])})
		}
		fmt.Println("Articles:")
		fmt.Println(renderTable([]string{"Status", "Count"}, articleRows, []columnAlignment{alignLeft, alignRight}))

		queueRows := make([][]string, 0, len(stats.Queue))
		for _, s := range []queue.Status{queue.StatusQueued, queue.StatusRetryQueued, queue.StatusPublished, queue.StatusFailed} {
			queueRows = append(queueRows, []string{string(s), strconv.Itoa(stats.Queue[string(s)])})
		}
		fmt.Println("\nPublish queue:")
		fmt.Println(renderTable([]string{"Status", "Count"}, queueRows, []columnAlignment{alignLeft, alignRight}))

		fmt.Printf("\nPublished today: %d\n", stats.PublishedToday)
		fmt.Printf("Briefings: %d\n", stats.Briefings)
		fmt.Printf("Dedup titles: %d\n", stats.DedupTitles)
		return nil
	},
}

// --- scrape command ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Collect and deduplicate articles from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		dd, closeDedup := newDeduplicator(db)
		defer closeDedup()

		res, err := newCollector(db, dd).Collect(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println("Scrape complete:")
		fmt.Printf("  Total found: %d\n", res.Found)
		fmt.Printf("  New articles: %d\n", res.New)
		fmt.Printf("  Duplicates: %d exact, %d fuzzy, %d semantic\n", res.Dedup.Exact, res.Dedup.Fuzzy, res.Dedup.Semantic)
		if len(res.SourcesFailed) > 0 {
			fmt.Printf("  Failed sources: %s\n", strings.Join(res.SourcesFailed, ", "))
		}
		return nil
	},
}

// --- fetch command ---

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch full text for articles scraped without a body",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := newFetcher(db).FetchMissing(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d, failed %d, skipped %d (blocked domains)\n", res.Fetched, res.Failed, res.SkippedDomains)
		return nil
	},
}

// --- analyze command ---

var analyzeEmail bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Enrich pending articles, write a briefing and queue post drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		a := newAnalyzer(db, newQueueStore(db), mailer.New(cfg.SMTP))
		res, err := a.Run(cmd.Context(), analyzeEmail)
		if err != nil {
			return err
		}

		fmt.Printf("Analyzed %d of %d pending (%d failed), %d relevant\n", res.Analyzed, res.Pending, res.Failed, res.Relevant)
		if res.BriefingID != "" {
			fmt.Printf("Briefing %s, %d drafts, %d queued\n", res.BriefingID, res.Drafts, res.Queued)
		}
		if res.Emailed {
			fmt.Printf("Briefing emailed to %s\n", cfg.Briefing.EmailTo)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeEmail, "email", false, "Email the briefing to briefing.email_to")
}

// --- publish command ---

var (
	publishPlatform string
	publishLimit    int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Drain due items from the publish queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		lock, err := publish.AcquireLock(publish.LockPath(cfg.GetDataDir()))
		if err != nil {
			return err
		}
		defer lock.Release()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		limit := publishLimit
		if limit <= 0 {
			limit = cfg.Publish.BatchLimit
		}

		ctx := cmd.Context()
		n := notify.NewService(cfg.Notifications)
		res, err := newDrainer(newQueueStore(db), mailer.New(cfg.SMTP), n).
			Drain(ctx, queue.Filter{Platform: publishPlatform, Limit: limit})
		if err != nil {
			if nerr := n.NotifyError(ctx, err, "publish"); nerr != nil {
				logger.Warn("notification failed", "error", nerr)
			}
			return err
		}

		fmt.Printf("Published %d, failed %d, skipped %d in %s\n",
			res.Published, res.Failed, res.Skipped, res.Duration.Round(time.Millisecond))
		if res.Errors > 0 {
			fmt.Printf("Could not record %d outcomes; see the log before the next drain\n", res.Errors)
			rerr := fmt.Errorf("%d drain outcomes not recorded", res.Errors)
			if err := n.NotifyError(ctx, rerr, "publish"); err != nil {
				logger.Warn("notification failed", "error", err)
			}
		}
		if res.Published+res.Failed > 0 {
			if err := n.NotifyDrainCompleted(ctx, res.Published, res.Failed, res.Skipped, res.Duration); err != nil {
				logger.Warn("notification failed", "error", err)
			}
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishPlatform, "platform", "", "Only drain items for this platform")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Maximum items to dispatch (default publish.batch_limit)")
}

// --- cycle command ---

var cycleEmail bool

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run scrape, fetch, analyze and publish in sequence",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		dd, closeDedup := newDeduplicator(db)
		defer closeDedup()

		q := newQueueStore(db)
		m := mailer.New(cfg.SMTP)
		n := notify.NewService(cfg.Notifications)
		p := &pipeline.Pipeline{
			Collector:  newCollector(db, dd),
			Fetcher:    newFetcher(db),
			Analyzer:   newAnalyzer(db, q, m),
			Drainer:    newDrainer(q, m, n),
			LockPath:   publish.LockPath(cfg.GetDataDir()),
			BatchLimit: cfg.Publish.BatchLimit,
			Email:      cycleEmail,
			Logger:     logger,
		}

		ctx := cmd.Context()
		result := p.Run(ctx)
		for i, step := range result.Steps {
			fmt.Printf("Step %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			switch {
			case step.Err != nil:
				fmt.Printf("  Error: %v\n", step.Err)
			case step.Skipped:
				fmt.Printf("  Skipped: %s\n", step.Summary)
			default:
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			err := errors.New("cycle finished with errors")
			if nerr := n.NotifyError(ctx, err, "cycle"); nerr != nil {
				logger.Warn("notification failed", "error", nerr)
			}
			return err
		}
		return nil
	},
}

func init() {
	cycleCmd.Flags().BoolVar(&cycleEmail, "email", false, "Email the briefing when one is written")
}

// --- maintain command ---

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Archive old articles and purge expired dedup records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := pipeline.Maintain(cmd.Context(), db, time.Now().UTC(),
			cfg.Retention.ArchiveAfterDays, cfg.Dedup.WindowDays)
		if err != nil {
			return err
		}
		fmt.Printf("Archived %d articles, removed %d dedup records\n", res.Archived, res.DedupRemoved)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only inspection server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		srv, err := server.New(db, newQueueStore(db), logger)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.ListenAndServe(cmd.Context(), fmt.Sprintf("localhost:%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default server.port)")
}

// --- notify command ---

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a test push notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Notifications.NtfyTopic == "" {
			return errors.New("notifications.ntfy_topic is not set")
		}
		if err := notify.NewService(cfg.Notifications).TestNotification(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Test notification sent")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyTestCmd)
}

// --- briefings command ---

var briefingsLimit int

var briefingsCmd = &cobra.Command{
	Use:   "briefings",
	Short: "List recent briefings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := db.ListBriefings(cmd.Context(), briefingsLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No briefings yet. Run 'lex analyze' after a scrape.")
			return nil
		}

		rows := make([][]string, 0, len(list))
		for _, b := range list {
			emailed := "-"
			if b.EmailSentAt != nil {
				emailed = b.EmailSentAt.Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{
				b.ID, b.CreatedAt.Format("2006-01-02 15:04"), strconv.Itoa(b.ArticleCount), emailed,
				clip(analyze.ExtractLead(b.BriefingText), 60),
			})
		}
		fmt.Println(renderTable([]string{"ID", "Created", "Articles", "Emailed", "Lead"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
		return nil
	},
}

func init() {
	briefingsCmd.Flags().IntVarP(&briefingsLimit, "limit", "n", 10, "Number of briefings to show")
	rootCmd.AddCommand(briefingsCmd)
}

// clip shortens s to n runes on one line.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
