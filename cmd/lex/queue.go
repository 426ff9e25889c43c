package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/lex/internal/queue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the publish queue",
}

var (
	queuePlatform string
	queueStatus   string
	queueLimit    int
)

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue items, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := newQueueStore(db).List(cmd.Context(), queue.Filter{
			Platform: queuePlatform,
			Status:   queue.Status(queueStatus),
			Limit:    queueLimit,
		})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{
				it.ID[:8], it.Platform, it.Language, string(it.Urgency), string(it.Status),
				fmt.Sprintf("%d/%d", it.RetryCount, it.MaxRetries),
				formatOptTime(it.NextRetryAt),
				clip(it.Body, 40),
			})
		}
		fmt.Println(renderTable(
			[]string{"ID", "Platform", "Lang", "Urgency", "Status", "Retries", "Next retry", "Body"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one queue item with its publish log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		it, err := newQueueStore(db).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:          %s\n", it.ID)
		fmt.Printf("Platform:    %s (%s)\n", it.Platform, it.Language)
		fmt.Printf("Urgency:     %s (priority %d)\n", it.Urgency, it.Priority)
		fmt.Printf("Status:      %s\n", it.Status)
		fmt.Printf("Retries:     %d/%d\n", it.RetryCount, it.MaxRetries)
		fmt.Printf("Next retry:  %s\n", formatOptTime(it.NextRetryAt))
		fmt.Printf("Published:   %s\n", formatOptTime(it.PublishedAt))
		if it.PlatformID != nil {
			fmt.Printf("Platform ID: %s\n", *it.PlatformID)
		}
		if it.Error != nil {
			fmt.Printf("Error:       %s\n", *it.Error)
		}
		if it.BriefingID != nil {
			fmt.Printf("Briefing:    %s\n", *it.BriefingID)
		}
		if it.Title != nil {
			fmt.Printf("\nTitle: %s\n", *it.Title)
		}
		fmt.Printf("\n%s\n", it.Body)
		if it.FallbackBody != nil {
			fmt.Printf("\nFallback:\n%s\n", *it.FallbackBody)
		}

		if len(it.PublishLog) > 0 {
			rows := make([][]string, 0, len(it.PublishLog))
			for _, e := range it.PublishLog {
				rows = append(rows, []string{e.At.Format(time.RFC3339), e.Status, e.PlatformID, e.Error})
			}
			fmt.Println()
			fmt.Println(renderTable([]string{"At", "Status", "Platform ID", "Error"}, rows, nil))
		}
		return nil
	},
}

var (
	enqueuePlatform   string
	enqueueTitle      string
	enqueueBody       string
	enqueueFallback   string
	enqueueLanguage   string
	enqueueUrgency    string
	enqueueMaxRetries int
)

var queueEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a post by hand; --body - reads stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := enqueueBody
		if body == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}
			body = strings.TrimSpace(string(data))
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		req := queue.EnqueueRequest{
			Platform:     enqueuePlatform,
			Title:        enqueueTitle,
			Body:         body,
			FallbackBody: enqueueFallback,
			Language:     enqueueLanguage,
			Urgency:      queue.Urgency(enqueueUrgency),
		}
		if cmd.Flags().Changed("max-retries") {
			req.MaxRetries = queue.Retries(enqueueMaxRetries)
		}
		it, err := newQueueStore(db).Enqueue(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Printf("Queued %s for %s (priority %d)\n", it.ID, it.Platform, it.Priority)
		return nil
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Reset a failed item so the next drain retries it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := newQueueStore(db).Requeue(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, queue.ErrInvalidTransition) {
				return fmt.Errorf("only failed items can be requeued: %w", err)
			}
			return err
		}
		fmt.Printf("Requeued %s\n", args[0])
		return nil
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count queue items by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := newQueueStore(db).Stats(cmd.Context())
		if err != nil {
			return err
		}
		var rows [][]string
		for _, s := range []queue.Status{queue.StatusQueued, queue.StatusRetryQueued, queue.StatusPublished, queue.StatusFailed} {
			rows = append(rows, []string{string(s), strconv.Itoa(counts[s])})
		}
		fmt.Println(renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
		return nil
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queuePlatform, "platform", "", "Filter by platform")
	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "Filter by status (queued, retry_queued, published, failed)")
	queueListCmd.Flags().IntVarP(&queueLimit, "limit", "n", 50, "Maximum items to list")

	queueEnqueueCmd.Flags().StringVar(&enqueuePlatform, "platform", "", "Target platform")
	queueEnqueueCmd.Flags().StringVar(&enqueueTitle, "title", "", "Post title, for platforms that take one")
	queueEnqueueCmd.Flags().StringVar(&enqueueBody, "body", "", "Post body, or - for stdin")
	queueEnqueueCmd.Flags().StringVar(&enqueueFallback, "fallback", "", "Shorter body used when the primary is rejected")
	queueEnqueueCmd.Flags().StringVar(&enqueueLanguage, "language", "en", "Body language")
	queueEnqueueCmd.Flags().StringVar(&enqueueUrgency, "urgency", "medium", "high, medium or low")
	queueEnqueueCmd.Flags().IntVar(&enqueueMaxRetries, "max-retries", 0, "Retry budget; 0 makes the first failure final (default publish.max_retries)")
	_ = queueEnqueueCmd.MarkFlagRequired("platform")
	_ = queueEnqueueCmd.MarkFlagRequired("body")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueEnqueueCmd)
	queueCmd.AddCommand(queueRequeueCmd)
	queueCmd.AddCommand(queueStatsCmd)
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
