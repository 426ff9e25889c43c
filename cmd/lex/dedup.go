package main

import (
	"fmt"
	"time"

	"github.com/TobiSchelling/lex/internal/dedup"
	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Inspect and maintain dedup history",
}

var (
	dedupSource string
	dedupURL    string
	dedupBody   string
)

var dedupCheckCmd = &cobra.Command{
	Use:   "check <title>",
	Short: "Report whether a title would be rejected, without recording it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		dd, closeDedup := newDeduplicator(db)
		defer closeDedup()

		v := dd.Check(cmd.Context(), dedup.Candidate{
			Source: dedupSource,
			Title:  args[0],
			URL:    dedupURL,
			Body:   dedupBody,
		})

		fmt.Printf("Normalized: %s\n", v.TitleNorm)
		if !v.Duplicate {
			fmt.Println("Novel")
			return nil
		}
		fmt.Printf("Duplicate (%s)", v.Reason)
		if v.Match != "" {
			fmt.Printf(" of %q", v.Match)
		}
		if v.Score > 0 {
			fmt.Printf(", score %.3f", v.Score)
		}
		fmt.Println()
		return nil
	},
}

var dedupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete exact-match records older than dedup.window_days",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Dedup.WindowDays)
		n, err := db.CleanupDedup(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d dedup records older than %s\n", n, cutoff.Format("2006-01-02"))
		return nil
	},
}

func init() {
	dedupCheckCmd.Flags().StringVar(&dedupSource, "source", "manual", "Source name")
	dedupCheckCmd.Flags().StringVar(&dedupURL, "url", "", "Item URL")
	dedupCheckCmd.Flags().StringVar(&dedupBody, "body", "", "Item body, used by the semantic check")

	dedupCmd.AddCommand(dedupCheckCmd)
	dedupCmd.AddCommand(dedupCleanupCmd)
}
