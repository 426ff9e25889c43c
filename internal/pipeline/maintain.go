package pipeline

import (
	"context"
	"fmt"
	"time"
)

// MaintenanceStore is the persistence touched by the retention sweep.
type MaintenanceStore interface {
	ArchiveArticlesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CleanupDedup(ctx context.Context, before time.Time) (int64, error)
}

// MaintainResult counts rows touched by Maintain.
type MaintainResult struct {
	Archived     int64
	DedupRemoved int64
}

// Maintain archives articles scraped more than archiveDays ago and purges
// dedup records older than windowDays.
func Maintain(ctx context.Context, store MaintenanceStore, now time.Time, archiveDays, windowDays int) (MaintainResult, error) {
	var r MaintainResult
	var err error
	if archiveDays > 0 {
		r.Archived, err = store.ArchiveArticlesBefore(ctx, now.AddDate(0, 0, -archiveDays))
		if err != nil {
			return r, fmt.Errorf("archiving articles: %w", err)
		}
	}
	if windowDays > 0 {
		r.DedupRemoved, err = store.CleanupDedup(ctx, now.AddDate(0, 0, -windowDays))
		if err != nil {
			return r, fmt.Errorf("cleaning dedup records: %w", err)
		}
	}
	return r, nil
}
