package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DeleteOlderThan deletes rows from all tables where the timestamp is before
// the given unix epoch. Returns the total number of deleted rows.
func (d *DB) DeleteOlderThan(before int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var total int64
	tables := []struct {
		name   string
		column string
	}{
		{"history", "timestamp"},
		{"sleep_events", "sleep_time"},
	}

	// identifiers come from the fixed slice above; placeholders only bind values
	for _, t := range tables {
		res, err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.name, t.column),
			before,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", t.name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	// cached last points may now be gone from disk; reload lazily
	d.mu.Lock()
	d.last = make(map[lastKey]HistoryPoint)
	d.mu.Unlock()
	return total, nil
}

// RunCleanup deletes rows older than retention once at start and then every
// interval until ctx is done.
func (d *DB) RunCleanup(ctx context.Context, retention, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-retention).Unix()
		if n, err := d.DeleteOlderThan(cutoff); err != nil {
			log.Error("history cleanup failed", "err", err)
		} else if n > 0 {
			log.Info("history cleanup", "deleted", n, "cutoff", cutoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
