package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"
)

// FingerprintRepository stores seen article fingerprints with timestamps,
// backing cross-run deduplication
type FingerprintRepository struct {
	db *sqlx.DB
}

// NewFingerprintRepository creates a new fingerprint repository
func NewFingerprintRepository(db *sqlx.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db}
}

// SeenSince reports which of the given fingerprints were recorded at or after
// the since timestamp
func (r *FingerprintRepository) SeenSince(ctx context.Context, fingerprints []string, since time.Time) (map[string]bool, error) {
	seen := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return seen, nil
	}

	query, args, err := sqlx.In("SELECT fingerprint FROM fingerprints WHERE fingerprint IN (?) AND seen_at >= ?", fingerprints, since)
	if err != nil {
		return nil, fmt.Errorf("build seen query: %w", err)
	}

	var found []string
	if err := r.db.SelectContext(ctx, &found, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query fingerprints: %w", err)
	}

	for _, fp := range found {
		seen[fp] = true
	}
	return seen, nil
}

// Add records fingerprints as seen at the given time. Re-adding an existing
// fingerprint refreshes its timestamp.
func (r *FingerprintRepository) Add(ctx context.Context, fingerprints []string, seenAt time.Time) error {
	if len(fingerprints) == 0 {
		return nil
	}

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("begin tx: %w", err)}
		}
		defer tx.Rollback()

		for _, fp := range fingerprints {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO fingerprints (fingerprint, seen_at) VALUES (?, ?) ON CONFLICT(fingerprint) DO UPDATE SET seen_at = excluded.seen_at",
				fp, seenAt); err != nil {
				if isLockError(err) {
					return err // retry
				}
				return &criticalError{err: fmt.Errorf("insert fingerprint: %w", err)}
			}
		}

		if err := tx.Commit(); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("commit fingerprints: %w", err)}
		}
		return nil
	})
}

// DeleteOlderThan evicts fingerprints last seen before the cutoff and returns
// the number of rows removed
func (r *FingerprintRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM fingerprints WHERE seen_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old fingerprints: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of stored fingerprints
func (r *FingerprintRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM fingerprints"); err != nil {
		return 0, fmt.Errorf("count fingerprints: %w", err)
	}
	return count, nil
}
