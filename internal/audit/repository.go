// Package audit keeps a PostgreSQL ledger of capacity snapshots and orphaned blobs.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/picvault/internal/registry"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository writes audit rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordOrphanedBlob inserts a ledger row for a blob that lost its index record.
func (r *Repository) RecordOrphanedBlob(ctx context.Context, blob OrphanedBlob) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO orphaned_blobs (owner, repository, path, asset_id, stage, reason)
VALUES ($1, $2, $3, $4, $5, $6);`

	if _, err := r.pool.Exec(ctx, query, blob.Owner, blob.Repository, blob.Path, blob.AssetID, blob.Stage, blob.Reason); err != nil {
		return fmt.Errorf("record orphaned blob: %w", err)
	}
	return nil
}

// ListOrphanedBlobs returns unresolved ledger rows for owner, newest first.
func (r *Repository) ListOrphanedBlobs(ctx context.Context, owner string, limit int) ([]OrphanedBlob, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
SELECT owner, repository, path, asset_id, stage, reason, recorded_at
FROM orphaned_blobs
WHERE owner = $1
ORDER BY recorded_at DESC
LIMIT $2;`

	rows, err := r.pool.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphaned blobs: %w", err)
	}
	defer rows.Close()

	blobs := []OrphanedBlob{}
	for rows.Next() {
		var b OrphanedBlob
		if err := rows.Scan(&b.Owner, &b.Repository, &b.Path, &b.AssetID, &b.Stage, &b.Reason, &b.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan orphaned blob: %w", err)
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphaned blobs: %w", err)
	}
	return blobs, nil
}

// RecordCapacitySnapshot stores the totals of stats for owner.
func (r *Repository) RecordCapacitySnapshot(ctx context.Context, owner string, stats registry.Stats) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO capacity_snapshots (owner, used_bytes, total_bytes, image_count, repository_count)
VALUES ($1, $2, $3, $4, $5);`

	if _, err := r.pool.Exec(ctx, query, owner, stats.UsedBytes, stats.TotalCapacityBytes, stats.ImageCount, len(stats.Repositories)); err != nil {
		return fmt.Errorf("record capacity snapshot: %w", err)
	}
	return nil
}
