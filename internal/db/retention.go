package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PruneStale deletes indexed chunks older than retentionHours across all
// tenants. It runs once at startup; retentionHours <= 0 disables it.
func PruneStale(ctx context.Context, pool *pgxpool.Pool, retentionHours int) error {
	if retentionHours <= 0 {
		return nil
	}

	tag, err := pool.Exec(ctx,
		`DELETE FROM chunk_embeddings
		 WHERE created_at < now() - make_interval(hours => $1)`,
		retentionHours,
	)
	if err != nil {
		return fmt.Errorf("prune stale chunks: %w", err)
	}
	if tag.RowsAffected() > 0 {
		slog.Warn("retention: pruned stale indexed chunks",
			"count", tag.RowsAffected(),
			"retention_hours", retentionHours,
		)
	}

	slog.Info("retention sweep complete")
	return nil
}
