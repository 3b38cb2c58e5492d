package cache

import (
	"context"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, store Store, pattern string) {
	if err := store.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, store Store, keys ...string) {
	if err := store.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// Stats cache keys.
func StudentStatsKey(username string) string {
	return "student:" + username
}

const SystemInfoKey = "system"

// InvalidateStudentStats drops a student's dashboard and the system summary,
// which both aggregate the student's record.
func InvalidateStudentStats(ctx context.Context, cm *CacheManager, username string) {
	SafeDelete(ctx, cm.Stats, StudentStatsKey(username), SystemInfoKey)
}

// InvalidateAllStats is used after bulk changes such as a restore or a
// cascading delete.
func InvalidateAllStats(ctx context.Context, cm *CacheManager) {
	SafeInvalidatePattern(ctx, cm.Stats, "*")
}
