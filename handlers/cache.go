package handlers

import (
	"context"
	"log/slog"

	"leakwatch-api/services"
)

// generationKey resolves key against the current cache generation. It must be
// called before the database read whose result will be cached under it. The
// bool is false when the cache is off or the generation cannot be read.
func generationKey(ctx context.Context, cache *services.CacheService, key string) (string, bool) {
	if !cache.Available() {
		return "", false
	}
	gen, err := cache.Generation(ctx)
	if err != nil {
		slog.Warn("cache generation unavailable", "error", err)
		return "", false
	}
	return services.VersionedKey(key, gen), true
}
