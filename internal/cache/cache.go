package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/usagebilling/core/internal/config"
	"github.com/usagebilling/core/internal/logger"
)

// Cache defines the interface for caching operations, implemented by both
// an in-memory (single-process) and a redis (horizontally scaled) backend.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)
	Delete(ctx context.Context, key string)
	DeleteByPrefix(ctx context.Context, prefix string)
	Flush(ctx context.Context)
}

// Predefined cache key prefixes.
const (
	PrefixEntitlement  = "entitlement:v1:"
	PrefixSubscription = "subscription:v1:"
	PrefixLockHolder   = "lock:v1:"
	PrefixIdempotence  = "idempotence:v1:"
)

// GenerateKey creates a cache key from a prefix and a set of parameters,
// joining all parameters with a colon.
func GenerateKey(prefix string, params ...interface{}) string {
	parts := make([]string, len(params)+1)
	parts[0] = prefix
	for i, param := range params {
		parts[i+1] = fmt.Sprintf("%v", param)
	}
	return strings.Join(parts, ":")
}

// EntitlementCacheKey builds the (customer, featureSlug, version) key the
// design notes call for — the version hash makes stale entries
// self-invalidating, so readers never need an explicit bust.
func EntitlementCacheKey(customerID, featureSlug, version string) string {
	return GenerateKey(PrefixEntitlement, customerID, featureSlug, version)
}

// New selects the backend CacheConfig.Backend names, defaulting to the
// in-memory cache when unset so a single-instance deployment needs no
// redis configuration at all.
func New(cfg *config.Configuration, log *logger.Logger) Cache {
	if cfg.Cache.Backend == "redis" {
		return NewRedisCache(cfg, log)
	}
	return NewInMemoryCache(cfg)
}
