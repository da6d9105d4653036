package cache

import (
	"context"
	"time"
)

// Namespaces used by the engine. Namespacing lets subsystems share one cache
// instance without key collisions.
const (
	NamespaceContent    = "content"
	NamespaceValidation = "validation"
)

type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Sets      int64 `json:"sets"`
	Entries   int   `json:"entries"`
}

// Cache is a namespaced, TTL-bounded key/value store. Get past an entry's
// expiry must behave as a miss and drop the entry.
type Cache interface {
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
	Stats() Stats
}

func namespacedKey(namespace, key string) string {
	return namespace + ":" + key
}
