// Package cache memoizes derived views. Entries are keyed by any comparable
// value; the budget store keys them by collection version so a mutation
// makes old entries unreachable without explicit invalidation.
package cache

// Cache defines a generic cache interface
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Size() int
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits   int64
	Misses int64
}
