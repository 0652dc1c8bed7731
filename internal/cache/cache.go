// Package cache holds small in-process caches for reference data.
//
// Balances and cashboxes are never cached: both must be read fresh so that
// approval checks see the latest committed state.
package cache

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int64
	Misses int64
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result on success. Errors are not cached.
func GetOrLoad[T any](c Cache[T], key string, load func() (T, error)) (T, error) {
	if c != nil {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if c != nil {
		c.Set(key, v)
	}
	return v, nil
}
