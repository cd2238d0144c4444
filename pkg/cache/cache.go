package cache

import "time"

// Cache is a small TTL key/value cache used for exchange metadata.
type Cache interface {
	// Get returns (value, true) when key is present and not expired.
	Get(key string) (interface{}, bool)

	// Set stores value under key for ttl. Writes are applied asynchronously
	// and may be rejected by admission; a false return means the value was dropped.
	Set(key string, value interface{}, ttl time.Duration) bool

	// Delete removes key.
	Delete(key string)

	// Clear removes all values.
	Clear()

	// Close releases resources.
	Close()
}
