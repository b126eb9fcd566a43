// Package store defines the opaque partitioned keyspace backend contract
// spec.md §1 assumes: named partitions, atomic per-key put/get/delete, and
// ranged iteration over a partition. It deliberately knows nothing about
// bloom filters — standardbloom and expiringbloom are the only callers that
// understand what a "partition" or "key" means.
package store

// PartitionedStore is the backend contract both filter types persist
// through. Implementations must make Put/Get/Delete atomic with respect to
// other callers of the same partition+key, and ForEach must visit keys in
// ascending byte order (spec.md §4.3 recovery relies on "iterate the chunks
// partition in key order").
type PartitionedStore interface {
	// Put writes value under key in partition, creating the partition if it
	// doesn't exist yet.
	Put(partition string, key, value []byte) error

	// Get reads the value stored under key in partition. ok is false if the
	// key (or the partition) doesn't exist.
	Get(partition string, key []byte) (value []byte, ok bool, err error)

	// Delete removes key from partition. Not an error if the key doesn't
	// exist.
	Delete(partition string, key []byte) error

	// DeleteAll removes every key in partition. Not an error if the
	// partition doesn't exist or is already empty.
	DeleteAll(partition string) error

	// ForEach visits every (key, value) pair in partition in ascending key
	// order. fn must not mutate the store; a non-nil return from fn aborts
	// iteration and is returned from ForEach.
	ForEach(partition string, fn func(key, value []byte) error) error

	// Close releases resources held by the store. After Close, the store
	// must not be used.
	Close() error
}
