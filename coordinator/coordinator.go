// Package coordinator wraps the shared key-value store that every other
// package in this module uses for cross-process state: queues, the file
// and host registries, task hashes, and liveness keys. It is the only
// package that imports a concrete store driver; everything else depends
// on the Coordinator interface so it can be swapped for the in-memory
// fake in coordinatortest during unit tests.
package coordinator

import (
	"context"
	"time"

	"gitlab.com/NebulousLabs/errors"
)

// ErrNotFound is returned by RPop, RPopLPush, BRPopLPush and SRandMember
// when the requested list or set is empty or missing (HGetAll instead
// returns an empty map). Coordinator implementations must translate their
// driver's own "no such key" signal (redis.Nil, a missing map entry,
// ...) into this sentinel so callers never depend on a specific driver.
var ErrNotFound = errors.New("coordinator: key not found")

// Coordinator is the typed surface over the shared store named in §4.1
// of the specification: atomic counters, hashes, lists and sets, plus
// key expiration. All byte values are UTF-8 decoded strings.
type Coordinator interface {
	// Incr atomically increments the integer stored at key (creating it
	// at 0 first if necessary) and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// HSet writes the given fields into the hash at key.
	HSet(ctx context.Context, key string, fields map[string]string) error
	// HGetAll returns all fields of the hash at key. An empty, non-nil
	// map is returned if the key does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// LPush left-pushes values onto the list at key.
	LPush(ctx context.Context, key string, values ...string) error
	// RPush right-pushes values onto the list at key.
	RPush(ctx context.Context, key string, values ...string) error
	// RPop removes and returns the rightmost element of the list at
	// key, or ErrNotFound if the list is empty.
	RPop(ctx context.Context, key string) (string, error)
	// RPopLPush atomically moves the rightmost element of src onto the
	// left of dst and returns it, or ErrNotFound if src is empty.
	RPopLPush(ctx context.Context, src, dst string) (string, error)
	// BRPopLPush behaves like RPopLPush but blocks up to timeout for an
	// element to become available. timeout == 0 blocks indefinitely.
	BRPopLPush(ctx context.Context, src, dst string, timeout time.Duration) (string, error)
	// LRem removes up to count occurrences of value from the list at
	// key (negative count searches from the tail) and returns how many
	// were removed.
	LRem(ctx context.Context, key string, count int, value string) (int64, error)
	// LRange returns the list elements between start and stop
	// (inclusive, -1 meaning the last element).
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error
	// SRem removes members from the set at key and returns how many
	// were actually removed.
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	// SCard returns the cardinality of the set at key.
	SCard(ctx context.Context, key string) (int64, error)
	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)
	// SRandMember returns a random member of the set at key, or
	// ErrNotFound if the set is empty.
	SRandMember(ctx context.Context, key string) (string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Del deletes the given keys, ignoring ones that don't exist.
	Del(ctx context.Context, keys ...string) error
	// SetEX sets key to value with the given TTL.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	// Expire refreshes the TTL on an existing key. It reports false
	// (with a nil error) if the key did not exist, matching redis
	// EXPIRE semantics - this is how Heartbeat detects a self-zombie.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
