// Package cache is the shared coordination primitive of the gateway. All
// cross-instance state (session registry, pending calls, action gates) lives
// here, never in process memory, so a fleet of gateway instances can enforce
// per-station invariants regardless of which instance owns the socket.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("cache backing store is not connected")
)

// Namespaces partition the backing store between unrelated concerns.
const (
	NamespaceSessions     = "sessions"
	NamespacePendingCalls = "pendingCalls"
	NamespaceActionGate   = "actionGate"
	NamespaceBootStatus   = "bootStatus"
)

// Blacklisted is the value collaborators store under NamespaceActionGate to
// forbid an action for a station.
const Blacklisted = "blacklisted"

// BootRejected is the value collaborators store under NamespaceBootStatus
// while a station's boot sequence is rejected.
const BootRejected = "rejected"

// Cache is a namespaced key/value store with TTL expiry, an atomic
// check-and-set, and a wait-for-change primitive.
//
// SetIfNotExist is the only primitive the router relies on for the
// one-call-in-flight invariant; implementations must make it atomic.
type Cache interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	// Set stores value under namespace/key. A zero ttl means no expiry.
	Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error
	// SetIfNotExist atomically stores value only if the key is absent and
	// reports whether it did.
	SetIfNotExist(ctx context.Context, namespace, key, value string, ttl time.Duration) (bool, error)
	// Remove deletes the key and reports whether it existed.
	Remove(ctx context.Context, namespace, key string) (bool, error)
	// Exists reports whether the key is present.
	Exists(ctx context.Context, namespace, key string) (bool, error)
	// OnChange blocks until the key's value changes (set or removed) or wait
	// elapses, then returns the value at that moment and whether it exists.
	OnChange(ctx context.Context, namespace, key string, wait time.Duration) (string, bool, error)
}
