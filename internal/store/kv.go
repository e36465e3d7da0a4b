// Package store defines the durable key-value surface the sync core
// persists through. Two scopes exist, mirroring the browser's storage
// split: a synced scope that follows the user across installations
// (identity, favorites cache, language) and a device-local scope
// (per-tab metadata, theme).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("store: key not found")

// KV is an async map from string keys to JSON-serializable values.
type KV interface {
	// Get unmarshals the value stored under key into dest.
	// Returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string, dest any) error

	// Set marshals v and stores it under key.
	Set(ctx context.Context, key string, v any) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyUserID    = "userId"
	KeyFavorites = "favorites"
	KeyLanguage  = "language"

	KeyTabMetadata = "tabMetadata"
	KeyTheme       = "theme"
)
