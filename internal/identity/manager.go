// Package identity manages the stable per-installation user identifier
// that scopes favorites on the remote store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/tabula-sync/tabula/internal/domain"
	"github.com/tabula-sync/tabula/internal/logger"
	"github.com/tabula-sync/tabula/internal/store"
)

// userIDPattern: 3-32 chars, letters, digits, underscore, hyphen.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

var (
	adjectives = []string{"Quick", "Smart", "Bright", "Cool", "Fast", "Nice", "Super", "Great", "Happy", "Lucky"}
	nouns      = []string{"User", "Tab", "Browser", "Star", "Wave", "Code", "Link", "Page", "Book", "Tree"}
)

// Manager reads and writes the identifier through the synced storage scope
// so it follows the user across installations.
type Manager struct {
	kv     store.KV
	logger logger.Logger
	now    func() time.Time
}

func NewManager(kv store.KV, log logger.Logger) *Manager {
	return &Manager{kv: kv, logger: log, now: time.Now}
}

// ValidateUserID reports whether s is an acceptable identifier.
func ValidateUserID(s string) bool {
	return userIDPattern.MatchString(s)
}

// GenerateUserID produces a readable identifier: adjective + noun + the
// last six digits of the current epoch-millisecond timestamp.
func (m *Manager) GenerateUserID() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	millis := fmt.Sprintf("%d", m.now().UnixMilli())
	return adjective + noun + millis[len(millis)-6:]
}

// GetUserID returns the stored identifier, generating and persisting a
// fresh one when none is stored or the stored value fails validation.
func (m *Manager) GetUserID(ctx context.Context) (string, error) {
	var id string
	err := m.kv.Get(ctx, store.KeyUserID, &id)
	if err == nil && ValidateUserID(id) {
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to read user id: %w", err)
	}

	id = m.GenerateUserID()
	if err := m.kv.Set(ctx, store.KeyUserID, id); err != nil {
		return "", fmt.Errorf("failed to persist user id: %w", err)
	}
	m.logger.Info("generated new user id", logger.String("user_id", id))
	return id, nil
}

// SetUserID replaces the stored identifier. Returns false when candidate
// already is the stored id (no-op), true when it was persisted. It does not
// trigger a resync; that is the caller's call to make.
func (m *Manager) SetUserID(ctx context.Context, candidate string) (bool, error) {
	if !ValidateUserID(candidate) {
		return false, &domain.ValidationError{
			Field:  "userId",
			Reason: "must be 3-32 characters of letters, digits, underscore or hyphen",
		}
	}

	current, err := m.GetUserID(ctx)
	if err != nil {
		return false, err
	}
	if current == candidate {
		return false, nil
	}

	if err := m.kv.Set(ctx, store.KeyUserID, candidate); err != nil {
		return false, fmt.Errorf("failed to persist user id: %w", err)
	}
	m.logger.Info("user id changed",
		logger.String("from", current),
		logger.String("to", candidate))
	return true, nil
}
