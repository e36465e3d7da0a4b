package index

import (
	"sync"
	"time"

	"github.com/tabula-sync/tabula/internal/domain"
)

// MemoryIndex keeps the last reconciled favorites collection in memory,
// addressable by URL and by remote document id. The remote rev/document
// annotations it holds feed the fast-path tiers of conditional updates.
type MemoryIndex struct {
	mu       sync.RWMutex
	byURL    map[string]*domain.Favorite
	byRemote map[string]*domain.Favorite
	lastSync time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		byURL:    make(map[string]*domain.Favorite),
		byRemote: make(map[string]*domain.Favorite),
	}
}

// ReplaceAll swaps in a freshly synced collection and stamps the sync time.
func (idx *MemoryIndex) ReplaceAll(favorites []domain.Favorite) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.byURL = make(map[string]*domain.Favorite, len(favorites))
	idx.byRemote = make(map[string]*domain.Favorite, len(favorites))
	for i := range favorites {
		f := favorites[i]
		idx.byURL[f.URL] = &f
		if f.RemoteID != "" {
			idx.byRemote[f.RemoteID] = &f
		}
	}
	idx.lastSync = time.Now()
}

// ByURL retrieves a favorite by its URL.
func (idx *MemoryIndex) ByURL(url string) (domain.Favorite, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, ok := idx.byURL[url]
	if !ok {
		return domain.Favorite{}, false
	}
	return *f, true
}

// ByRemoteID retrieves a favorite by its remote document id.
func (idx *MemoryIndex) ByRemoteID(id string) (domain.Favorite, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, ok := idx.byRemote[id]
	if !ok {
		return domain.Favorite{}, false
	}
	return *f, true
}

// Upsert adds or refreshes a single favorite, e.g. after a conditional
// update returned a new revision.
func (idx *MemoryIndex) Upsert(f domain.Favorite) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.byRemote[f.RemoteID]; ok && old.URL != f.URL {
		delete(idx.byURL, old.URL)
	}
	idx.byURL[f.URL] = &f
	if f.RemoteID != "" {
		idx.byRemote[f.RemoteID] = &f
	}
}

// Forget drops one favorite by remote id, e.g. after a delete.
func (idx *MemoryIndex) Forget(remoteID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if f, ok := idx.byRemote[remoteID]; ok {
		delete(idx.byURL, f.URL)
		delete(idx.byRemote, remoteID)
	}
}

// All returns the indexed collection.
func (idx *MemoryIndex) All() []domain.Favorite {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]domain.Favorite, 0, len(idx.byURL))
	for _, f := range idx.byURL {
		out = append(out, *f)
	}
	return out
}

// Count returns the number of indexed favorites.
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byURL)
}

// LastSync returns when the index was last replaced by a sync pass.
func (idx *MemoryIndex) LastSync() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.lastSync
}
