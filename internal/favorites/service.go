// Package favorites implements the offline-tolerant reconciliation between
// the local favorites collection and the remote CouchDB store: live CRUD
// with queue-on-failure, pending-operation replay, and the full sync pass.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/domain"
	"github.com/tabula-sync/tabula/internal/identity"
	"github.com/tabula-sync/tabula/internal/index"
	"github.com/tabula-sync/tabula/internal/logger"
	"github.com/tabula-sync/tabula/internal/pending"
	"github.com/tabula-sync/tabula/internal/store"
)

// ErrNotConnected is returned by Sync when the store cannot be reached at
// all. Callers fall back to their local collection unchanged.
var ErrNotConnected = errors.New("cannot reach remote store")

// Service owns the sync engine and the CRUD wrappers around the remote
// store. Mutations that fail remotely are queued for replay, never lost
// silently (except across process restarts, a documented limitation of the
// in-memory queue).
type Service struct {
	client   *couch.Client
	prober   *couch.Prober
	identity *identity.Manager
	queue    *pending.Queue
	idx      *index.MemoryIndex
	synced   store.KV
	logger   logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSync time.Time

	// Overlapping drains each snapshot-and-clear the queue, which can
	// replay an operation twice. Individual writes carry revision checks,
	// so a duplicate would mostly be harmless, but we drop overlapping
	// drains anyway.
	draining atomic.Bool
}

func NewService(
	client *couch.Client,
	prober *couch.Prober,
	ident *identity.Manager,
	queue *pending.Queue,
	idx *index.MemoryIndex,
	synced store.KV,
	log logger.Logger,
) *Service {
	return &Service{
		client:   client,
		prober:   prober,
		identity: ident,
		queue:    queue,
		idx:      idx,
		synced:   synced,
		logger:   log,
		now:      time.Now,
	}
}

// Add validates and pushes a new favorite. On remote failure the prepared
// document is queued for replay and the error is returned to the caller.
func (s *Service) Add(ctx context.Context, f domain.Favorite) (domain.Favorite, error) {
	fav, err := f.Sanitized()
	if err != nil {
		return domain.Favorite{}, err
	}

	owner, err := s.identity.GetUserID(ctx)
	if err != nil {
		return domain.Favorite{}, err
	}

	now := s.now()
	fav.Owner = owner
	if fav.AddedAt.IsZero() {
		fav.AddedAt = now
	}
	fav.UpdatedAt = now

	doc := couch.FavoriteDocument(fav)
	res, err := s.client.PostDocument(ctx, doc)
	if err != nil {
		id := s.queue.Enqueue(pending.Operation{Kind: pending.KindAdd, Doc: doc})
		s.logger.Warn("failed to add favorite, queued for replay",
			logger.String("url", fav.URL),
			logger.String("op_id", id.String()),
			logger.Error(err))
		return domain.Favorite{}, fmt.Errorf("failed to add favorite: %w", err)
	}

	fav.RemoteID = res.ID
	fav.RemoteRev = res.Rev
	s.idx.Upsert(fav)
	return fav, nil
}

// Update applies a partial mutation to the document at remoteID. The
// concurrency strategy runs in three tiers, falling through on a detected
// conflict: a cached full document is PUT directly; a cached revision is
// verified with a GET first; and the fallback fetches fresh, merges and
// PUTs. When neither cache argument is supplied, the last synced collection
// is consulted for them.
func (s *Service) Update(
	ctx context.Context,
	remoteID string,
	updates domain.FavoriteUpdate,
	cachedRev string,
	cachedDoc couch.Document,
) (couch.WriteResult, error) {
	sanitized, err := updates.Sanitized()
	if err != nil {
		return couch.WriteResult{}, err
	}

	if cachedRev == "" && cachedDoc == nil {
		if f, ok := s.idx.ByRemoteID(remoteID); ok {
			cachedRev = f.RemoteRev
			cachedDoc = f.RemoteDoc
		}
	}

	res, written, err := s.updateTiers(ctx, remoteID, sanitized, cachedRev, cachedDoc)
	if err != nil {
		id := s.queue.Enqueue(pending.Operation{
			Kind:     pending.KindUpdate,
			RemoteID: remoteID,
			Fields:   sanitized,
		})
		s.logger.Warn("failed to update favorite, queued for replay",
			logger.String("remote_id", remoteID),
			logger.String("op_id", id.String()),
			logger.Error(err))
		return couch.WriteResult{}, fmt.Errorf("failed to update favorite: %w", err)
	}

	s.refreshIndex(remoteID, res, written)
	return res, nil
}

// updateTiers runs the tiered strategy and returns the write result along
// with the document that was written.
func (s *Service) updateTiers(
	ctx context.Context,
	remoteID string,
	updates domain.FavoriteUpdate,
	cachedRev string,
	cachedDoc couch.Document,
) (couch.WriteResult, couch.Document, error) {
	var base couch.Document

	if cachedDoc != nil && cachedDoc.Rev() != "" {
		// Tier 1: trust the cached document outright.
		doc := mergeUpdates(cachedDoc, updates, s.now())
		res, err := s.client.PutDocument(ctx, remoteID, doc)
		if err == nil {
			return res, doc, nil
		}
		if !couch.IsConflict(err) {
			return couch.WriteResult{}, nil, err
		}
		// The cached document went stale; fall through to a fresh fetch.
		s.logger.Debug("cached document outdated, falling back to fetch",
			logger.String("remote_id", remoteID))
	} else if cachedRev != "" {
		// Tier 2: verify the cached revision against the current document.
		current, err := s.client.GetDocument(ctx, remoteID)
		if err == nil {
			if current.Rev() == cachedRev {
				doc := mergeUpdates(current, updates, s.now())
				res, putErr := s.client.PutDocument(ctx, remoteID, doc)
				if putErr == nil {
					return res, doc, nil
				}
				s.logger.Debug("put with verified revision failed",
					logger.String("remote_id", remoteID),
					logger.Error(putErr))
			} else {
				// Stale revision, but the fetch was not wasted: the current
				// document becomes the merge base.
				base = current
			}
		}
	}

	if base == nil {
		current, err := s.client.GetDocument(ctx, remoteID)
		if err != nil {
			return couch.WriteResult{}, nil, err
		}
		base = current
	}

	doc := mergeUpdates(base, updates, s.now())
	res, err := s.client.PutDocument(ctx, remoteID, doc)
	if err != nil {
		return couch.WriteResult{}, nil, err
	}
	return res, doc, nil
}

func mergeUpdates(base couch.Document, updates domain.FavoriteUpdate, now time.Time) couch.Document {
	doc := make(couch.Document, len(base)+1)
	for k, v := range base {
		doc[k] = v
	}
	for k, v := range updates.Fields() {
		doc[k] = v
	}
	doc["updatedAt"] = now
	return doc
}

// refreshIndex keeps the fast-path annotations current after a successful
// conditional write.
func (s *Service) refreshIndex(remoteID string, res couch.WriteResult, written couch.Document) {
	f, ok := s.idx.ByRemoteID(remoteID)
	if !ok {
		return
	}
	snapshot := make(couch.Document, len(written))
	for k, v := range written {
		snapshot[k] = v
	}
	snapshot["_id"] = res.ID
	snapshot["_rev"] = res.Rev

	if title, ok := snapshot["title"].(string); ok {
		f.Title = title
	}
	if icon, ok := snapshot["favIconUrl"].(string); ok {
		f.FavIconURL = icon
	}
	if t, ok := snapshot["updatedAt"].(time.Time); ok {
		f.UpdatedAt = t
	}
	f.RemoteRev = res.Rev
	f.RemoteDoc = snapshot
	s.idx.Upsert(f)
}

// Delete removes the remote document, fetching its current revision first.
func (s *Service) Delete(ctx context.Context, remoteID string) (couch.WriteResult, error) {
	res, err := s.deleteRemote(ctx, remoteID)
	if err != nil {
		id := s.queue.Enqueue(pending.Operation{Kind: pending.KindDelete, RemoteID: remoteID})
		s.logger.Warn("failed to delete favorite, queued for replay",
			logger.String("remote_id", remoteID),
			logger.String("op_id", id.String()),
			logger.Error(err))
		return couch.WriteResult{}, fmt.Errorf("failed to delete favorite: %w", err)
	}
	s.idx.Forget(remoteID)
	return res, nil
}

func (s *Service) deleteRemote(ctx context.Context, remoteID string) (couch.WriteResult, error) {
	doc, err := s.client.GetDocument(ctx, remoteID)
	if err != nil {
		return couch.WriteResult{}, err
	}
	return s.client.DeleteDocument(ctx, remoteID, doc.Rev())
}

// FindByURL looks the URL up in the remote by_url index and returns the
// first match owned by the current identity. A failed query means "not
// found", never an error.
func (s *Service) FindByURL(ctx context.Context, url string) (domain.Favorite, bool) {
	owner, err := s.identity.GetUserID(ctx)
	if err != nil {
		s.logger.Error("failed to resolve identity for lookup", logger.Error(err))
		return domain.Favorite{}, false
	}

	matches, err := s.client.FavoritesByURL(ctx, url)
	if err != nil {
		s.logger.Error("failed to find favorite by url",
			logger.String("url", url),
			logger.Error(err))
		return domain.Favorite{}, false
	}

	for _, f := range matches {
		if f.Owner == owner {
			return f, true
		}
	}
	return domain.Favorite{}, false
}

// Sync reconciles local against the remote collection and returns the
// canonical post-sync state. When the store is unreachable it returns
// ErrNotConnected and the caller keeps its local list. Every failure past
// the connectivity gate degrades to "stay local": the local list comes back
// unchanged with a nil error, never corrupted or emptied.
func (s *Service) Sync(ctx context.Context, local []domain.Favorite) ([]domain.Favorite, error) {
	s.logger.Info("starting sync", logger.Int("local_count", len(local)))

	if !s.prober.Check(ctx) {
		s.logger.Info("not connected, skipping sync")
		return nil, ErrNotConnected
	}

	synced, err := s.reconcile(ctx, local)
	if err != nil {
		s.logger.Error("sync failed, keeping local favorites", logger.Error(err))
		return local, nil
	}

	s.logger.Info("sync completed",
		logger.Int("favorite_count", len(synced)),
		logger.Time("at", s.LastSyncTime()))
	return synced, nil
}

func (s *Service) reconcile(ctx context.Context, local []domain.Favorite) ([]domain.Favorite, error) {
	owner, err := s.identity.GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := s.client.FavoritesByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	remoteByURL := make(map[string]domain.Favorite, len(remote))
	for _, r := range remote {
		remoteByURL[r.URL] = r
	}

	for _, l := range local {
		r, ok := remoteByURL[l.URL]
		if !ok {
			if _, err := s.Add(ctx, l); err != nil {
				return nil, err
			}
			continue
		}

		// Last-write-wins by client timestamp; remote wins ties. URL and
		// ownership are immutable in this flow, only title and icon move.
		if l.NewerThan(r) {
			icon := domain.SanitizeFavIconURL(l.FavIconURL)
			up := domain.FavoriteUpdate{
				Title:      &l.Title,
				FavIconURL: &icon,
			}
			if _, err := s.Update(ctx, r.RemoteID, up, r.RemoteRev, r.RemoteDoc); err != nil {
				return nil, err
			}
		}
	}

	// The post-push re-fetch is the authoritative result, annotated with
	// remote ids and revisions for later fast-path updates.
	synced, err := s.client.FavoritesByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastSync = s.now()
	s.mu.Unlock()

	s.idx.ReplaceAll(synced)
	if err := s.synced.Set(ctx, store.KeyFavorites, synced); err != nil {
		s.logger.Warn("failed to persist favorites cache", logger.Error(err))
	}
	return synced, nil
}

// Cached returns the last persisted favorites collection, falling back to
// the in-memory index when nothing was ever persisted.
func (s *Service) Cached(ctx context.Context) []domain.Favorite {
	var favorites []domain.Favorite
	err := s.synced.Get(ctx, store.KeyFavorites, &favorites)
	if err == nil {
		return favorites
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("failed to read favorites cache", logger.Error(err))
	}
	return s.idx.All()
}

// Drain replays queued operations in order through the same request paths
// as live CRUD. It re-probes first and leaves the queue untouched when the
// store is unreachable; operations that fail replay are re-appended.
func (s *Service) Drain(ctx context.Context) {
	if s.queue.Len() == 0 {
		return
	}
	if !s.draining.CompareAndSwap(false, true) {
		s.logger.Debug("drain already in progress, skipping")
		return
	}
	defer s.draining.Store(false)

	if !s.prober.Check(ctx) {
		s.logger.Info("not connected, cannot replay pending operations")
		return
	}

	ops := s.queue.TakeAll()
	s.logger.Info("replaying pending operations", logger.Int("count", len(ops)))

	for _, op := range ops {
		if err := s.replay(ctx, op); err != nil {
			s.logger.Error("failed to replay pending operation",
				logger.String("op_id", op.ID.String()),
				logger.String("kind", string(op.Kind)),
				logger.Error(err))
			s.queue.Requeue(op)
		}
	}
}

func (s *Service) replay(ctx context.Context, op pending.Operation) error {
	switch op.Kind {
	case pending.KindAdd:
		_, err := s.client.PostDocument(ctx, op.Doc)
		return err

	case pending.KindUpdate:
		existing, err := s.client.GetDocument(ctx, op.RemoteID)
		if err != nil {
			return err
		}
		_, err = s.client.PutDocument(ctx, op.RemoteID, mergeUpdates(existing, op.Fields, s.now()))
		return err

	case pending.KindDelete:
		doc, err := s.client.GetDocument(ctx, op.RemoteID)
		if err != nil {
			return err
		}
		_, err = s.client.DeleteDocument(ctx, op.RemoteID, doc.Rev())
		return err

	default:
		return fmt.Errorf("unknown pending operation kind %q", op.Kind)
	}
}

// LastSyncTime returns when the last sync pass completed, zero if never.
func (s *Service) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Status describes the sync subsystem for the UI's status surface.
type Status struct {
	couch.Status
	PendingOperations int       `json:"pendingOperations"`
	LastSyncTime      time.Time `json:"lastSyncTime,omitzero"`
	Endpoint          string    `json:"endpoint"`
	StatusText        string    `json:"statusText"`
}

func (s *Service) Status() Status {
	conn := s.prober.Status()
	text := "network offline"
	if conn.Connected {
		text = "connected"
	} else if conn.Online {
		text = "server unreachable"
	}
	return Status{
		Status:            conn,
		PendingOperations: s.queue.Len(),
		LastSyncTime:      s.LastSyncTime(),
		Endpoint:          s.client.BaseURL(),
		StatusText:        text,
	}
}
