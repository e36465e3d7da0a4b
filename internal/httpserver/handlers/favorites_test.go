package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/domain"
	"github.com/tabula-sync/tabula/internal/favorites"
	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/logger"
)

// stubAPI lets each test script the favorites surface.
type stubAPI struct {
	addFn    func(context.Context, domain.Favorite) (domain.Favorite, error)
	updateFn func(context.Context, string, domain.FavoriteUpdate, string, couch.Document) (couch.WriteResult, error)
	deleteFn func(context.Context, string) (couch.WriteResult, error)
	findFn   func(context.Context, string) (domain.Favorite, bool)
	syncFn   func(context.Context, []domain.Favorite) ([]domain.Favorite, error)
	cachedFn func(context.Context) []domain.Favorite
	status   favorites.Status
}

func (s *stubAPI) Add(ctx context.Context, f domain.Favorite) (domain.Favorite, error) {
	return s.addFn(ctx, f)
}

func (s *stubAPI) Update(ctx context.Context, id string, u domain.FavoriteUpdate, rev string, doc couch.Document) (couch.WriteResult, error) {
	return s.updateFn(ctx, id, u, rev, doc)
}

func (s *stubAPI) Delete(ctx context.Context, id string) (couch.WriteResult, error) {
	return s.deleteFn(ctx, id)
}

func (s *stubAPI) FindByURL(ctx context.Context, url string) (domain.Favorite, bool) {
	return s.findFn(ctx, url)
}

func (s *stubAPI) Sync(ctx context.Context, local []domain.Favorite) ([]domain.Favorite, error) {
	return s.syncFn(ctx, local)
}

func (s *stubAPI) Cached(ctx context.Context) []domain.Favorite {
	if s.cachedFn == nil {
		return nil
	}
	return s.cachedFn(ctx)
}

func (s *stubAPI) Drain(ctx context.Context) {}

func (s *stubAPI) Status() favorites.Status { return s.status }

func testDeps(api *stubAPI) deps.Deps {
	return deps.Deps{Logger: logger.NewNop(), Favorites: api}
}

func TestListFavoritesEmptyCache(t *testing.T) {
	d := testDeps(&stubAPI{})

	rec := httptest.NewRecorder()
	ListFavorites(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/favorites", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty JSON array, never null", body)
	}
}

func TestAddFavorite(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		addErr     error
		wantStatus int
		wantQueued bool
	}{
		{
			name:       "created",
			body:       `{"title":"Example","url":"https://a.example"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation failure",
			body:       `{"title":"","url":"https://a.example"}`,
			addErr:     &domain.ValidationError{Field: "title", Reason: "must not be empty"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "remote failure is queued",
			body:       `{"title":"Example","url":"https://a.example"}`,
			addErr:     errors.New("store unreachable"),
			wantStatus: http.StatusBadGateway,
			wantQueued: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stubAPI{addFn: func(_ context.Context, f domain.Favorite) (domain.Favorite, error) {
				if tt.addErr != nil {
					return domain.Favorite{}, tt.addErr
				}
				f.RemoteID = "doc-1"
				return f, nil
			}}

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/favorites", strings.NewReader(tt.body))
			AddFavorite(testDeps(api)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantQueued {
				var resp errorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if !resp.Queued {
					t.Error("response should mark the failure as queued")
				}
			}
		})
	}
}

func TestUpdateFavoritePassesCacheHints(t *testing.T) {
	var gotID, gotRev string
	var gotDoc couch.Document
	api := &stubAPI{updateFn: func(_ context.Context, id string, u domain.FavoriteUpdate, rev string, doc couch.Document) (couch.WriteResult, error) {
		gotID, gotRev, gotDoc = id, rev, doc
		return couch.WriteResult{OK: true, ID: id, Rev: "2-x"}, nil
	}}

	r := chi.NewRouter()
	r.Put("/api/favorites/{id}", UpdateFavorite(testDeps(api)))

	body := `{"updates":{"title":"New"},"cachedRev":"1-x","cachedDoc":{"_id":"doc-1","_rev":"1-x"}}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/favorites/doc-1", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotID != "doc-1" || gotRev != "1-x" {
		t.Errorf("handler passed id=%q rev=%q", gotID, gotRev)
	}
	if gotDoc.Rev() != "1-x" {
		t.Errorf("cached document not forwarded: %v", gotDoc)
	}
}

func TestFindFavorite(t *testing.T) {
	api := &stubAPI{findFn: func(_ context.Context, url string) (domain.Favorite, bool) {
		if url == "https://hit.example" {
			return domain.Favorite{Title: "Hit", URL: url}, true
		}
		return domain.Favorite{}, false
	}}
	d := testDeps(api)

	rec := httptest.NewRecorder()
	FindFavorite(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/favorites/find", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing url parameter: status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	FindFavorite(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/favorites/find?url=https%3A%2F%2Fmiss.example", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("miss: status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	FindFavorite(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/favorites/find?url=https%3A%2F%2Fhit.example", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("hit: status = %d, want 200", rec.Code)
	}
}

func TestSyncFavoritesOfflineKeepsLocal(t *testing.T) {
	api := &stubAPI{syncFn: func(_ context.Context, local []domain.Favorite) ([]domain.Favorite, error) {
		return nil, favorites.ErrNotConnected
	}}

	rec := httptest.NewRecorder()
	body := `[{"title":"Example","url":"https://a.example"}]`
	SyncFavorites(testDeps(api)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when offline", rec.Code)
	}
	var resp syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Synced {
		t.Error("synced = true, want false when the store is unreachable")
	}
	if len(resp.Favorites) != 1 || resp.Favorites[0].URL != "https://a.example" {
		t.Errorf("favorites = %+v, want the caller's list unchanged", resp.Favorites)
	}
}

type notifierSpy struct {
	notified bool
}

func (n *notifierSpy) NotifyOnline() { n.notified = true }

func TestOnlineEventNotifiesMonitor(t *testing.T) {
	spy := &notifierSpy{}
	d := deps.Deps{Logger: logger.NewNop(), Monitor: spy}

	rec := httptest.NewRecorder()
	OnlineEvent(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events/online", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if !spy.notified {
		t.Error("online event did not reach the monitor")
	}
}

func TestOfflineEventIsIgnored(t *testing.T) {
	spy := &notifierSpy{}
	d := deps.Deps{Logger: logger.NewNop(), Monitor: spy}

	rec := httptest.NewRecorder()
	OfflineEvent(d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events/offline", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if spy.notified {
		t.Error("offline event must not touch connectivity state")
	}
}
