package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/domain"
	"github.com/tabula-sync/tabula/internal/favorites"
	"github.com/tabula-sync/tabula/internal/httpserver/deps"
	"github.com/tabula-sync/tabula/internal/httpserver/mw"
	"github.com/tabula-sync/tabula/internal/httpserver/routes"
	"github.com/tabula-sync/tabula/internal/identity"
	"github.com/tabula-sync/tabula/internal/index"
	"github.com/tabula-sync/tabula/internal/logger"
	"github.com/tabula-sync/tabula/internal/pending"
	"github.com/tabula-sync/tabula/internal/store"
)

// miniCouch is a trimmed in-memory CouchDB: documents with revision
// checks plus the by_user and by_url views.
type miniCouch struct {
	mu   sync.Mutex
	docs map[string]couch.Document
	seq  int
	down bool
}

func (m *miniCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	down := m.down
	m.mu.Unlock()
	if down {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/db"), "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		fmt.Fprint(w, `{"db_name":"db"}`)

	case path == "" && r.Method == http.MethodPost:
		var doc couch.Document
		_ = json.NewDecoder(r.Body).Decode(&doc)
		m.mu.Lock()
		m.seq++
		id := fmt.Sprintf("doc-%d", m.seq)
		doc["_id"], doc["_rev"] = id, "1-i"
		m.docs[id] = doc
		m.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "id": id, "rev": "1-i"})

	case strings.HasPrefix(path, "_design/favorites/_view/"):
		m.serveView(w, r, strings.TrimPrefix(path, "_design/favorites/_view/"))

	default:
		m.serveDoc(w, r, path)
	}
}

func (m *miniCouch) serveDoc(w http.ResponseWriter, r *http.Request, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.docs[id]
	switch r.Method {
	case http.MethodGet:
		if !ok {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(existing)

	case http.MethodPut:
		var doc couch.Document
		_ = json.NewDecoder(r.Body).Decode(&doc)
		if ok && existing.Rev() != doc.Rev() {
			http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
			return
		}
		m.seq++
		rev := fmt.Sprintf("%d-i", m.seq)
		doc["_id"], doc["_rev"] = id, rev
		m.docs[id] = doc
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "id": id, "rev": rev})

	case http.MethodDelete:
		if !ok || existing.Rev() != r.URL.Query().Get("rev") {
			http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
			return
		}
		delete(m.docs, id)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "id": id})
	}
}

func (m *miniCouch) serveView(w http.ResponseWriter, r *http.Request, view string) {
	var key string
	_ = json.Unmarshal([]byte(r.URL.Query().Get("key")), &key)

	m.mu.Lock()
	defer m.mu.Unlock()
	rows := []map[string]any{}
	for id, doc := range m.docs {
		if doc["type"] != "favorite" {
			continue
		}
		emit, _ := doc["owner"].(string)
		if view == "by_url" {
			emit, _ = doc["url"].(string)
		}
		if emit != key {
			continue
		}
		rows = append(rows, map[string]any{
			"id": id,
			"value": map[string]any{
				"title": doc["title"], "url": doc["url"], "favIconUrl": doc["favIconUrl"],
				"owner": doc["owner"], "addedAt": doc["addedAt"], "updatedAt": doc["updatedAt"],
			},
			"doc": doc,
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows})
}

// startDaemon wires the real stack (service, identity, queue, router with
// middlewares) against the in-memory store.
func startDaemon(t *testing.T) (*httptest.Server, *miniCouch) {
	t.Helper()

	mini := &miniCouch{docs: make(map[string]couch.Document)}
	couchSrv := httptest.NewServer(mini)
	t.Cleanup(couchSrv.Close)

	log := logger.NewNop()
	client := couch.NewClient(couch.Config{URL: couchSrv.URL + "/db"}, log)
	prober := couch.NewProber(client, 2*time.Second, log)
	kv := store.NewMemory()
	ident := identity.NewManager(kv, log)
	service := favorites.NewService(client, prober, ident, pending.NewQueue(), index.NewMemoryIndex(), kv, log)

	d := deps.Deps{
		Logger:       log,
		StartTime:    time.Now(),
		AllowedCIDRS: []string{"127.0.0.1/32", "::1/128"},
		Favorites:    service,
		Identity:     ident,
		Prober:       prober,
		Monitor:      noopNotifier{},
		Synced:       kv,
		Local:        store.NewMemory(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(log))
	r.Use(mw.CORS(nil))
	r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, log))
	routes.RegisterAll(r, d)

	apiSrv := httptest.NewServer(r)
	t.Cleanup(apiSrv.Close)
	return apiSrv, mini
}

type noopNotifier struct{}

func (noopNotifier) NotifyOnline() {}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestAddFindSyncFlow(t *testing.T) {
	api, _ := startDaemon(t)

	// Add a favorite through the API.
	resp := postJSON(t, api.URL+"/api/favorites", domain.Favorite{
		Title: "Example", URL: "https://a.example",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", resp.StatusCode)
	}
	created := decode[domain.Favorite](t, resp)
	if created.RemoteID == "" {
		t.Fatal("created favorite lacks a remote id")
	}

	// It must be findable by URL.
	resp, err := http.Get(api.URL + "/api/favorites/find?url=https%3A%2F%2Fa.example")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("find status = %d, want 200", resp.StatusCode)
	}
	found := decode[domain.Favorite](t, resp)
	if found.Title != "Example" {
		t.Errorf("found title = %q", found.Title)
	}

	// A sync with an extra local favorite pushes it.
	resp = postJSON(t, api.URL+"/api/sync", []domain.Favorite{
		{Title: "Example", URL: "https://a.example"},
		{Title: "Second", URL: "https://b.example", AddedAt: time.Now()},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d, want 200", resp.StatusCode)
	}
	sync := decode[struct {
		Synced    bool              `json:"synced"`
		Favorites []domain.Favorite `json:"favorites"`
	}](t, resp)
	if !sync.Synced {
		t.Fatal("sync reported synced=false against a healthy store")
	}
	if len(sync.Favorites) != 2 {
		t.Fatalf("post-sync favorites = %d, want 2", len(sync.Favorites))
	}
	for _, f := range sync.Favorites {
		if f.RemoteID == "" || f.RemoteRev == "" {
			t.Errorf("favorite %s missing remote annotations", f.URL)
		}
	}

	// The cached list now serves without touching the store.
	resp, err = http.Get(api.URL + "/api/favorites")
	if err != nil {
		t.Fatal(err)
	}
	listed := decode[[]domain.Favorite](t, resp)
	if len(listed) != 2 {
		t.Errorf("cached list = %d favorites, want 2", len(listed))
	}
}

func TestOfflineQueueAndReplayFlow(t *testing.T) {
	api, mini := startDaemon(t)

	// Store down: the add fails but is captured.
	mini.mu.Lock()
	mini.down = true
	mini.mu.Unlock()

	resp := postJSON(t, api.URL+"/api/favorites", domain.Favorite{
		Title: "Queued", URL: "https://q.example",
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("add while down: status = %d, want 502", resp.StatusCode)
	}
	errResp := decode[struct {
		Error  string `json:"error"`
		Queued bool   `json:"queued"`
	}](t, resp)
	if !errResp.Queued {
		t.Fatal("failed add was not queued")
	}

	status := decode[favorites.Status](t, mustGet(t, api.URL+"/api/status"))
	if status.PendingOperations != 1 {
		t.Fatalf("pending = %d, want 1", status.PendingOperations)
	}

	// Store back up: a user-invoked sync drains the queue first, so the
	// captured add lands before reconciliation.
	mini.mu.Lock()
	mini.down = false
	mini.mu.Unlock()

	resp = postJSON(t, api.URL+"/api/events/online", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("online event status = %d, want 202", resp.StatusCode)
	}

	resp = postJSON(t, api.URL+"/api/sync", []domain.Favorite{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d, want 200", resp.StatusCode)
	}
	synced := decode[struct {
		Synced    bool              `json:"synced"`
		Favorites []domain.Favorite `json:"favorites"`
	}](t, resp)
	if !synced.Synced {
		t.Fatal("sync reported synced=false after the store recovered")
	}
	if len(synced.Favorites) != 1 || synced.Favorites[0].URL != "https://q.example" {
		t.Fatalf("replayed favorite missing from post-sync collection: %+v", synced.Favorites)
	}

	status = decode[favorites.Status](t, mustGet(t, api.URL+"/api/status"))
	if status.PendingOperations != 0 {
		t.Errorf("pending = %d after replay, want 0", status.PendingOperations)
	}
}

func TestUserIdentityFlow(t *testing.T) {
	api, _ := startDaemon(t)

	user := decode[struct {
		UserID string `json:"userId"`
	}](t, mustGet(t, api.URL+"/api/user"))
	if user.UserID == "" {
		t.Fatal("no identity generated")
	}

	// Identity is stable across calls.
	again := decode[struct {
		UserID string `json:"userId"`
	}](t, mustGet(t, api.URL+"/api/user"))
	if again.UserID != user.UserID {
		t.Errorf("identity changed between calls: %q then %q", user.UserID, again.UserID)
	}

	// Replacing it reports changed=true.
	req, err := http.NewRequest(http.MethodPut, api.URL+"/api/user", strings.NewReader(`{"userId":"BrightStar123456"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	changed := decode[struct {
		Changed bool `json:"changed"`
	}](t, resp)
	if !changed.Changed {
		t.Error("setting a new identity reported changed=false")
	}
}

func TestHealthEndpoints(t *testing.T) {
	api, _ := startDaemon(t)

	resp := mustGet(t, api.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	ready := decode[struct {
		Ready bool `json:"ready"`
	}](t, mustGet(t, api.URL+"/readyz"))
	// No probe ran yet in this instance.
	if ready.Ready {
		t.Error("readyz reported ready before any successful probe")
	}
}

func mustGet(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}
