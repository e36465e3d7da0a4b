package favorites

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tabula-sync/tabula/internal/couch"
)

// fakeCouch is an in-memory CouchDB good enough for the sync engine: real
// revision bumping, conflict detection, the two view indexes, and
// toggleable failure modes.
type fakeCouch struct {
	mu        sync.Mutex
	docs      map[string]couch.Document
	seq       int
	down      bool // every request answers 503
	viewsDown bool // only view queries answer 500
	requests  []string
}

func newFakeCouch() *fakeCouch {
	return &fakeCouch{docs: make(map[string]couch.Document)}
}

func (f *fakeCouch) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeCouch) setViewsDown(down bool) {
	f.mu.Lock()
	f.viewsDown = down
	f.mu.Unlock()
}

func (f *fakeCouch) doc(id string) (couch.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d, ok
}

func (f *fakeCouch) seed(t *testing.T, doc couch.Document) couch.Document {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("seed-%d", f.seq)
	stored := couch.Document{"_id": id, "_rev": "1-seed"}
	for k, v := range doc {
		stored[k] = v
	}
	f.docs[id] = stored
	return stored
}

// reqCount counts handled requests whose method+path starts with prefix.
func (f *fakeCouch) reqCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeCouch) resetRequests() {
	f.mu.Lock()
	f.requests = nil
	f.mu.Unlock()
}

func bumpRev(rev string) string {
	n := 0
	if i := strings.IndexByte(rev, '-'); i > 0 {
		n, _ = strconv.Atoi(rev[:i])
	}
	return fmt.Sprintf("%d-fake", n+1)
}

func (f *fakeCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	down, viewsDown := f.down, f.viewsDown
	f.mu.Unlock()

	if down {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/db"), "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		writeDoc(w, http.StatusOK, couch.Document{"db_name": "db"})

	case path == "" && r.Method == http.MethodPost:
		var doc couch.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, `{"error":"bad_request"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.seq++
		id := fmt.Sprintf("doc-%d", f.seq)
		doc["_id"] = id
		doc["_rev"] = "1-fake"
		f.docs[id] = doc
		f.mu.Unlock()
		writeDoc(w, http.StatusCreated, couch.Document{"ok": true, "id": id, "rev": "1-fake"})

	case strings.HasPrefix(path, "_design/favorites/_view/"):
		if viewsDown {
			http.Error(w, `{"error":"view_broken"}`, http.StatusInternalServerError)
			return
		}
		f.serveView(w, r, strings.TrimPrefix(path, "_design/favorites/_view/"))

	default:
		f.serveDoc(w, r, path)
	}
}

func (f *fakeCouch) serveDoc(w http.ResponseWriter, r *http.Request, path string) {
	id, _ := url.PathUnescape(path)

	switch r.Method {
	case http.MethodGet:
		doc, ok := f.doc(id)
		if !ok {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		writeDoc(w, http.StatusOK, doc)

	case http.MethodPut:
		var doc couch.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, `{"error":"bad_request"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		existing, ok := f.docs[id]
		if ok && existing.Rev() != doc.Rev() {
			http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
			return
		}
		rev := "1-fake"
		if ok {
			rev = bumpRev(existing.Rev())
		}
		doc["_id"] = id
		doc["_rev"] = rev
		f.docs[id] = doc
		writeDoc(w, http.StatusCreated, couch.Document{"ok": true, "id": id, "rev": rev})

	case http.MethodDelete:
		f.mu.Lock()
		defer f.mu.Unlock()
		existing, ok := f.docs[id]
		if !ok {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		if existing.Rev() != r.URL.Query().Get("rev") {
			http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
			return
		}
		delete(f.docs, id)
		writeDoc(w, http.StatusOK, couch.Document{"ok": true, "id": id, "rev": bumpRev(existing.Rev())})

	default:
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (f *fakeCouch) serveView(w http.ResponseWriter, r *http.Request, view string) {
	var key string
	if err := json.Unmarshal([]byte(r.URL.Query().Get("key")), &key); err != nil {
		http.Error(w, `{"error":"bad_request"}`, http.StatusBadRequest)
		return
	}
	includeDocs := r.URL.Query().Get("include_docs") == "true"

	f.mu.Lock()
	defer f.mu.Unlock()

	rows := []couch.Document{}
	for id, doc := range f.docs {
		if doc["type"] != "favorite" {
			continue
		}
		var emit string
		switch view {
		case "by_user":
			emit, _ = doc["owner"].(string)
		case "by_url":
			emit, _ = doc["url"].(string)
		default:
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		if emit != key {
			continue
		}
		row := couch.Document{
			"id": id,
			"value": couch.Document{
				"title":      doc["title"],
				"url":        doc["url"],
				"favIconUrl": doc["favIconUrl"],
				"owner":      doc["owner"],
				"addedAt":    doc["addedAt"],
				"updatedAt":  doc["updatedAt"],
			},
		}
		if includeDocs {
			row["doc"] = doc
		}
		rows = append(rows, row)
	}
	writeDoc(w, http.StatusOK, couch.Document{"total_rows": len(rows), "rows": rows})
}

func writeDoc(w http.ResponseWriter, status int, doc couch.Document) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

func startFakeCouch(t *testing.T) (*fakeCouch, *httptest.Server) {
	t.Helper()
	fake := newFakeCouch()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv
}
