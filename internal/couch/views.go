package couch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tabula-sync/tabula/internal/domain"
)

const (
	// DesignDocID holds the two secondary indexes the client depends on.
	DesignDocID = "_design/favorites"

	// DocTypeFavorite tags favorite documents for collection filtering.
	DocTypeFavorite = "favorite"
)

const byUserMap = `function(doc) {
  if (doc.type === 'favorite') {
    emit(doc.owner, {
      title: doc.title,
      url: doc.url,
      favIconUrl: doc.favIconUrl,
      owner: doc.owner,
      addedAt: doc.addedAt,
      updatedAt: doc.updatedAt
    });
  }
}`

const byURLMap = `function(doc) {
  if (doc.type === 'favorite') {
    emit(doc.url, {
      title: doc.title,
      url: doc.url,
      favIconUrl: doc.favIconUrl,
      owner: doc.owner,
      addedAt: doc.addedAt,
      updatedAt: doc.updatedAt
    });
  }
}`

func designViews() Document {
	return Document{
		"by_user": map[string]any{"map": byUserMap},
		"by_url":  map[string]any{"map": byURLMap},
	}
}

// EnsureViews bootstraps or upgrades the design document. A missing design
// doc (404) is created fresh; an existing one is rewritten through its
// current _rev only when the view definitions differ.
func (c *Client) EnsureViews(ctx context.Context) error {
	fresh := Document{"_id": DesignDocID, "views": designViews()}

	existing, err := c.GetDocument(ctx, DesignDocID)
	if err != nil {
		if IsNotFound(err) {
			if _, err := c.PutDocument(ctx, DesignDocID, fresh); err != nil {
				return fmt.Errorf("failed to create design document: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to fetch design document: %w", err)
	}

	if sameViews(existing["views"], fresh["views"]) {
		return nil
	}

	fresh["_rev"] = existing.Rev()
	if _, err := c.PutDocument(ctx, DesignDocID, fresh); err != nil {
		return fmt.Errorf("failed to update design document: %w", err)
	}
	return nil
}

// sameViews compares view definitions by canonical JSON. json.Marshal sorts
// map keys, so equal definitions always serialize identically.
func sameViews(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

// favoriteValue is the shape both views emit.
type favoriteValue struct {
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	FavIconURL string    `json:"favIconUrl"`
	Owner      string    `json:"owner"`
	AddedAt    time.Time `json:"addedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type viewRow struct {
	ID    string        `json:"id"`
	Value favoriteValue `json:"value"`
	Doc   Document      `json:"doc"`
}

type viewResponse struct {
	Rows []viewRow `json:"rows"`
}

// FavoritesByOwner returns the remote collection scoped to one identity.
// Rows come back with include_docs so every favorite carries its current
// revision and full-document snapshot for fast-path updates.
func (c *Client) FavoritesByOwner(ctx context.Context, owner string) ([]domain.Favorite, error) {
	return c.queryView(ctx, "by_user", owner)
}

// FavoritesByURL returns every favorite sharing a URL, across owners.
// Callers filter to the identity they care about.
func (c *Client) FavoritesByURL(ctx context.Context, target string) ([]domain.Favorite, error) {
	return c.queryView(ctx, "by_url", target)
}

func (c *Client) queryView(ctx context.Context, view, key string) ([]domain.Favorite, error) {
	encodedKey, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode view key: %w", err)
	}
	path := fmt.Sprintf("%s/_view/%s?key=%s&include_docs=true",
		DesignDocID, view, url.QueryEscape(string(encodedKey)))

	raw, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp viewResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode view response: %w", err)
	}

	favorites := make([]domain.Favorite, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		favorites = append(favorites, domain.Favorite{
			Title:      row.Value.Title,
			URL:        row.Value.URL,
			FavIconURL: row.Value.FavIconURL,
			Owner:      row.Value.Owner,
			AddedAt:    row.Value.AddedAt,
			UpdatedAt:  row.Value.UpdatedAt,
			RemoteID:   row.ID,
			RemoteRev:  row.Doc.Rev(),
			RemoteDoc:  row.Doc,
		})
	}
	return favorites, nil
}

// FavoriteDocument builds the wire document for a favorite. Timestamps
// serialize as RFC 3339, matching what every other client of the store
// writes.
func FavoriteDocument(f domain.Favorite) Document {
	return Document{
		"type":       DocTypeFavorite,
		"title":      f.Title,
		"url":        f.URL,
		"favIconUrl": f.FavIconURL,
		"owner":      f.Owner,
		"addedAt":    f.AddedAt,
		"updatedAt":  f.UpdatedAt,
	}
}
