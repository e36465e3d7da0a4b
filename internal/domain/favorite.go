package domain

import (
	"strings"
	"time"
)

// DefaultFavIcon is the bundled icon reference substituted for inline
// base64 icons. Inline icons are rejected at ingestion to keep documents
// small; a data: URL can easily be tens of kilobytes.
const DefaultFavIcon = "icons/icon16.png"

// Favorite is a saved URL+title+icon record, the unit of sync.
// The URL is the unique key within an owner's scope.
type Favorite struct {
	// Title is the user-visible label. Non-empty, trimmed.
	Title string `json:"title"`

	// URL is the unique key within the owner's scope.
	URL string `json:"url"`

	// FavIconURL references the site icon. Never an inline data: URL.
	FavIconURL string `json:"favIconUrl,omitempty"`

	// Owner scopes the favorite to one logical user. Remote-side only;
	// stamped when the favorite is pushed.
	Owner string `json:"owner,omitempty"`

	// AddedAt is set once at creation and never changed.
	AddedAt time.Time `json:"addedAt,omitzero"`

	// UpdatedAt is refreshed on every mutation.
	UpdatedAt time.Time `json:"updatedAt,omitzero"`

	// ─────────────────────────────
	// Remote bookkeeping
	// ─────────────────────────────
	// Present only after the favorite has been reconciled against the
	// remote store. RemoteDoc caches the full document for fast-path
	// conditional updates.

	RemoteID  string         `json:"remoteId,omitempty"`
	RemoteRev string         `json:"remoteRev,omitempty"`
	RemoteDoc map[string]any `json:"remoteDoc,omitempty"`
}

// ModifiedAt returns the effective modification time, falling back to the
// creation time when the favorite was never updated after creation.
func (f Favorite) ModifiedAt() time.Time {
	if !f.UpdatedAt.IsZero() {
		return f.UpdatedAt
	}
	return f.AddedAt
}

// NewerThan reports whether f was modified strictly after other.
// When both sides carry no timestamps at all the zero times compare equal,
// so neither side is "newer" and the remote copy wins the tie.
func (f Favorite) NewerThan(other Favorite) bool {
	return f.ModifiedAt().After(other.ModifiedAt())
}

// SanitizeFavIconURL replaces inline data: icons (and missing icons) with
// the bundled default reference.
func SanitizeFavIconURL(s string) string {
	if s == "" || strings.HasPrefix(s, "data:") {
		return DefaultFavIcon
	}
	return s
}

// Sanitized returns a copy of f with title and URL trimmed and the icon
// sanitized. It fails with a ValidationError when title or URL is empty
// after trimming.
func (f Favorite) Sanitized() (Favorite, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.URL = strings.TrimSpace(f.URL)
	if f.Title == "" {
		return Favorite{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if f.URL == "" {
		return Favorite{}, &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	f.FavIconURL = SanitizeFavIconURL(f.FavIconURL)
	return f, nil
}

// FavoriteUpdate carries a partial mutation of a favorite. Nil fields are
// left untouched on the remote document.
type FavoriteUpdate struct {
	Title      *string `json:"title,omitempty"`
	URL        *string `json:"url,omitempty"`
	FavIconURL *string `json:"favIconUrl,omitempty"`
}

// Sanitized trims the provided fields and rejects empty title/URL.
func (u FavoriteUpdate) Sanitized() (FavoriteUpdate, error) {
	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return FavoriteUpdate{}, &ValidationError{Field: "title", Reason: "must not be empty"}
		}
		u.Title = &t
	}
	if u.URL != nil {
		v := strings.TrimSpace(*u.URL)
		if v == "" {
			return FavoriteUpdate{}, &ValidationError{Field: "url", Reason: "must not be empty"}
		}
		u.URL = &v
	}
	return u, nil
}

// Fields returns the update as a document fragment ready to be merged into
// a remote document.
func (u FavoriteUpdate) Fields() map[string]any {
	out := map[string]any{}
	if u.Title != nil {
		out["title"] = *u.Title
	}
	if u.URL != nil {
		out["url"] = *u.URL
	}
	if u.FavIconURL != nil {
		out["favIconUrl"] = *u.FavIconURL
	}
	return out
}
