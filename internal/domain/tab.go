package domain

import "context"

// Tab is the opaque record shape the browser reports for an open tab.
// The daemon only reads tabs; creating, activating or closing them goes
// through the extension's own messaging and never through this process.
type Tab struct {
	ID         int    `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	WindowID   int    `json:"windowId"`
	FavIconURL string `json:"favIconUrl,omitempty"`
	Active     bool   `json:"active,omitempty"`
}

// TabSource is implemented by whatever process embeds the sync core and can
// enumerate the browser's current windows and tabs.
type TabSource interface {
	Tabs(ctx context.Context) ([]Tab, error)
}
