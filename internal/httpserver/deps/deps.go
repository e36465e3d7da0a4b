package deps

import (
	"time"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/favorites"
	"github.com/tabula-sync/tabula/internal/identity"
	"github.com/tabula-sync/tabula/internal/logger"
	"github.com/tabula-sync/tabula/internal/store"
)

// OnlineNotifier receives the browser's "online" transition. Offline
// transitions never reach it; they are distrusted and dropped upstream.
type OnlineNotifier interface {
	NotifyOnline()
}

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time // for testing, defaults to time.Now
	AllowedOrigins []string         // extension origins allowed through CORS
	AllowedCIDRS   []string         // IPs allowed to call the API
	Favorites      favorites.API    // the sync core's typed surface
	Identity       *identity.Manager
	Prober         *couch.Prober
	Monitor        OnlineNotifier
	Synced         store.KV // user-scoped settings (language)
	Local          store.KV // installation-scoped settings (theme, tab metadata)
}
