package favorites

import (
	"context"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/domain"
)

// API is the typed surface exposed to the messaging boundary. The
// extension side maps its string-keyed actions onto these methods; the
// core never sees a message envelope.
type API interface {
	Add(ctx context.Context, f domain.Favorite) (domain.Favorite, error)
	Update(ctx context.Context, remoteID string, updates domain.FavoriteUpdate, cachedRev string, cachedDoc couch.Document) (couch.WriteResult, error)
	Delete(ctx context.Context, remoteID string) (couch.WriteResult, error)
	FindByURL(ctx context.Context, url string) (domain.Favorite, bool)
	Sync(ctx context.Context, local []domain.Favorite) ([]domain.Favorite, error)
	Cached(ctx context.Context) []domain.Favorite
	Drain(ctx context.Context)
	Status() Status
}

var _ API = (*Service)(nil)
