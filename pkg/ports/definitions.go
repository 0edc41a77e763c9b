package ports

import (
	"context"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
)

// LinkRepository defines storage operations for links
type LinkRepository interface {
	Create(ctx context.Context, link *domain.Link) error
	GetByShortCode(ctx context.Context, code string) (*domain.Link, error)
	GetByID(ctx context.Context, id int64) (*domain.Link, error)
	Update(ctx context.Context, link *domain.Link) error
	Delete(ctx context.Context, id int64) error // Soft delete
	List(ctx context.Context, limit, offset int, filters map[string]interface{}) ([]domain.Link, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
	Dump(ctx context.Context) ([]domain.Link, error) // For migration

	// Stats
	GetLinkStats(ctx context.Context, linkID int64) (*domain.LinkStats, error)
	GetUserAgentCounts(ctx context.Context, linkID int64) ([]domain.UserAgentCount, error)
	GetDashboardStats(ctx context.Context, limit int, filters map[string]interface{}) ([]domain.Link, int64, error)
} // LinkRepository ends here

// VisitRepository loads and persists visits. FindVisit returns nil, nil when
// the visit does not exist.
type VisitRepository interface {
	RecordVisit(ctx context.Context, visit *domain.Visit) error
	FindVisit(ctx context.Context, id string) (*domain.Visit, error)
	Flush(ctx context.Context, visit *domain.Visit) error
	FindUnlocatedVisits(ctx context.Context, limit int) ([]*domain.Visit, error)
	ListVisits(ctx context.Context, linkID int64, limit, offset int) ([]domain.Visit, error)
}

// IPLocationResolver maps an address to a Location. It fails with
// domain.ErrInvalidAddress when the address is malformed.
type IPLocationResolver interface {
	ResolveIPLocation(ctx context.Context, ip string) (domain.Location, error)
}

// GeolocationDBUpdater makes sure a usable geolocation database exists on disk.
// Failures are reported as *domain.UpdateFailedError.
type GeolocationDBUpdater interface {
	CheckForDatabaseUpdate(ctx context.Context) error
}

// EventDispatcher hands events to asynchronous subscribers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.VisitOccurred) error
}

// LinkService defines the business logic operations
type LinkService interface {
	Shorten(ctx context.Context, originalURL, title string, tags []string, customCode string) (*domain.Link, error)
	GetOriginalURL(ctx context.Context, code string) (string, error)
	UpdateLink(ctx context.Context, id int64, originalURL, title string, tags []string) (*domain.Link, error)
	DeleteLink(ctx context.Context, id int64) error
	ListLinks(ctx context.Context, page, limit int, search string, tag string) ([]domain.Link, int64, error)

	// Stats
	RecordVisit(ctx context.Context, shortCode, referer, userAgent, ip string) error
	GetLinkStats(ctx context.Context, id int64) (*domain.LinkStats, error)
	ListVisits(ctx context.Context, id int64, page, limit int) ([]domain.Visit, error)
	GetDashboard(ctx context.Context, limit int, search, tag, domainFilter string) ([]domain.Link, int64, error)
	GetLinkByShortCode(ctx context.Context, code string) (*domain.Link, error)
}
