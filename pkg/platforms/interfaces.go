package platforms

import (
	"context"

	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/pkg/httpclient"
)

// Scraper retrieves the current posts of one channel. Concrete
// implementations live in platform-specific files (e.g., gateway.go).
type Scraper interface {
	Platform() string
	Scrape(ctx context.Context, ch Channel, cfg domain.ScraperConfig) ([]domain.Post, error)
}

// Registry resolves the scraper implementation for a connection's platform.
type Registry interface {
	ScraperFor(conn Connection) (Scraper, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within platforms.
type HTTPClient = httpclient.Client
