package platforms

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/leadscout-hq/leadscout/pkg/httpclient"
)

// scraperRegistry implements Registry.
type scraperRegistry struct {
	byPlatform map[string]Scraper
	mu         sync.RWMutex
}

// NewRegistry builds a registry for the provided scrapers keyed by platform name.
func NewRegistry(scrapers ...Scraper) Registry {
	reg := &scraperRegistry{byPlatform: make(map[string]Scraper)}
	for _, s := range scrapers {
		reg.register(s)
	}
	return reg
}

func (r *scraperRegistry) register(s Scraper) {
	if s == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(s.Platform()))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.byPlatform[key] = s
	r.mu.Unlock()
}

// ScraperFor selects the scraper registered for the connection's platform.
func (r *scraperRegistry) ScraperFor(conn Connection) (Scraper, error) {
	if r == nil {
		return nil, fmt.Errorf("scraper registry is nil")
	}
	key := strings.ToLower(strings.TrimSpace(conn.Platform))
	if key == "" {
		return nil, fmt.Errorf("connection %q has no platform", conn.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.byPlatform[key]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no scraper registered for platform %q (connection %q)", conn.Platform, conn.ID)
}

// DefaultHTTPClient returns a tuned HTTP client for platform scrapers.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(60 * time.Second) }

// GatewayOptions configures the shared browser-gateway client.
type GatewayOptions struct {
	BaseURL           string
	Client            HTTPClient
	RequestsPerMinute int
}

// DefaultRegistry wires up the supported platforms, all backed by the render
// gateway. Rendering differences between platforms live behind the gateway,
// so one scraper type serves them all; the shared limiter throttles the
// gateway as a whole, not per platform.
func DefaultRegistry(opts GatewayOptions) Registry {
	client := opts.Client
	if client == nil {
		client = DefaultHTTPClient()
	}
	limiter := newGatewayLimiter(opts.RequestsPerMinute)

	return NewRegistry(
		NewGatewayScraper(PlatformSlack, client, opts.BaseURL, limiter),
		NewGatewayScraper(PlatformLinkedIn, client, opts.BaseURL, limiter),
	)
}

func newGatewayLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}
