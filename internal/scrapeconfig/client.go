package scrapeconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/pkg/httpclient"
)

const configPathFormat = "/v1/platforms/%s/scraper-config"

// configDocument is the per-platform document served by the config service.
type configDocument struct {
	Platform  string        `json:"platform" validate:"required"`
	Version   string        `json:"version" validate:"required"`
	Config    configPayload `json:"config" validate:"required"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type configPayload struct {
	Selectors map[string]string `json:"selectors" validate:"required"`
	Timing    timingPayload     `json:"timing"`
	Retry     retryPayload      `json:"retry_strategy"`
}

type timingPayload struct {
	PageLoadDelayMs int64 `json:"page_load_delay_ms" validate:"gte=0"`
	ActionDelayMs   int64 `json:"action_delay_ms" validate:"gte=0"`
	ScrollDelayMs   int64 `json:"scroll_delay_ms" validate:"gte=0"`
}

type retryPayload struct {
	MaxRetries        int     `json:"max_retries" validate:"gte=0"`
	InitialBackoffMs  int64   `json:"initial_backoff_ms" validate:"gte=0"`
	BackoffMultiplier float64 `json:"backoff_multiplier" validate:"gte=0"`
}

// notFoundDocument is the structured 404 body listing supported platforms.
type notFoundDocument struct {
	Error     string   `json:"error"`
	Supported []string `json:"supported_platforms"`
}

// Client fetches scraper configs from the remote config service. It is the
// production Fetcher implementation.
type Client struct {
	http     httpclient.Client
	baseURL  string
	validate *validator.Validate
}

// NewClient builds a config service client. The injected http client is
// expected to carry the service's bearer token.
func NewClient(http httpclient.Client, baseURL string) *Client {
	return &Client{
		http:     http,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		validate: validator.New(),
	}
}

// FetchConfig retrieves and validates the scraper config document for the
// platform, mapped into domain values (wire delays are milliseconds).
func (c *Client) FetchConfig(ctx context.Context, platform string) (domain.ScraperConfig, error) {
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return domain.ScraperConfig{}, &FetchError{Err: fmt.Errorf("platform is empty")}
	}
	if c.http == nil || c.baseURL == "" {
		return domain.ScraperConfig{}, &FetchError{Platform: platform, Err: fmt.Errorf("config service client is not configured")}
	}

	url := c.baseURL + fmt.Sprintf(configPathFormat, platform)
	resp, err := c.http.Get(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return domain.ScraperConfig{}, &FetchError{Platform: platform, Err: err}
	}

	body := resp.Body()
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		var nf notFoundDocument
		_ = json.Unmarshal(body, &nf)
		return domain.ScraperConfig{}, &UnknownPlatformError{Platform: platform, Supported: nf.Supported}
	case resp.StatusCode() != http.StatusOK:
		return domain.ScraperConfig{}, &FetchError{
			Platform:   platform,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("body: %s", bodySnippet(body)),
		}
	}

	var doc configDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.ScraperConfig{}, &FetchError{Platform: platform, Err: fmt.Errorf("decode config document: %w", err)}
	}
	if err := c.validate.Struct(doc); err != nil {
		return domain.ScraperConfig{}, &FetchError{Platform: platform, Err: fmt.Errorf("invalid config document: %w", err)}
	}

	return doc.toDomain(), nil
}

func (d configDocument) toDomain() domain.ScraperConfig {
	return domain.ScraperConfig{
		Platform:  d.Platform,
		Version:   d.Version,
		Selectors: d.Config.Selectors,
		Timing: domain.ScrapeTiming{
			PageLoadDelay: time.Duration(d.Config.Timing.PageLoadDelayMs) * time.Millisecond,
			ActionDelay:   time.Duration(d.Config.Timing.ActionDelayMs) * time.Millisecond,
			ScrollDelay:   time.Duration(d.Config.Timing.ScrollDelayMs) * time.Millisecond,
		},
		Retry: domain.RetryPolicy{
			MaxRetries:        d.Config.Retry.MaxRetries,
			InitialBackoff:    time.Duration(d.Config.Retry.InitialBackoffMs) * time.Millisecond,
			BackoffMultiplier: d.Config.Retry.BackoffMultiplier,
		}.Sanitize(),
	}
}

func bodySnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
