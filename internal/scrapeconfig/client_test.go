package scrapeconfig

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/leadscout-hq/leadscout/pkg/httpclient"
)

// fakeResponse lets us stub the httpclient.Client interface.
type fakeResponse struct {
	body       []byte
	statusCode int
}

func (f fakeResponse) Body() []byte    { return f.body }
func (f fakeResponse) StatusCode() int { return f.statusCode }

// fakeHTTPClient returns canned responses per URL to avoid network calls.
type fakeHTTPClient struct {
	responses map[string]fakeResponse
	calls     []string
	err       error
}

func (f *fakeHTTPClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	resp, ok := f.responses[url]
	if !ok {
		return fakeResponse{statusCode: http.StatusNotFound}, nil
	}
	return resp, nil
}

func (f *fakeHTTPClient) Post(ctx context.Context, url string, headers map[string]string, _ any) (httpclient.Response, error) {
	return f.Get(ctx, url, headers)
}

const slackConfigURL = "https://config.example.com/v1/platforms/slack/scraper-config"

func TestFetchConfigMapsDocument(t *testing.T) {
	doc := []byte(`{
		"platform": "slack",
		"version": "2026-02-11.3",
		"config": {
			"selectors": {"post": "div.message", "content": "p.body"},
			"timing": {"page_load_delay_ms": 1500, "action_delay_ms": 200, "scroll_delay_ms": 800},
			"retry_strategy": {"max_retries": 3, "initial_backoff_ms": 250, "backoff_multiplier": 2.5}
		},
		"updated_at": "2026-02-11T10:00:00Z"
	}`)
	fake := &fakeHTTPClient{responses: map[string]fakeResponse{
		slackConfigURL: {body: doc, statusCode: http.StatusOK},
	}}
	client := NewClient(fake, "https://config.example.com/")

	cfg, err := client.FetchConfig(context.Background(), "slack")
	if err != nil {
		t.Fatalf("FetchConfig: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0] != slackConfigURL {
		t.Fatalf("unexpected calls %v", fake.calls)
	}
	if cfg.Platform != "slack" || cfg.Version != "2026-02-11.3" {
		t.Fatalf("identity fields wrong: %+v", cfg)
	}
	if cfg.Selectors["post"] != "div.message" || cfg.Selectors["content"] != "p.body" {
		t.Fatalf("Selectors = %v", cfg.Selectors)
	}
	if cfg.Timing.PageLoadDelay != 1500*time.Millisecond ||
		cfg.Timing.ActionDelay != 200*time.Millisecond ||
		cfg.Timing.ScrollDelay != 800*time.Millisecond {
		t.Fatalf("Timing = %+v", cfg.Timing)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.InitialBackoff != 250*time.Millisecond || cfg.Retry.BackoffMultiplier != 2.5 {
		t.Fatalf("Retry = %+v", cfg.Retry)
	}
}

func TestFetchConfigSanitizesOmittedRetryStrategy(t *testing.T) {
	doc := []byte(`{
		"platform": "slack",
		"version": "v1",
		"config": {"selectors": {"post": "div.message"}}
	}`)
	fake := &fakeHTTPClient{responses: map[string]fakeResponse{
		slackConfigURL: {body: doc, statusCode: http.StatusOK},
	}}
	client := NewClient(fake, "https://config.example.com")

	cfg, err := client.FetchConfig(context.Background(), "slack")
	if err != nil {
		t.Fatalf("FetchConfig: %v", err)
	}
	if cfg.Retry.InitialBackoff <= 0 || cfg.Retry.BackoffMultiplier < 1 {
		t.Fatalf("omitted retry strategy should sanitize to usable values, got %+v", cfg.Retry)
	}
}

func TestFetchConfigUnknownPlatform(t *testing.T) {
	body := []byte(`{"error": "unknown platform", "supported_platforms": ["slack", "linkedin"]}`)
	fake := &fakeHTTPClient{responses: map[string]fakeResponse{
		"https://config.example.com/v1/platforms/orkut/scraper-config": {body: body, statusCode: http.StatusNotFound},
	}}
	client := NewClient(fake, "https://config.example.com")

	_, err := client.FetchConfig(context.Background(), "orkut")
	var unknown *UnknownPlatformError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownPlatformError, got %v", err)
	}
	if unknown.Platform != "orkut" {
		t.Fatalf("Platform = %s", unknown.Platform)
	}
	if len(unknown.Supported) != 2 || unknown.Supported[0] != "slack" {
		t.Fatalf("Supported = %v", unknown.Supported)
	}
}

func TestFetchConfigServerError(t *testing.T) {
	fake := &fakeHTTPClient{responses: map[string]fakeResponse{
		slackConfigURL: {body: []byte("upstream exploded"), statusCode: http.StatusInternalServerError},
	}}
	client := NewClient(fake, "https://config.example.com")

	_, err := client.FetchConfig(context.Background(), "slack")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d", fetchErr.StatusCode)
	}
}

func TestFetchConfigRejectsInvalidDocument(t *testing.T) {
	// Missing selectors entirely.
	doc := []byte(`{"platform": "slack", "version": "v1", "config": {}}`)
	fake := &fakeHTTPClient{responses: map[string]fakeResponse{
		slackConfigURL: {body: doc, statusCode: http.StatusOK},
	}}
	client := NewClient(fake, "https://config.example.com")

	_, err := client.FetchConfig(context.Background(), "slack")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError for invalid document, got %v", err)
	}
}

func TestFetchConfigTransportError(t *testing.T) {
	fake := &fakeHTTPClient{err: errors.New("connection refused")}
	client := NewClient(fake, "https://config.example.com")

	_, err := client.FetchConfig(context.Background(), "slack")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Fatalf("transport failures should carry no status, got %d", fetchErr.StatusCode)
	}
}
