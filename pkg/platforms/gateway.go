package platforms

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/leadscout-hq/leadscout/internal/domain"
)

// Supported platform names.
const (
	PlatformSlack    = "slack"
	PlatformLinkedIn = "linkedin"
)

const (
	renderPathFormat   = "/v1/render/%s"
	maxRenderBodyBytes = 8 << 20 // 8 MiB

	selectorPost      = "post"
	selectorContent   = "content"
	selectorAuthor    = "author"
	selectorTimestamp = "timestamp"
	selectorLink      = "link"

	channelProfileKey      = "render_profile"
	channelWaitSelectorKey = "wait_selector"
)

// ScrapeError marks a failed scrape attempt. Callers treat it as opaque and
// retryable; the channel id ties the failure back to its schedule.
type ScrapeError struct {
	ChannelID string
	Err       error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape channel %q: %v", e.ChannelID, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

type renderRequest struct {
	URL           string `json:"url"`
	Query         string `json:"query,omitempty"`
	WaitMs        int64  `json:"wait_ms"`
	ActionDelayMs int64  `json:"action_delay_ms"`
	ScrollDelayMs int64  `json:"scroll_delay_ms"`
	Profile       string `json:"profile,omitempty"`
	WaitSelector  string `json:"wait_selector,omitempty"`
}

type renderResponse struct {
	HTML       string    `json:"html"`
	RenderedAt time.Time `json:"rendered_at"`
}

// GatewayScraper renders a channel page through the headless-browser gateway
// and extracts posts with the platform's selector set.
type GatewayScraper struct {
	platform string
	client   HTTPClient
	baseURL  string
	limiter  *rate.Limiter
}

// NewGatewayScraper constructs a gateway-backed scraper for one platform.
func NewGatewayScraper(platform string, client HTTPClient, baseURL string, limiter *rate.Limiter) *GatewayScraper {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &GatewayScraper{
		platform: strings.ToLower(strings.TrimSpace(platform)),
		client:   client,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		limiter:  limiter,
	}
}

// Platform returns the platform this scraper serves.
func (g *GatewayScraper) Platform() string { return g.platform }

// Scrape renders the channel page and extracts its posts.
func (g *GatewayScraper) Scrape(ctx context.Context, ch Channel, cfg domain.ScraperConfig) ([]domain.Post, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &ScrapeError{ChannelID: ch.ID, Err: fmt.Errorf("gateway throttle: %w", err)}
	}

	rendered, err := g.render(ctx, ch, cfg)
	if err != nil {
		return nil, &ScrapeError{ChannelID: ch.ID, Err: err}
	}

	posts, err := g.extractPosts(ch, cfg, rendered)
	if err != nil {
		return nil, &ScrapeError{ChannelID: ch.ID, Err: err}
	}
	return posts, nil
}

func (g *GatewayScraper) render(ctx context.Context, ch Channel, cfg domain.ScraperConfig) (renderResponse, error) {
	payload := renderRequest{
		URL:           ch.SourceURL,
		Query:         ch.Query,
		WaitMs:        cfg.Timing.PageLoadDelay.Milliseconds(),
		ActionDelayMs: cfg.Timing.ActionDelay.Milliseconds(),
		ScrollDelayMs: cfg.Timing.ScrollDelay.Milliseconds(),
		Profile:       ch.ConfigString(channelProfileKey, ""),
		WaitSelector:  ch.ConfigString(channelWaitSelectorKey, ""),
	}

	renderURL := g.baseURL + fmt.Sprintf(renderPathFormat, g.platform)
	resp, err := g.client.Post(ctx, renderURL, map[string]string{"Accept": "application/json"}, payload)
	if err != nil {
		return renderResponse{}, fmt.Errorf("gateway render: %w", err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return renderResponse{}, fmt.Errorf("gateway render returned status %d body: %s", resp.StatusCode(), responseSnippet(body))
	}
	if len(body) > maxRenderBodyBytes {
		return renderResponse{}, fmt.Errorf("gateway render body exceeds %d bytes", maxRenderBodyBytes)
	}

	var rendered renderResponse
	if err := json.Unmarshal(body, &rendered); err != nil {
		return renderResponse{}, fmt.Errorf("decode gateway render response: %w", err)
	}
	if strings.TrimSpace(rendered.HTML) == "" {
		return renderResponse{}, fmt.Errorf("gateway render returned empty html")
	}
	return rendered, nil
}

func (g *GatewayScraper) extractPosts(ch Channel, cfg domain.ScraperConfig, rendered renderResponse) ([]domain.Post, error) {
	postSel := strings.TrimSpace(cfg.Selectors[selectorPost])
	contentSel := strings.TrimSpace(cfg.Selectors[selectorContent])
	if postSel == "" {
		return nil, fmt.Errorf("scraper config %q is missing the %q selector", cfg.Version, selectorPost)
	}
	if contentSel == "" {
		return nil, fmt.Errorf("scraper config %q is missing the %q selector", cfg.Version, selectorContent)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}

	authorSel := strings.TrimSpace(cfg.Selectors[selectorAuthor])
	timestampSel := strings.TrimSpace(cfg.Selectors[selectorTimestamp])
	linkSel := strings.TrimSpace(cfg.Selectors[selectorLink])

	fallbackTime := rendered.RenderedAt
	if fallbackTime.IsZero() {
		fallbackTime = time.Now().UTC()
	}

	var posts []domain.Post
	doc.Find(postSel).Each(func(_ int, node *goquery.Selection) {
		content := normalizeSpace(node.Find(contentSel).First().Text())
		if content == "" {
			return
		}

		author := ""
		if authorSel != "" {
			author = normalizeSpace(node.Find(authorSel).First().Text())
		}

		permalink := ""
		if linkSel != "" {
			if href, ok := node.Find(linkSel).First().Attr("href"); ok {
				permalink = resolveURL(ch.SourceURL, strings.TrimSpace(href))
			}
		}

		timestamp := fallbackTime
		if timestampSel != "" {
			if parsed, ok := parseTimestamp(node.Find(timestampSel).First()); ok {
				timestamp = parsed
			}
		}

		sourceURL := permalink
		if sourceURL == "" {
			sourceURL = ch.SourceURL
		}

		posts = append(posts, domain.Post{
			ID:        hashPost(ch.ID, permalink, content),
			ChannelID: ch.ID,
			Platform:  g.platform,
			Author:    author,
			Content:   content,
			SourceURL: sourceURL,
			Timestamp: timestamp,
			Metadata:  postMetadata(ch, permalink),
		})
	})

	return posts, nil
}

func postMetadata(ch Channel, permalink string) map[string]string {
	meta := make(map[string]string, 3)
	if ch.Name != "" {
		meta["channel_name"] = ch.Name
	}
	if ch.Query != "" {
		meta["query"] = ch.Query
	}
	if permalink != "" {
		meta["permalink"] = permalink
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// parseTimestamp reads an RFC3339 time from the node's datetime attribute or text.
func parseTimestamp(node *goquery.Selection) (time.Time, bool) {
	if node.Length() == 0 {
		return time.Time{}, false
	}

	candidates := make([]string, 0, 2)
	if val, ok := node.Attr("datetime"); ok {
		candidates = append(candidates, val)
	}
	candidates = append(candidates, node.Text())

	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func resolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	hrefURL, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if hrefURL.IsAbs() {
		return hrefURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(hrefURL).String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hashPost derives a stable post id so the same post scraped twice
// deduplicates in storage instead of double-counting.
func hashPost(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

func responseSnippet(body []byte) string {
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
