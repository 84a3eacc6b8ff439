package domain

import (
	"sort"
	"strings"
	"time"
)

// Domain contains core models shared across the scout packages.

// FallbackSource identifies which tier of the config fallback chain
// produced a resolved scraper config.
type FallbackSource string

const (
	SourceRemote        FallbackSource = "remote"
	SourceLastKnownGood FallbackSource = "last_known_good"
	SourceDefault       FallbackSource = "default"
)

// ScrapeTiming holds the pacing delays a scrape of one channel page applies.
type ScrapeTiming struct {
	PageLoadDelay time.Duration `json:"page_load_delay"`
	ActionDelay   time.Duration `json:"action_delay"`
	ScrollDelay   time.Duration `json:"scroll_delay"`
}

// RetryPolicy bounds the retry loop wrapped around a fallible operation.
// MaxRetries counts retries, not attempts: the operation runs at most
// MaxRetries+1 times.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// Sanitize clamps out-of-range policy values so a malformed policy can
// never produce a negative attempt budget or a shrinking backoff.
func (p RetryPolicy) Sanitize() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = time.Second
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 1
	}
	return p
}

// ScraperConfig describes how a platform should be scraped. A config is a
// value: a newer fetch produces a new one, never an in-place mutation.
type ScraperConfig struct {
	Platform  string            `json:"platform"`
	Version   string            `json:"version"`
	Selectors map[string]string `json:"selectors"`
	Timing    ScrapeTiming      `json:"timing"`
	Retry     RetryPolicy       `json:"retry"`
}

// ResolvedConfig pairs a scraper config with the source that produced it.
type ResolvedConfig struct {
	Config    ScraperConfig  `json:"config"`
	Source    FallbackSource `json:"source"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// AttemptOutcome marks one retry attempt as success or failure.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
)

// RetryAttempt records a single attempt of a retried operation. Backoff is
// the delay applied after this failing attempt; it is zero on success and
// on the final attempt.
type RetryAttempt struct {
	Attempt     int            `json:"attempt"`
	Timestamp   time.Time      `json:"timestamp"`
	Outcome     AttemptOutcome `json:"outcome"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	Backoff     time.Duration  `json:"backoff,omitempty"`
}

// RunOutcome classifies a completed scrape run.
type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunFailure RunOutcome = "failure"
)

// ScrapeRun records one scheduled execution for a channel, failure or not.
type ScrapeRun struct {
	ID           string         `json:"id"`
	ChannelID    string         `json:"channel_id"`
	Platform     string         `json:"platform"`
	ConfigSource FallbackSource `json:"config_source"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
	Outcome      RunOutcome     `json:"outcome"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
	PostsFound   int            `json:"posts_found"`
	LeadsCreated int            `json:"leads_created"`
}

// Post is one scraped message from a channel. Immutable once created.
type Post struct {
	ID        string            `json:"id"`
	ChannelID string            `json:"channel_id"`
	Platform  string            `json:"platform"`
	Author    string            `json:"author"`
	Content   string            `json:"content"`
	SourceURL string            `json:"source_url,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// LeadStatus tracks the review lifecycle of a lead.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusViewed    LeadStatus = "viewed"
	LeadStatusSaved     LeadStatus = "saved"
	LeadStatusDismissed LeadStatus = "dismissed"
)

// ValidLeadStatus reports whether s is one of the known lead statuses.
func ValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadStatusNew, LeadStatusViewed, LeadStatusSaved, LeadStatusDismissed:
		return true
	}
	return false
}

// Lead links a post to a user whose active keywords matched its content.
// At most one Lead exists per (UserID, PostID) pair, and its MatchedKeywords
// is never empty.
type Lead struct {
	UserID          string     `json:"user_id"`
	PostID          string     `json:"post_id"`
	MatchedKeywords []string   `json:"matched_keywords"`
	Status          LeadStatus `json:"status"`
	FirstViewedAt   *time.Time `json:"first_viewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MergeKeywords unions two keyword lists into a sorted, duplicate-free
// result. Comparison is exact: keyword spelling is preserved as configured.
func MergeKeywords(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, list := range [][]string{existing, extra} {
		for _, kw := range list {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}
