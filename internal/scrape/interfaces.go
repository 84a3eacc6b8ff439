package scrape

import (
	"context"
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/pkg/platforms"
)

// ConfigResolver yields a usable scraper config for every cycle. Resolution
// never fails; the fallback tier that answered is visible on the result.
type ConfigResolver interface {
	Resolve(ctx context.Context, platform string) domain.ResolvedConfig
}

// CycleRunner executes one scrape-and-match pass for a channel. The run
// carries the identity minted by the scheduler so events emitted during the
// pass can reference it.
type CycleRunner interface {
	Run(ctx context.Context, run domain.ScrapeRun, conn platforms.Connection, ch platforms.Channel, cfg domain.ScraperConfig) (CycleStats, error)
}

// KeywordSource yields the active keywords to match for a user.
type KeywordSource interface {
	ActiveKeywords(userID string) []string
}

// LeadStore is the slice of storage the pipeline writes through.
type LeadStore interface {
	InsertPost(ctx context.Context, post domain.Post) (bool, error)
	UpsertLead(ctx context.Context, userID, postID string, matched []string) (domain.Lead, bool, error)
}

// RunRecorder sinks the observable facts of scheduling: finished runs, retry
// attempt logs, and dropped ticks.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.ScrapeRun) error
	RecordAttempts(ctx context.Context, run domain.ScrapeRun, attempts []domain.RetryAttempt) error
	RecordSkippedTick(ctx context.Context, platform, channelID string, skippedAt time.Time) error
}
