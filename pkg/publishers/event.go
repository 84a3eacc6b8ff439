package publishers

import (
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
)

// Kinds of events emitted on the operational log.
const (
	KindScrapeRun   = "scrape_run"
	KindRetryLog    = "retry_log"
	KindLeadCreated = "lead_created"
	KindTickSkipped = "tick_skipped"
)

// Event is the envelope published downstream for every operational fact.
// Exactly one of the payload fields is set, selected by Kind.
type Event struct {
	Kind      string    `json:"kind"`
	Platform  string    `json:"platform,omitempty"`
	ChannelID string    `json:"channel_id"`
	RunID     string    `json:"run_id,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`

	Run       *domain.ScrapeRun     `json:"run,omitempty"`
	Attempts  []domain.RetryAttempt `json:"attempts,omitempty"`
	Lead      *domain.Lead          `json:"lead,omitempty"`
	SkippedAt *time.Time            `json:"skipped_at,omitempty"`
}

// NewScrapeRunEvent wraps a finished run record.
func NewScrapeRunEvent(run domain.ScrapeRun) Event {
	return Event{
		Kind:      KindScrapeRun,
		Platform:  run.Platform,
		ChannelID: run.ChannelID,
		RunID:     run.ID,
		EmittedAt: time.Now().UTC(),
		Run:       &run,
	}
}

// NewRetryLogEvent wraps the attempt log of a run that needed retries.
func NewRetryLogEvent(run domain.ScrapeRun, attempts []domain.RetryAttempt) Event {
	return Event{
		Kind:      KindRetryLog,
		Platform:  run.Platform,
		ChannelID: run.ChannelID,
		RunID:     run.ID,
		EmittedAt: time.Now().UTC(),
		Attempts:  attempts,
	}
}

// NewLeadCreatedEvent announces a lead created during the given run.
func NewLeadCreatedEvent(run domain.ScrapeRun, lead domain.Lead) Event {
	return Event{
		Kind:      KindLeadCreated,
		Platform:  run.Platform,
		ChannelID: run.ChannelID,
		RunID:     run.ID,
		EmittedAt: time.Now().UTC(),
		Lead:      &lead,
	}
}

// NewTickSkippedEvent records a scheduler tick dropped because the previous
// run of the channel was still in flight.
func NewTickSkippedEvent(platform, channelID string, skippedAt time.Time) Event {
	skipped := skippedAt.UTC()
	return Event{
		Kind:      KindTickSkipped,
		Platform:  platform,
		ChannelID: channelID,
		EmittedAt: time.Now().UTC(),
		SkippedAt: &skipped,
	}
}
