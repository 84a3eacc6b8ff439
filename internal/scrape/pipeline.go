package scrape

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/internal/logger"
	"github.com/leadscout-hq/leadscout/internal/match"
	"github.com/leadscout-hq/leadscout/pkg/platforms"
	"github.com/leadscout-hq/leadscout/pkg/publishers"
)

// CycleStats summarizes one scrape-and-match cycle.
type CycleStats struct {
	PostsFound   int
	LeadsCreated int
	LeadsUpdated int
}

// Pipeline is the scrape-and-match sequence the scheduler retries as one
// unit: scrape the channel, store every post, match content against the
// connection owner's active keywords, and upsert a lead for each non-empty
// match set.
type Pipeline struct {
	scrapers platforms.Registry
	store    LeadStore
	keywords KeywordSource
	fanout   *publishers.Fanout
	log      logger.Logger
}

// NewPipeline wires the cycle runner. fanout may be nil when no publishers
// are configured.
func NewPipeline(scrapers platforms.Registry, store LeadStore, keywords KeywordSource, fanout *publishers.Fanout, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Pipeline{
		scrapers: scrapers,
		store:    store,
		keywords: keywords,
		fanout:   fanout,
		log:      log,
	}
}

// Run executes one cycle. Persistence failures join into the returned error
// so the caller's retry policy applies to them; matching failures never do.
// Every scraped post is matched, new or not: the lead upsert's union rule
// makes re-matching idempotent.
func (p *Pipeline) Run(ctx context.Context, run domain.ScrapeRun, conn platforms.Connection, ch platforms.Channel, cfg domain.ScraperConfig) (CycleStats, error) {
	var stats CycleStats

	if p == nil || p.scrapers == nil || p.store == nil {
		return stats, fmt.Errorf("scrape pipeline is not initialized")
	}

	scraper, err := p.scrapers.ScraperFor(conn)
	if err != nil {
		return stats, fmt.Errorf("resolve scraper for connection %s: %w", conn.ID, err)
	}

	posts, err := scraper.Scrape(ctx, ch, cfg)
	if err != nil {
		return stats, fmt.Errorf("scrape channel %s: %w", ch.ID, err)
	}
	stats.PostsFound = len(posts)

	var keywords []string
	if p.keywords != nil {
		keywords = p.keywords.ActiveKeywords(conn.UserID)
	}
	if len(keywords) == 0 {
		p.log.DebugObj("no active keywords for connection owner", "match_meta", map[string]any{
			"connection_id": conn.ID,
			"user_id":       conn.UserID,
		})
	}

	var errs []error
	for _, post := range posts {
		if _, err := p.store.InsertPost(ctx, post); err != nil {
			errs = append(errs, fmt.Errorf("store post %s: %w", post.ID, err))
			continue
		}

		if len(keywords) == 0 {
			continue
		}

		matched, err := match.Match(post.Content, keywords)
		if err != nil {
			// Malformed content counts as zero matches, never a cycle failure.
			p.log.WarnObj("post content not matchable", "match_error", map[string]any{
				"post_id": post.ID,
				"error":   err.Error(),
			})
			continue
		}
		if len(matched) == 0 {
			continue
		}

		lead, created, err := p.store.UpsertLead(ctx, conn.UserID, post.ID, matched)
		if err != nil {
			errs = append(errs, fmt.Errorf("upsert lead for post %s: %w", post.ID, err))
			continue
		}
		if created {
			stats.LeadsCreated++
			p.publishLead(ctx, run, lead)
		} else {
			stats.LeadsUpdated++
		}
	}

	if len(errs) > 0 {
		return stats, errors.Join(errs...)
	}
	return stats, nil
}

// publishLead emits a lead_created event. Publish failures are logged, not
// returned: a lead that is already persisted must not fail the cycle.
func (p *Pipeline) publishLead(ctx context.Context, run domain.ScrapeRun, lead domain.Lead) {
	if p.fanout == nil || p.fanout.Size() == 0 {
		return
	}
	if _, err := p.fanout.Publish(ctx, publishers.NewLeadCreatedEvent(run, lead)); err != nil {
		p.log.ErrorObj("lead event publish failed", "publish_error", map[string]any{
			"run_id":  run.ID,
			"post_id": lead.PostID,
			"user_id": lead.UserID,
			"error":   err.Error(),
		})
	}
}
