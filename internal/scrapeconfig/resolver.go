package scrapeconfig

import (
	"context"
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/internal/logger"
	"github.com/leadscout-hq/leadscout/internal/retry"
)

// Fetcher retrieves the current scraper config for a platform from the
// remote config service.
type Fetcher interface {
	FetchConfig(ctx context.Context, platform string) (domain.ScraperConfig, error)
}

// Resolver produces a usable scraper config for every call. The chain is
// remote fetch, then last known good, then the compiled-in default; the tier
// that answered is visible on the returned ResolvedConfig.
type Resolver struct {
	fetcher Fetcher
	store   *Store
	policy  domain.RetryPolicy
	log     logger.Logger
	now     func() time.Time
}

// NewResolver wires a resolver around the remote fetcher and the
// last-known-good store. policy bounds the remote fetch retries; it should
// stay small since the fetch is a cheap idempotent read.
func NewResolver(fetcher Fetcher, store *Store, policy domain.RetryPolicy, log logger.Logger) *Resolver {
	if store == nil {
		store = NewStore()
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Resolver{
		fetcher: fetcher,
		store:   store,
		policy:  policy.Sanitize(),
		log:     log,
		now:     time.Now,
	}
}

// Store exposes the resolver's last-known-good store.
func (r *Resolver) Store() *Store { return r.store }

// Resolve returns a scraper config for the platform. It never fails: fetch
// errors, after the retry budget, are absorbed by falling back to the last
// known good config and finally to the compiled-in default.
func (r *Resolver) Resolve(ctx context.Context, platform string) domain.ResolvedConfig {
	if r.fetcher != nil {
		cfg, _, err := retry.Do(ctx, r.policy, r.log, func(ctx context.Context) (domain.ScraperConfig, error) {
			return r.fetcher.FetchConfig(ctx, platform)
		})
		if err == nil {
			fetchedAt := r.now().UTC()
			r.store.Put(cfg, fetchedAt)
			r.log.DebugObj("scraper config fetched", "config_meta", map[string]any{
				"platform": platform,
				"version":  cfg.Version,
			})
			return domain.ResolvedConfig{Config: cfg, Source: domain.SourceRemote, FetchedAt: fetchedAt}
		}

		r.log.WarnObj("scraper config fetch failed; falling back", "config_fetch_error", map[string]any{
			"platform": platform,
			"error":    err.Error(),
		})
	}

	if entry, ok := r.store.Get(platform); ok {
		r.log.InfoObj("using last known good scraper config", "config_meta", map[string]any{
			"platform":   platform,
			"version":    entry.Config.Version,
			"fetched_at": entry.FetchedAt,
		})
		return domain.ResolvedConfig{Config: entry.Config, Source: domain.SourceLastKnownGood, FetchedAt: entry.FetchedAt}
	}

	r.log.WarnObj("using default scraper config", "config_meta", map[string]any{
		"platform": platform,
	})
	return domain.ResolvedConfig{Config: DefaultConfig(platform), Source: domain.SourceDefault, FetchedAt: r.now().UTC()}
}
