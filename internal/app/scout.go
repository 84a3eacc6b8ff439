package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leadscout-hq/leadscout/internal/config"
	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/internal/logger"
	"github.com/leadscout-hq/leadscout/internal/match"
	"github.com/leadscout-hq/leadscout/internal/scrape"
	"github.com/leadscout-hq/leadscout/internal/scrapeconfig"
	"github.com/leadscout-hq/leadscout/internal/storage"
	"github.com/leadscout-hq/leadscout/pkg/httpclient"
	"github.com/leadscout-hq/leadscout/pkg/platforms"
	"github.com/leadscout-hq/leadscout/pkg/publishers"
)

// Scout represents the lead scout runtime. It owns the per-channel scrape
// schedules, coordinating between the connection registry, the config
// resolver, the scrape pipeline, and the operational log. It also handles
// storage initialization and retention maintenance.
type Scout struct {
	cfg       *config.Config
	conns     *platforms.ConnectionRegistry
	keywords  *match.Registry
	fanout    *publishers.Fanout
	store     storage.Store
	scheduler *scrape.Scheduler
	log       logger.Logger
}

// NewScout builds a scout runtime from config files.
func NewScout(ctx context.Context, cfg *config.Config, log logger.Logger) (*Scout, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	conns, err := platforms.LoadConnections(cfg.ChannelsFile, cfg.ScrapeInterval)
	if err != nil {
		return nil, fmt.Errorf("load connections registry: %w", err)
	}
	connList := conns.All()
	channelCount := 0
	for _, conn := range connList {
		channelCount += len(conn.Channels)
	}
	log.InfoObj("connections registry loaded", "connections_meta", map[string]any{
		"connections": len(connList),
		"channels":    channelCount,
	})

	keywords, err := match.LoadRegistry(cfg.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("load keywords registry: %w", err)
	}
	log.InfoObj("keywords registry loaded", "keywords_meta", map[string]any{
		"users": keywords.UserIDs(),
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(ctx, storage.Options{
		Type:        cfg.StorageType,
		BBoltPath:   cfg.BBoltPath,
		PostgresDSN: cfg.PostgresDSN,
		PostTTL:     cfg.PostTTL,
		RunTTL:      cfg.RunTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":             cfg.StorageType,
		"post_ttl_seconds": int(cfg.PostTTL.Seconds()),
		"run_ttl_seconds":  int(cfg.RunTTL.Seconds()),
	})

	resolver := buildResolver(cfg, log)

	scrapers := platforms.DefaultRegistry(platforms.GatewayOptions{
		BaseURL:           cfg.GatewayURL,
		Client:            httpclient.NewAuthenticatedClient(cfg.GatewayTimeout, cfg.GatewayToken),
		RequestsPerMinute: cfg.GatewayRequestsPerMinute,
	})

	pipeline := scrape.NewPipeline(scrapers, store, keywords, fanout, log)
	scheduler := scrape.NewScheduler(resolver, pipeline, newOpsLog(store, fanout), log)

	return &Scout{
		cfg:       cfg,
		conns:     conns,
		keywords:  keywords,
		fanout:    fanout,
		store:     store,
		scheduler: scheduler,
		log:       log,
	}, nil
}

// buildFanout loads the publisher registry and instantiates the enabled
// publishers. Zero enabled publishers is a warning, not an error: runs still
// persist locally.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabled := publisherReg.Enabled()
	if len(enabled) == 0 {
		log.WarnObj("no publishers enabled; operational events stay local", "publishers_file", cfg.PublishersFile)
		return publishers.NewFanout(nil), nil
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})

	return publishers.NewFanout(pubClients), nil
}

// buildResolver wires the config resolver. Without a config service URL the
// resolver starts fetcher-less and serves last-known-good or default configs.
func buildResolver(cfg *config.Config, log logger.Logger) *scrapeconfig.Resolver {
	var fetcher scrapeconfig.Fetcher
	if cfg.ConfigServiceURL != "" {
		client := httpclient.NewAuthenticatedClient(cfg.ConfigTimeout, cfg.ConfigServiceToken)
		fetcher = scrapeconfig.NewClient(client, cfg.ConfigServiceURL)
	} else {
		log.WarnObj("config service url is empty; scraper configs fall back to defaults", "config_service_url", cfg.ConfigServiceURL)
	}

	policy := domain.RetryPolicy{
		MaxRetries:        cfg.ConfigFetchMaxRetries,
		InitialBackoff:    cfg.ConfigFetchBackoff,
		BackoffMultiplier: cfg.ConfigFetchBackoffMultiplier,
	}
	return scrapeconfig.NewResolver(fetcher, scrapeconfig.NewStore(), policy, log)
}

// Run starts every channel schedule and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Scout) Run(ctx context.Context) error {
	if s == nil || s.scheduler == nil {
		return fmt.Errorf("scout is not initialized")
	}
	defer s.closeStore()

	started := 0
	for _, conn := range s.conns.All() {
		for _, ch := range conn.Channels {
			if err := s.scheduler.StartChannel(ctx, conn, ch); err != nil {
				s.log.ErrorObj("channel schedule not started", "schedule_error", map[string]any{
					"connection_id": conn.ID,
					"channel_id":    ch.ID,
					"error":         err.Error(),
				})
				continue
			}
			started++
		}
	}
	if started == 0 {
		s.log.WarnObj("no channels scheduled; scout idle", "channels_file", s.cfg.ChannelsFile)
		<-ctx.Done()
		return ctx.Err()
	}

	maintenance := s.startMaintenance(ctx)

	s.log.InfoObj("scout loop starting", "scout_state", map[string]any{
		"channels_scheduled": started,
		"publishers_count":   s.fanout.Size(),
		"default_interval":   s.cfg.ScrapeInterval.String(),
	})

	<-ctx.Done()
	s.log.InfoObj("scout loop exiting", "reason", ctx.Err())

	if maintenance != nil {
		<-maintenance.Stop().Done()
	}
	s.scheduler.Shutdown()
	return nil
}

// startMaintenance schedules the retention sweep. A bad cron expression
// disables maintenance rather than stopping the scout.
func (s *Scout) startMaintenance(ctx context.Context) *cron.Cron {
	if s.cfg.MaintenanceSchedule == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.cfg.MaintenanceSchedule, func() {
		s.runMaintenance(ctx)
	})
	if err != nil {
		s.log.ErrorObj("maintenance schedule invalid; retention sweep disabled", "schedule_error", map[string]any{
			"schedule": s.cfg.MaintenanceSchedule,
			"error":    err.Error(),
		})
		return nil
	}
	c.Start()
	s.log.InfoObj("maintenance schedule started", "schedule", s.cfg.MaintenanceSchedule)
	return c
}

func (s *Scout) runMaintenance(ctx context.Context) {
	start := time.Now()
	removed, err := s.store.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		s.log.ErrorObj("maintenance purge failed", "error", err)
		return
	}
	s.log.InfoObj("maintenance purge completed", "purge_meta", map[string]any{
		"removed":    removed,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// closeStore safely closes the storage backend, logging any errors encountered.
func (s *Scout) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.log.ErrorObj("storage close failed", "error", err)
	}
}
