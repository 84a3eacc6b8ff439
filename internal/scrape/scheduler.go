package scrape

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/internal/logger"
	"github.com/leadscout-hq/leadscout/internal/retry"
	"github.com/leadscout-hq/leadscout/pkg/platforms"
)

// Scheduler owns one repeating timer per channel. Every tick triggers a
// scrape cycle; failures are absorbed at this boundary so the channel's
// timer stays armed until the channel is stopped.
type Scheduler struct {
	resolver ConfigResolver
	runner   CycleRunner
	recorder RunRecorder
	log      logger.Logger

	mu       sync.Mutex
	channels map[string]*channelSchedule
	wg       sync.WaitGroup
	closed   bool
}

type channelSchedule struct {
	conn platforms.Connection
	ch   platforms.Channel
	stop chan struct{}
	// inFlight guards against overlapping runs of the same channel.
	inFlight atomic.Bool
}

// NewScheduler wires a scheduler around the resolver, cycle runner, and
// run recorder.
func NewScheduler(resolver ConfigResolver, runner CycleRunner, recorder RunRecorder, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Scheduler{
		resolver: resolver,
		runner:   runner,
		recorder: recorder,
		log:      log,
		channels: make(map[string]*channelSchedule),
	}
}

// StartChannel arms the repeating timer for the channel and fires the first
// cycle immediately. Starting an already-scheduled channel is a no-op.
func (s *Scheduler) StartChannel(ctx context.Context, conn platforms.Connection, ch platforms.Channel) error {
	if s == nil || s.resolver == nil || s.runner == nil {
		return fmt.Errorf("scheduler is not initialized")
	}
	if ch.ID == "" {
		return fmt.Errorf("channel id is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is shut down")
	}
	if _, exists := s.channels[ch.ID]; exists {
		s.mu.Unlock()
		s.log.DebugObj("channel schedule already armed", "channel_id", ch.ID)
		return nil
	}
	sched := &channelSchedule{conn: conn, ch: ch, stop: make(chan struct{})}
	s.channels[ch.ID] = sched
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(ctx, sched)

	s.log.InfoObj("channel schedule started", "schedule_meta", map[string]any{
		"channel_id": ch.ID,
		"platform":   conn.Platform,
		"interval":   ch.Interval().String(),
	})
	return nil
}

// StopChannel disarms the channel's timer. An in-flight cycle completes and
// records its outcome. Stopping an unknown channel is a no-op.
func (s *Scheduler) StopChannel(channelID string) {
	s.mu.Lock()
	sched, ok := s.channels[channelID]
	if ok {
		delete(s.channels, channelID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	close(sched.stop)
	s.log.InfoObj("channel schedule stopped", "channel_id", channelID)
}

// Shutdown disarms every channel and waits for in-flight cycles to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for id, sched := range s.channels {
			close(sched.stop)
			delete(s.channels, id)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Running returns the ids of channels with an armed schedule, sorted.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.channels))
	for id := range s.channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// loop drives one channel: an immediate first cycle, then one cycle per
// ticker tick until the schedule is stopped.
func (s *Scheduler) loop(ctx context.Context, sched *channelSchedule) {
	defer s.wg.Done()

	s.tick(ctx, sched)

	ticker := time.NewTicker(sched.ch.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sched.stop:
			return
		case <-ticker.C:
			s.tick(ctx, sched)
		}
	}
}

// tick starts one cycle unless the previous cycle of this channel is still
// in flight, in which case the tick is dropped and recorded, never queued.
func (s *Scheduler) tick(ctx context.Context, sched *channelSchedule) {
	if !sched.inFlight.CompareAndSwap(false, true) {
		skippedAt := time.Now().UTC()
		s.log.WarnObj("tick skipped; previous run still in flight", "skip_meta", map[string]any{
			"channel_id": sched.ch.ID,
			"platform":   sched.conn.Platform,
		})
		if s.recorder != nil {
			if err := s.recorder.RecordSkippedTick(ctx, sched.conn.Platform, sched.ch.ID, skippedAt); err != nil {
				s.log.ErrorObj("skipped tick not recorded", "record_error", map[string]any{
					"channel_id": sched.ch.ID,
					"error":      err.Error(),
				})
			}
		}
		return
	}

	// The loop's own WaitGroup slot is still held here, so the counter
	// cannot reach zero while a cycle is being added.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sched.inFlight.Store(false)
		s.cycle(ctx, sched)
	}()
}

// cycle resolves config, runs the scrape-and-match pass under the resolved
// retry policy, and records the run. Nothing escapes: errors become a
// recorded failure outcome and a panic is recovered into one.
func (s *Scheduler) cycle(ctx context.Context, sched *channelSchedule) {
	resolved := s.resolver.Resolve(ctx, sched.conn.Platform)

	run := domain.ScrapeRun{
		ID:           uuid.NewString(),
		ChannelID:    sched.ch.ID,
		Platform:     sched.conn.Platform,
		ConfigSource: resolved.Source,
		StartedAt:    time.Now().UTC(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			run.EndedAt = time.Now().UTC()
			run.Outcome = domain.RunFailure
			run.ErrorDetail = fmt.Sprintf("cycle panic: %v", rec)
			s.log.ErrorObj("scrape cycle panicked", "panic_meta", map[string]any{
				"run_id":     run.ID,
				"channel_id": sched.ch.ID,
				"panic":      fmt.Sprint(rec),
			})
			s.record(ctx, run, nil)
		}
	}()

	stats, attempts, err := retry.Do(ctx, resolved.Config.Retry, s.log, func(ctx context.Context) (CycleStats, error) {
		return s.runner.Run(ctx, run, sched.conn, sched.ch, resolved.Config)
	})

	run.EndedAt = time.Now().UTC()
	run.PostsFound = stats.PostsFound
	run.LeadsCreated = stats.LeadsCreated
	if err != nil {
		run.Outcome = domain.RunFailure
		run.ErrorDetail = err.Error()
		s.log.ErrorObj("scrape cycle failed", "run_result", map[string]any{
			"run_id":        run.ID,
			"channel_id":    run.ChannelID,
			"config_source": string(run.ConfigSource),
			"attempts":      len(attempts),
			"error":         err.Error(),
		})
	} else {
		run.Outcome = domain.RunSuccess
		s.log.InfoObj("scrape cycle completed", "run_result", map[string]any{
			"run_id":        run.ID,
			"channel_id":    run.ChannelID,
			"config_source": string(run.ConfigSource),
			"posts_found":   stats.PostsFound,
			"leads_created": stats.LeadsCreated,
			"leads_updated": stats.LeadsUpdated,
		})
	}

	s.record(ctx, run, attempts)
}

// record sinks the run and, when the run needed more than one attempt, its
// attempt log. Recorder failures are logged and swallowed; recording also
// survives context cancellation so a shutdown never drops a run record.
func (s *Scheduler) record(ctx context.Context, run domain.ScrapeRun, attempts []domain.RetryAttempt) {
	if s.recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if err := s.recorder.RecordRun(ctx, run); err != nil {
		s.log.ErrorObj("scrape run not recorded", "record_error", map[string]any{
			"run_id": run.ID,
			"error":  err.Error(),
		})
	}
	if len(attempts) > 1 {
		if err := s.recorder.RecordAttempts(ctx, run, attempts); err != nil {
			s.log.ErrorObj("retry attempts not recorded", "record_error", map[string]any{
				"run_id": run.ID,
				"error":  err.Error(),
			})
		}
	}
}
