package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/pkg/publishers"
)

// runSink is the slice of storage the operational log appends runs to.
type runSink interface {
	AppendRun(ctx context.Context, run domain.ScrapeRun) error
}

// opsLog fans every scheduling fact into storage and the publisher fanout.
// Each sink is attempted regardless of the other's failure, so one bad sink
// never drops a record; per-sink errors come back joined for the caller to
// log.
type opsLog struct {
	store  runSink
	fanout *publishers.Fanout
}

func newOpsLog(store runSink, fanout *publishers.Fanout) *opsLog {
	return &opsLog{store: store, fanout: fanout}
}

func (o *opsLog) RecordRun(ctx context.Context, run domain.ScrapeRun) error {
	var errs []error
	if o.store != nil {
		if err := o.store.AppendRun(ctx, run); err != nil {
			errs = append(errs, fmt.Errorf("append run: %w", err))
		}
	}
	if err := o.publish(ctx, publishers.NewScrapeRunEvent(run)); err != nil {
		errs = append(errs, fmt.Errorf("publish run event: %w", err))
	}
	return errors.Join(errs...)
}

// RecordAttempts emits the attempt log as an event only. Attempt logs are
// run-scoped observability, not a stored entity; the run row already carries
// the summary.
func (o *opsLog) RecordAttempts(ctx context.Context, run domain.ScrapeRun, attempts []domain.RetryAttempt) error {
	if err := o.publish(ctx, publishers.NewRetryLogEvent(run, attempts)); err != nil {
		return fmt.Errorf("publish retry log event: %w", err)
	}
	return nil
}

func (o *opsLog) RecordSkippedTick(ctx context.Context, platform, channelID string, skippedAt time.Time) error {
	if err := o.publish(ctx, publishers.NewTickSkippedEvent(platform, channelID, skippedAt)); err != nil {
		return fmt.Errorf("publish tick skipped event: %w", err)
	}
	return nil
}

func (o *opsLog) publish(ctx context.Context, evt publishers.Event) error {
	if o.fanout == nil || o.fanout.Size() == 0 {
		return nil
	}
	_, err := o.fanout.Publish(ctx, evt)
	return err
}
