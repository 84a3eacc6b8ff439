package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
)

// Package storage persists scraped posts, matched leads, and run history.

// ErrNotFound is returned by lookups when the record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract the scrape pipeline writes through.
type Store interface {
	// InsertPost appends a post if its ID is new. Re-inserting an existing
	// post is not an error; the bool reports whether a row was created.
	InsertPost(ctx context.Context, post domain.Post) (bool, error)
	GetPost(ctx context.Context, id string) (domain.Post, error)

	// UpsertLead creates the (userID, postID) lead or unions matched into
	// its keyword set. matched must be non-empty: a lead without matched
	// keywords violates the data model. The bool reports creation.
	UpsertLead(ctx context.Context, userID, postID string, matched []string) (domain.Lead, bool, error)
	GetLead(ctx context.Context, userID, postID string) (domain.Lead, error)
	// SetLeadStatus updates the review status, stamping FirstViewedAt the
	// first time the lead leaves LeadStatusNew.
	SetLeadStatus(ctx context.Context, userID, postID string, status domain.LeadStatus) error

	AppendRun(ctx context.Context, run domain.ScrapeRun) error
	// RecentRuns returns up to limit runs for the channel, newest first.
	RecentRuns(ctx context.Context, channelID string, limit int) ([]domain.ScrapeRun, error)

	// PurgeExpired removes posts and runs past their retention windows and
	// reports how many records were dropped. Leads are user data and are
	// never purged.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	Close() error
}

// Options controls backend selection and retention characteristics.
type Options struct {
	Type        string
	BBoltPath   string
	PostgresDSN string
	PostTTL     time.Duration
	RunTTL      time.Duration
}

const (
	defaultPostTTL = 14 * 24 * time.Hour
	defaultRunTTL  = 30 * 24 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	typ := strings.TrimSpace(strings.ToLower(opts.Type))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(opts.BBoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BBoltPath, opts)
	case "postgres":
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return openPostgres(ctx, opts.PostgresDSN, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.PostTTL <= 0 {
		opts.PostTTL = defaultPostTTL
	}
	if opts.RunTTL <= 0 {
		opts.RunTTL = defaultRunTTL
	}
	return opts
}

// noopStore satisfies Store without persisting anything. Lookups miss and
// every upsert counts as a creation so downstream events still flow.
type noopStore struct{}

func (noopStore) InsertPost(context.Context, domain.Post) (bool, error) { return true, nil }

func (noopStore) GetPost(context.Context, string) (domain.Post, error) {
	return domain.Post{}, ErrNotFound
}

func (noopStore) UpsertLead(_ context.Context, userID, postID string, matched []string) (domain.Lead, bool, error) {
	merged := domain.MergeKeywords(nil, matched)
	if len(merged) == 0 {
		return domain.Lead{}, false, fmt.Errorf("lead for user %q post %q has no matched keywords", userID, postID)
	}
	return domain.Lead{
		UserID:          userID,
		PostID:          postID,
		MatchedKeywords: merged,
		Status:          domain.LeadStatusNew,
	}, true, nil
}

func (noopStore) GetLead(context.Context, string, string) (domain.Lead, error) {
	return domain.Lead{}, ErrNotFound
}

func (noopStore) SetLeadStatus(context.Context, string, string, domain.LeadStatus) error {
	return nil
}

func (noopStore) AppendRun(context.Context, domain.ScrapeRun) error { return nil }

func (noopStore) RecentRuns(context.Context, string, int) ([]domain.ScrapeRun, error) {
	return nil, nil
}

func (noopStore) PurgeExpired(context.Context, time.Time) (int, error) { return 0, nil }

func (noopStore) Close() error { return nil }
