package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadscout-hq/leadscout/internal/domain"
)

// postgresStore implements a Store on a pgx connection pool.
type postgresStore struct {
	pool    *pgxpool.Pool
	postTTL time.Duration
	runTTL  time.Duration
}

// openPostgres connects the pool and ensures the schema exists.
func openPostgres(ctx context.Context, dsn string, opts Options) (Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store := &postgresStore{pool: pool, postTTL: opts.PostTTL, runTTL: opts.RunTTL}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (p *postgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			posted_at TIMESTAMPTZ,
			metadata JSONB,
			stored_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS leads (
			user_id TEXT NOT NULL,
			post_id TEXT NOT NULL,
			matched_keywords TEXT[] NOT NULL,
			status TEXT NOT NULL DEFAULT 'new',
			first_viewed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, post_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scrape_runs (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			config_source TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			outcome TEXT NOT NULL,
			error_detail TEXT NOT NULL DEFAULT '',
			posts_found INT NOT NULL DEFAULT 0,
			leads_created INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS scrape_runs_channel_started
			ON scrape_runs (channel_id, started_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (p *postgresStore) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

// InsertPost appends the post; a conflicting ID leaves the stored row intact.
func (p *postgresStore) InsertPost(ctx context.Context, post domain.Post) (bool, error) {
	if post.ID == "" {
		return false, fmt.Errorf("post id is empty")
	}

	var metadata []byte
	if len(post.Metadata) > 0 {
		raw, err := json.Marshal(post.Metadata)
		if err != nil {
			return false, fmt.Errorf("encode post metadata: %w", err)
		}
		metadata = raw
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO posts (id, channel_id, platform, author, content, source_url, posted_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		post.ID, post.ChannelID, post.Platform, post.Author, post.Content, post.SourceURL, post.Timestamp, metadata)
	if err != nil {
		return false, fmt.Errorf("insert post: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetPost returns the stored post by ID.
func (p *postgresStore) GetPost(ctx context.Context, id string) (domain.Post, error) {
	var (
		post     domain.Post
		metadata []byte
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, channel_id, platform, author, content, source_url, posted_at, metadata
		FROM posts WHERE id = $1`, id).
		Scan(&post.ID, &post.ChannelID, &post.Platform, &post.Author, &post.Content, &post.SourceURL, &post.Timestamp, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, ErrNotFound
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &post.Metadata); err != nil {
			return domain.Post{}, fmt.Errorf("decode post metadata: %w", err)
		}
	}
	return post, nil
}

// UpsertLead creates or updates the (userID, postID) lead, unioning matched
// keywords in SQL so concurrent upserts cannot drop each other's matches.
func (p *postgresStore) UpsertLead(ctx context.Context, userID, postID string, matched []string) (domain.Lead, bool, error) {
	if userID == "" || postID == "" {
		return domain.Lead{}, false, fmt.Errorf("lead requires a user id and a post id")
	}
	merged := domain.MergeKeywords(nil, matched)
	if len(merged) == 0 {
		return domain.Lead{}, false, fmt.Errorf("lead for user %q post %q has no matched keywords", userID, postID)
	}

	var (
		lead    domain.Lead
		created bool
	)
	err := p.pool.QueryRow(ctx, `
		INSERT INTO leads (user_id, post_id, matched_keywords)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, post_id) DO UPDATE SET
			matched_keywords = ARRAY(
				SELECT DISTINCT kw
				FROM unnest(leads.matched_keywords || EXCLUDED.matched_keywords) AS kw
				ORDER BY kw
			),
			updated_at = now()
		RETURNING user_id, post_id, matched_keywords, status, first_viewed_at, created_at, updated_at, (xmax = 0)`,
		userID, postID, merged).
		Scan(&lead.UserID, &lead.PostID, &lead.MatchedKeywords, &lead.Status,
			&lead.FirstViewedAt, &lead.CreatedAt, &lead.UpdatedAt, &created)
	if err != nil {
		return domain.Lead{}, false, fmt.Errorf("upsert lead: %w", err)
	}
	return lead, created, nil
}

// GetLead returns the lead for (userID, postID).
func (p *postgresStore) GetLead(ctx context.Context, userID, postID string) (domain.Lead, error) {
	var lead domain.Lead
	err := p.pool.QueryRow(ctx, `
		SELECT user_id, post_id, matched_keywords, status, first_viewed_at, created_at, updated_at
		FROM leads WHERE user_id = $1 AND post_id = $2`, userID, postID).
		Scan(&lead.UserID, &lead.PostID, &lead.MatchedKeywords, &lead.Status,
			&lead.FirstViewedAt, &lead.CreatedAt, &lead.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// SetLeadStatus transitions the lead's review status.
func (p *postgresStore) SetLeadStatus(ctx context.Context, userID, postID string, status domain.LeadStatus) error {
	if !domain.ValidLeadStatus(status) {
		return fmt.Errorf("invalid lead status %q", status)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE leads SET
			first_viewed_at = CASE
				WHEN first_viewed_at IS NULL AND status = 'new' AND $3 <> 'new' THEN now()
				ELSE first_viewed_at
			END,
			status = $3,
			updated_at = now()
		WHERE user_id = $1 AND post_id = $2`,
		userID, postID, string(status))
	if err != nil {
		return fmt.Errorf("set lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRun stores the run record.
func (p *postgresStore) AppendRun(ctx context.Context, run domain.ScrapeRun) error {
	if run.ChannelID == "" {
		return fmt.Errorf("scrape run requires a channel id")
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO scrape_runs
			(id, channel_id, platform, config_source, started_at, ended_at, outcome, error_detail, posts_found, leads_created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.ChannelID, run.Platform, string(run.ConfigSource), run.StartedAt, run.EndedAt,
		string(run.Outcome), run.ErrorDetail, run.PostsFound, run.LeadsCreated)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs for the channel, newest first.
func (p *postgresStore) RecentRuns(ctx context.Context, channelID string, limit int) ([]domain.ScrapeRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, channel_id, platform, config_source, started_at, ended_at, outcome, error_detail, posts_found, leads_created
		FROM scrape_runs
		WHERE channel_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ScrapeRun
	for rows.Next() {
		var run domain.ScrapeRun
		if err := rows.Scan(&run.ID, &run.ChannelID, &run.Platform, &run.ConfigSource, &run.StartedAt,
			&run.EndedAt, &run.Outcome, &run.ErrorDetail, &run.PostsFound, &run.LeadsCreated); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// PurgeExpired removes posts and runs older than their retention windows.
func (p *postgresStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0

	tag, err := p.pool.Exec(ctx, `DELETE FROM posts WHERE stored_at < $1`, now.Add(-p.postTTL))
	if err != nil {
		return removed, fmt.Errorf("purge posts: %w", err)
	}
	removed += int(tag.RowsAffected())

	tag, err = p.pool.Exec(ctx, `DELETE FROM scrape_runs WHERE started_at < $1`, now.Add(-p.runTTL))
	if err != nil {
		return removed, fmt.Errorf("purge runs: %w", err)
	}
	removed += int(tag.RowsAffected())

	return removed, nil
}
