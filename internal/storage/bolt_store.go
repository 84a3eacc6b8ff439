package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	postBucket = "posts"
	leadBucket = "leads"
	runBucket  = "runs"

	defaultRunLimit = 20
)

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db      *bolt.DB
	postTTL time.Duration
	runTTL  time.Duration
	now     func() time.Time
}

// postRecord wraps a post with its insertion time, which drives retention.
type postRecord struct {
	domain.Post
	StoredAt time.Time `json:"stored_at"`
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{postBucket, leadBucket, runBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{
		db:      db,
		postTTL: opts.PostTTL,
		runTTL:  opts.RunTTL,
		now:     time.Now,
	}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// InsertPost stores the post unless its ID already exists.
func (b *boltStore) InsertPost(_ context.Context, post domain.Post) (bool, error) {
	if post.ID == "" {
		return false, fmt.Errorf("post id is empty")
	}

	created := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postBucket))
		if bucket == nil {
			return fmt.Errorf("post bucket missing")
		}

		key := []byte(post.ID)
		if bucket.Get(key) != nil {
			return nil // append-only: a duplicate insert is ignored
		}

		raw, err := json.Marshal(postRecord{Post: post, StoredAt: b.now().UTC()})
		if err != nil {
			return fmt.Errorf("encode post: %w", err)
		}
		created = true
		return bucket.Put(key, raw)
	})
	return created, err
}

// GetPost returns the stored post by ID.
func (b *boltStore) GetPost(_ context.Context, id string) (domain.Post, error) {
	var record postRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postBucket))
		if bucket == nil {
			return fmt.Errorf("post bucket missing")
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &record)
	})
	if err != nil {
		return domain.Post{}, err
	}
	return record.Post, nil
}

// UpsertLead creates or updates the lead for (userID, postID), unioning the
// matched keywords into the existing set.
func (b *boltStore) UpsertLead(_ context.Context, userID, postID string, matched []string) (domain.Lead, bool, error) {
	if userID == "" || postID == "" {
		return domain.Lead{}, false, fmt.Errorf("lead requires a user id and a post id")
	}
	merged := domain.MergeKeywords(nil, matched)
	if len(merged) == 0 {
		return domain.Lead{}, false, fmt.Errorf("lead for user %q post %q has no matched keywords", userID, postID)
	}

	var lead domain.Lead
	created := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(leadBucket))
		if bucket == nil {
			return fmt.Errorf("lead bucket missing")
		}

		key := leadKey(userID, postID)
		now := b.now().UTC()
		if raw := bucket.Get(key); raw != nil {
			if err := json.Unmarshal(raw, &lead); err != nil {
				return fmt.Errorf("decode lead: %w", err)
			}
			lead.MatchedKeywords = domain.MergeKeywords(lead.MatchedKeywords, merged)
			lead.UpdatedAt = now
		} else {
			created = true
			lead = domain.Lead{
				UserID:          userID,
				PostID:          postID,
				MatchedKeywords: merged,
				Status:          domain.LeadStatusNew,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
		}

		raw, err := json.Marshal(lead)
		if err != nil {
			return fmt.Errorf("encode lead: %w", err)
		}
		return bucket.Put(key, raw)
	})
	if err != nil {
		return domain.Lead{}, false, err
	}
	return lead, created, nil
}

// GetLead returns the lead for (userID, postID).
func (b *boltStore) GetLead(_ context.Context, userID, postID string) (domain.Lead, error) {
	var lead domain.Lead
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(leadBucket))
		if bucket == nil {
			return fmt.Errorf("lead bucket missing")
		}
		raw := bucket.Get(leadKey(userID, postID))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &lead)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// SetLeadStatus transitions the lead's review status.
func (b *boltStore) SetLeadStatus(_ context.Context, userID, postID string, status domain.LeadStatus) error {
	if !domain.ValidLeadStatus(status) {
		return fmt.Errorf("invalid lead status %q", status)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(leadBucket))
		if bucket == nil {
			return fmt.Errorf("lead bucket missing")
		}

		key := leadKey(userID, postID)
		raw := bucket.Get(key)
		if raw == nil {
			return ErrNotFound
		}

		var lead domain.Lead
		if err := json.Unmarshal(raw, &lead); err != nil {
			return fmt.Errorf("decode lead: %w", err)
		}

		now := b.now().UTC()
		if lead.Status == domain.LeadStatusNew && status != domain.LeadStatusNew && lead.FirstViewedAt == nil {
			lead.FirstViewedAt = &now
		}
		lead.Status = status
		lead.UpdatedAt = now

		updated, err := json.Marshal(lead)
		if err != nil {
			return fmt.Errorf("encode lead: %w", err)
		}
		return bucket.Put(key, updated)
	})
}

// AppendRun stores the run record. Run keys order by start time within a
// channel so recent-run scans are a prefix walk.
func (b *boltStore) AppendRun(_ context.Context, run domain.ScrapeRun) error {
	if run.ChannelID == "" {
		return fmt.Errorf("scrape run requires a channel id")
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(runBucket))
		if bucket == nil {
			return fmt.Errorf("run bucket missing")
		}
		raw, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("encode run: %w", err)
		}
		return bucket.Put(runKey(run), raw)
	})
}

// RecentRuns returns up to limit runs for the channel, newest first.
func (b *boltStore) RecentRuns(_ context.Context, channelID string, limit int) ([]domain.ScrapeRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}

	prefix := []byte(channelID + "|")
	var runs []domain.ScrapeRun
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(runBucket))
		if bucket == nil {
			return fmt.Errorf("run bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var run domain.ScrapeRun
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("decode run: %w", err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// PurgeExpired removes posts and runs older than their retention windows.
// Entries that fail to decode are swept as well.
func (b *boltStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	postCutoff := now.Add(-b.postTTL)
	runCutoff := now.Add(-b.runTTL)

	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		posts := tx.Bucket([]byte(postBucket))
		if posts == nil {
			return fmt.Errorf("post bucket missing")
		}
		cursor := posts.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var record postRecord
			if err := json.Unmarshal(v, &record); err != nil || !record.StoredAt.After(postCutoff) {
				if err := cursor.Delete(); err != nil {
					return err
				}
				removed++
			}
		}

		runs := tx.Bucket([]byte(runBucket))
		if runs == nil {
			return fmt.Errorf("run bucket missing")
		}
		rc := runs.Cursor()
		for k, v := rc.First(); k != nil; k, v = rc.Next() {
			var run domain.ScrapeRun
			if err := json.Unmarshal(v, &run); err != nil || !run.StartedAt.After(runCutoff) {
				if err := rc.Delete(); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func leadKey(userID, postID string) []byte {
	return []byte(userID + "|" + postID)
}

func runKey(run domain.ScrapeRun) []byte {
	return []byte(fmt.Sprintf("%s|%020d|%s", run.ChannelID, run.StartedAt.UnixNano(), run.ID))
}
