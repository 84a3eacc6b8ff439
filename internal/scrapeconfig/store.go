package scrapeconfig

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leadscout-hq/leadscout/internal/domain"
)

// Entry pairs a last-known-good scraper config with its fetch timestamp.
type Entry struct {
	Config    domain.ScraperConfig
	FetchedAt time.Time
}

// Store keeps the last successfully fetched scraper config per platform.
// Entries survive across scrape cycles for the life of the process and are
// replaced only by a newer successful fetch or an explicit Clear. Configs
// are treated as immutable values once stored.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore returns an empty last-known-good store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Put records cfg as the new last known good for its platform. The entry is
// replaced as a whole: a concurrent reader sees either the old or the new
// config, never a mix.
func (s *Store) Put(cfg domain.ScraperConfig, fetchedAt time.Time) {
	platform := strings.TrimSpace(cfg.Platform)
	if platform == "" {
		return
	}

	s.mu.Lock()
	s.entries[platform] = Entry{Config: cfg, FetchedAt: fetchedAt}
	s.mu.Unlock()
}

// Get returns the last-known-good entry for the platform, if present.
func (s *Store) Get(platform string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[platform]
	return e, ok
}

// Clear removes the stored entry for the platform, if any.
func (s *Store) Clear(platform string) {
	s.mu.Lock()
	delete(s.entries, platform)
	s.mu.Unlock()
}

// Platforms returns the sorted platform ids that currently hold an entry.
func (s *Store) Platforms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for platform := range s.entries {
		out = append(out, platform)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// DefaultConfig returns the compiled-in fallback for a platform: conservative
// timing, no selectors, and a modest retry budget. It is the bottom of the
// resolver's fallback chain and must work for any platform name.
func DefaultConfig(platform string) domain.ScraperConfig {
	return domain.ScraperConfig{
		Platform:  platform,
		Version:   "default",
		Selectors: map[string]string{},
		Timing: domain.ScrapeTiming{
			PageLoadDelay: 5 * time.Second,
			ActionDelay:   2 * time.Second,
			ScrollDelay:   3 * time.Second,
		},
		Retry: domain.RetryPolicy{
			MaxRetries:        2,
			InitialBackoff:    500 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	}
}
