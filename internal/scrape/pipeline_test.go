package scrape

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/leadscout-hq/leadscout/internal/domain"
	"github.com/leadscout-hq/leadscout/pkg/platforms"
	"github.com/leadscout-hq/leadscout/pkg/publishers"
)

// fakeScraper returns preset posts or an error.
type fakeScraper struct {
	platform string
	posts    []domain.Post
	err      error
}

func (f *fakeScraper) Platform() string { return f.platform }
func (f *fakeScraper) Scrape(_ context.Context, _ platforms.Channel, _ domain.ScraperConfig) ([]domain.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.posts, nil
}

// fakeScraperRegistry serves a single scraper for every connection.
type fakeScraperRegistry struct {
	scraper platforms.Scraper
	err     error
}

func (f *fakeScraperRegistry) ScraperFor(platforms.Connection) (platforms.Scraper, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scraper, nil
}

// fakeKeywords maps user ids to active keyword lists.
type fakeKeywords map[string][]string

func (f fakeKeywords) ActiveKeywords(userID string) []string { return f[userID] }

// fakeLeadStore keeps posts and leads in maps and can inject errors.
type fakeLeadStore struct {
	mu          sync.Mutex
	posts       map[string]domain.Post
	leads       map[string]domain.Lead
	insertErrID string
	upsertErr   error
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{
		posts: make(map[string]domain.Post),
		leads: make(map[string]domain.Lead),
	}
}

func (f *fakeLeadStore) InsertPost(_ context.Context, post domain.Post) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErrID != "" && post.ID == f.insertErrID {
		return false, errors.New("insert failed")
	}
	if _, exists := f.posts[post.ID]; exists {
		return false, nil
	}
	f.posts[post.ID] = post
	return true, nil
}

func (f *fakeLeadStore) UpsertLead(_ context.Context, userID, postID string, matched []string) (domain.Lead, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return domain.Lead{}, false, f.upsertErr
	}
	key := userID + "|" + postID
	if lead, exists := f.leads[key]; exists {
		lead.MatchedKeywords = domain.MergeKeywords(lead.MatchedKeywords, matched)
		f.leads[key] = lead
		return lead, false, nil
	}
	lead := domain.Lead{
		UserID:          userID,
		PostID:          postID,
		MatchedKeywords: domain.MergeKeywords(nil, matched),
		Status:          domain.LeadStatusNew,
	}
	f.leads[key] = lead
	return lead, true, nil
}

func (f *fakeLeadStore) lead(userID, postID string) (domain.Lead, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[userID+"|"+postID]
	return lead, ok
}

// capturingPublisher records every event it receives.
type capturingPublisher struct {
	mu     sync.Mutex
	events []publishers.Event
}

func (c *capturingPublisher) ID() string   { return "capture" }
func (c *capturingPublisher) Type() string { return "http" }
func (c *capturingPublisher) Publish(_ context.Context, evt publishers.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingPublisher) captured() []publishers.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publishers.Event, len(c.events))
	copy(out, c.events)
	return out
}

func testConnection() (platforms.Connection, platforms.Channel) {
	ch := platforms.Channel{ID: "ch-golang", Name: "golang-jobs", SourceURL: "https://app.slack.com/jobs"}
	conn := platforms.Connection{ID: "conn-1", Platform: "slack", UserID: "u-1", Channels: []platforms.Channel{ch}}
	return conn, ch
}

func TestPipelineCreatesLeadsForMatchingPosts(t *testing.T) {
	conn, ch := testConnection()
	posts := []domain.Post{
		{ID: "p-1", ChannelID: ch.ID, Content: "Looking for a Golang consultant"},
		{ID: "p-2", ChannelID: ch.ID, Content: "lunch plans anyone?"},
	}
	store := newFakeLeadStore()
	capture := &capturingPublisher{}
	pipeline := NewPipeline(
		&fakeScraperRegistry{scraper: &fakeScraper{platform: "slack", posts: posts}},
		store,
		fakeKeywords{"u-1": {"golang", "rust"}},
		publishers.NewFanout([]publishers.Publisher{capture}),
		nil,
	)

	run := domain.ScrapeRun{ID: "run-1", ChannelID: ch.ID, Platform: "slack"}
	stats, err := pipeline.Run(context.Background(), run, conn, ch, domain.ScraperConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PostsFound != 2 || stats.LeadsCreated != 1 || stats.LeadsUpdated != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	lead, ok := store.lead("u-1", "p-1")
	if !ok {
		t.Fatalf("lead for p-1 not stored")
	}
	if len(lead.MatchedKeywords) != 1 || lead.MatchedKeywords[0] != "golang" {
		t.Fatalf("matched keywords = %v", lead.MatchedKeywords)
	}
	if _, ok := store.lead("u-1", "p-2"); ok {
		t.Fatalf("non-matching post produced a lead")
	}

	events := capture.captured()
	if len(events) != 1 {
		t.Fatalf("expected 1 lead event, got %d", len(events))
	}
	if events[0].Kind != publishers.KindLeadCreated || events[0].RunID != "run-1" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestPipelineUnionsKeywordsOnRematch(t *testing.T) {
	conn, ch := testConnection()
	post := domain.Post{ID: "p-1", ChannelID: ch.ID, Content: "React and Vue developer wanted"}
	store := newFakeLeadStore()
	capture := &capturingPublisher{}
	keywords := fakeKeywords{"u-1": {"react"}}
	pipeline := NewPipeline(
		&fakeScraperRegistry{scraper: &fakeScraper{platform: "slack", posts: []domain.Post{post}}},
		store,
		keywords,
		publishers.NewFanout([]publishers.Publisher{capture}),
		nil,
	)

	run := domain.ScrapeRun{ID: "run-1", ChannelID: ch.ID, Platform: "slack"}
	if _, err := pipeline.Run(context.Background(), run, conn, ch, domain.ScraperConfig{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// The same post scraped again with a wider keyword set unions into the
	// existing lead instead of creating a second one.
	keywords["u-1"] = []string{"react", "vue"}
	stats, err := pipeline.Run(context.Background(), run, conn, ch, domain.ScraperConfig{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.LeadsCreated != 0 || stats.LeadsUpdated != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	lead, ok := store.lead("u-1", "p-1")
	if !ok {
		t.Fatalf("lead missing after rematch")
	}
	want := []string{"react", "vue"}
	if len(lead.MatchedKeywords) != len(want) {
		t.Fatalf("matched keywords = %v, want %v", lead.MatchedKeywords, want)
	}
	for i, kw := range want {
		if lead.MatchedKeywords[i] != kw {
			t.Fatalf("matched keywords = %v, want %v", lead.MatchedKeywords, want)
		}
	}
	if events := capture.captured(); len(events) != 1 {
		t.Fatalf("expected 1 lead event total, got %d", len(events))
	}
}

func TestPipelineMalformedContentIsNotFatal(t *testing.T) {
	conn, ch := testConnection()
	posts := []domain.Post{
		{ID: "p-bad", ChannelID: ch.ID, Content: string([]byte{0xff, 0xfe, 0xfd})},
		{ID: "p-good", ChannelID: ch.ID, Content: "golang contractor needed"},
	}
	store := newFakeLeadStore()
	pipeline := NewPipeline(
		&fakeScraperRegistry{scraper: &fakeScraper{platform: "slack", posts: posts}},
		store,
		fakeKeywords{"u-1": {"golang"}},
		nil,
		nil,
	)

	run := domain.ScrapeRun{ID: "run-1"}
	stats, err := pipeline.Run(context.Background(), run, conn, ch, domain.ScraperConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.LeadsCreated != 1 {
		t.Fatalf("expected 1 lead from the valid post, got %d", stats.LeadsCreated)
	}
	if _, ok := store.lead("u-1", "p-bad"); ok {
		t.Fatalf("malformed post produced a lead")
	}
}

func TestPipelineScrapeFailureReturnsError(t *testing.T) {
	conn, ch := testConnection()
	store := newFakeLeadStore()
	pipeline := NewPipeline(
		&fakeScraperRegistry{scraper: &fakeScraper{platform: "slack", err: errors.New("render timeout")}},
		store,
		fakeKeywords{},
		nil,
		nil,
	)

	_, err := pipeline.Run(context.Background(), domain.ScrapeRun{}, conn, ch, domain.ScraperConfig{})
	if err == nil || !strings.Contains(err.Error(), "render timeout") {
		t.Fatalf("expected scrape error, got %v", err)
	}
	if len(store.posts) != 0 {
		t.Fatalf("posts stored despite scrape failure")
	}
}

func TestPipelinePersistenceErrorsJoin(t *testing.T) {
	conn, ch := testConnection()
	posts := []domain.Post{
		{ID: "p-broken", ChannelID: ch.ID, Content: "golang role"},
		{ID: "p-fine", ChannelID: ch.ID, Content: "golang role too"},
	}
	store := newFakeLeadStore()
	store.insertErrID = "p-broken"
	pipeline := NewPipeline(
		&fakeScraperRegistry{scraper: &fakeScraper{platform: "slack", posts: posts}},
		store,
		fakeKeywords{"u-1": {"golang"}},
		nil,
		nil,
	)

	stats, err := pipeline.Run(context.Background(), domain.ScrapeRun{ID: "run-1"}, conn, ch, domain.ScraperConfig{})
	if err == nil || !strings.Contains(err.Error(), "p-broken") {
		t.Fatalf("expected joined persistence error, got %v", err)
	}
	// The healthy post is still processed.
	if stats.LeadsCreated != 1 {
		t.Fatalf("expected 1 lead despite the failing post, got %d", stats.LeadsCreated)
	}
}

func TestPipelineNoActiveKeywordsStoresPostsOnly(t *testing.T) {
	conn, ch := testConnection()
	posts := []domain.Post{{ID: "p-1", ChannelID: ch.ID, Content: "golang"}}
	store := newFakeLeadStore()
	pipeline := NewPipeline(
		&fakeScraperRegistry{scraper: &fakeScraper{platform: "slack", posts: posts}},
		store,
		fakeKeywords{},
		nil,
		nil,
	)

	stats, err := pipeline.Run(context.Background(), domain.ScrapeRun{}, conn, ch, domain.ScraperConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PostsFound != 1 || stats.LeadsCreated != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(store.posts) != 1 {
		t.Fatalf("post not stored")
	}
}
