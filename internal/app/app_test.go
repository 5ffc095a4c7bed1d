package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/talk-catalog-crawler/internal/archive"
	"github.com/JakeFAU/talk-catalog-crawler/internal/config"
	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/policy/ratelimit"
	pubmemory "github.com/JakeFAU/talk-catalog-crawler/internal/publisher/memory"
	"github.com/JakeFAU/talk-catalog-crawler/internal/source/audiodharma"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/sqlite"
)

const listingPage = `<table class="talklist">
<tr><th>Date</th><th>Title</th><th>Teacher</th><th>Length</th><th>Links</th></tr>
%s
</table>`

const talkRow = `<tr>
<td class="talk_date">2016-04-0%[1]d</td>
<td><span class="talk_title">Talk %[1]d</span></td>
<td class="talk_teacher"><a href="/teacher/12/">Gil Fronsdal</a></td>
<td class="talk_length">10:0%[1]d</td>
<td class="talk_links"><a href="/talks/%[1]d.mp3">Listen</a></td>
</tr>`

const speakerPage = `<div><div></div><table class="teacher_bio_table"><tr>
<td class="teacher_photo"><img src="/gil.jpg"></td><td class="teacher_bio">Bio</td>
</tr></table><div><a href="http://imc.example">site</a></div></div>`

type siteFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	seen  []string
}

func (f *siteFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req.URL)
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, fmt.Errorf("no page %s", req.URL)
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func testConfig() config.Config {
	return config.Config{
		Crawl:    config.CrawlConfig{Source: audiodharma.Name, StartPage: 1},
		Sequence: config.SequenceConfig{BlockSize: 20, CacheEnabled: true, Backend: config.BackendStore},
		Store:    config.StoreConfig{Driver: config.DriverMemory},
		HTTP:     config.HTTPConfig{TimeoutSeconds: 5},
		Server:   config.ServerConfig{Port: 8080, Workers: 1, QueueDepth: 1},
	}
}

func newSite() *siteFetcher {
	const base = "http://audiodharma.test"
	return &siteFetcher{pages: map[string]string{
		base + "/talks/?page=1": fmt.Sprintf(listingPage, fmt.Sprintf(talkRow, 3)+fmt.Sprintf(talkRow, 2)),
		base + "/talks/?page=2": fmt.Sprintf(listingPage, fmt.Sprintf(talkRow, 1)),
		base + "/talks/?page=3": `<p>No matching talks are available.</p>`,
		base + "/teacher/12/":   speakerPage,
	}}
}

func testLookup(name string) (crawler.Source, error) {
	if name != audiodharma.Name {
		return nil, errors.New("unknown source")
	}
	return audiodharma.New("http://audiodharma.test"), nil
}

func TestCrawlEndToEnd(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	site := newSite()
	a, err := New(context.Background(), testConfig(), zaptest.NewLogger(t),
		WithStore(store), WithFetcher(site), WithSourceLookup(testLookup))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	summary, err := a.Crawl(context.Background(), crawler.RunRequest{Source: audiodharma.Name})
	require.NoError(t, err)
	require.Equal(t, crawler.ReasonExhausted, summary.Reason)
	require.Equal(t, 3, summary.TalksCreated)
	require.Equal(t, 1, summary.SpeakersCreated)
	require.Equal(t, 2, summary.SpeakersReused)

	talk, ok, err := store.FindTalk(context.Background(), "http://audiodharma.test/talks/1.mp3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 601, talk.Duration)
	require.Equal(t, int64(3), talk.ID)
	require.Equal(t, int64(20), store.Counter(crawler.TalkCollection))

	// A second run stops at the first listed talk without fetching page 2.
	site.seen = nil
	summary, err = a.Crawl(context.Background(), crawler.RunRequest{Source: audiodharma.Name})
	require.NoError(t, err)
	require.Equal(t, crawler.ReasonFinished, summary.Reason)
	require.Zero(t, summary.TalksCreated)
	for _, url := range site.seen {
		require.False(t, strings.HasSuffix(url, "page=2"), "fetched %s", url)
	}
}

func TestCrawlUnknownSource(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(), nil,
		WithStore(memory.NewStore()), WithFetcher(newSite()), WithSourceLookup(testLookup))
	require.NoError(t, err)

	summary, err := a.Crawl(context.Background(), crawler.RunRequest{Source: "sutta-central"})
	require.Error(t, err)
	require.Equal(t, crawler.ReasonFailed, summary.Reason)
}

func TestNewDefaultsToMemoryAndColly(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.IsType(t, &memory.Store{}, a.store)
	require.IsType(t, &memory.RunStore{}, a.Runs())
	require.NotNil(t, a.fetcher)
	require.NotNil(t, a.Allocator())
	require.NotNil(t, a.Clock())
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Store.Driver = "mongo"
	_, err := New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown store driver")

	cfg = testConfig()
	cfg.Sequence.Backend = "etcd"
	_, err = New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown sequence backend")
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Store.Driver = config.DriverPostgres
	_, err := New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "store.dsn is required")
}

func TestCrawlPersistsToSQLite(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Store = config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "catalog.db")}
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t),
		WithFetcher(newSite()), WithSourceLookup(testLookup))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.IsType(t, &sqlite.Store{}, a.store)
	require.IsType(t, &sqlite.RunStore{}, a.Runs())

	summary, err := a.Crawl(context.Background(), crawler.RunRequest{Source: audiodharma.Name})
	require.NoError(t, err)
	require.Equal(t, crawler.ReasonExhausted, summary.Reason)
	require.Equal(t, 3, summary.TalksCreated)

	talk, ok, err := a.store.FindTalk(context.Background(), "http://audiodharma.test/talks/1.mp3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), talk.ID)
}

func TestCrawlArchivesFetchedPages(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	a, err := New(context.Background(), testConfig(), zaptest.NewLogger(t),
		WithStore(memory.NewStore()), WithFetcher(newSite()), WithSourceLookup(testLookup), WithBlobStore(blobs))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.IsType(t, &archive.Fetcher{}, a.fetcher)

	_, err = a.Crawl(context.Background(), crawler.RunRequest{Source: audiodharma.Name})
	require.NoError(t, err)

	var listings, speakers int
	for _, p := range blobs.Paths() {
		switch {
		case strings.HasPrefix(p, "listing/audiodharma.test/"):
			listings++
		case strings.HasPrefix(p, "speaker/audiodharma.test/"):
			speakers++
		}
	}
	require.Equal(t, 3, listings)
	require.Equal(t, 1, speakers)
}

func TestNewLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Archive = config.ArchiveConfig{Backend: config.ArchiveLocal, Dir: t.TempDir()}
	a, err := New(context.Background(), cfg, nil, WithFetcher(newSite()))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.IsType(t, &archive.Fetcher{}, a.fetcher)
}

func TestNewRateLimitsFetcher(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.HTTP.RequestsPerSecond = 5
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.IsType(t, &ratelimit.Fetcher{}, a.fetcher)
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(), nil, WithFetcher(newSite()))
	require.NoError(t, err)
	p, _ := a.Notifier()
	require.Nil(t, p)

	cfg := testConfig()
	cfg.PubSub = config.PubSubConfig{ProjectID: "dharma", Topic: "talk-runs"}
	pub := pubmemory.New()
	a, err = New(context.Background(), cfg, nil, WithFetcher(newSite()), WithPublisher(pub))
	require.NoError(t, err)
	p, topic := a.Notifier()
	require.Same(t, pub, p)
	require.Equal(t, "talk-runs", topic)
}
