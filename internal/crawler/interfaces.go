package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Source knows the page layout of one listing site.
type Source interface {
	Name() string
	// BaseURL resolves relative links found on the site's pages.
	BaseURL() string
	ListingURL(page int) string
	ParseListing(body []byte) (Listing, error)
	// ParseSpeaker reads a speaker detail page. The listing's display name
	// is kept as the speaker's name.
	ParseSpeaker(body []byte, name string) (Speaker, error)
}

// Item is one row of a listing page.
type Item interface {
	// SeriesURL reports whether the row points at a nested series page.
	SeriesURL() (string, bool)
	Speaker() (SpeakerRef, error)
	// Permalink returns the talk's natural key as written on the page.
	Permalink() (string, error)
	// Talk extracts the remaining talk fields. Fields that cannot be read
	// are left zero and reported in the error; the talk is still usable.
	// The permalink, speaker and identity are filled in by the caller.
	Talk() (Talk, error)
}

// TalkStore persists talks by permalink.
type TalkStore interface {
	FindTalk(ctx context.Context, permalink string) (Talk, bool, error)
	UpsertTalk(ctx context.Context, talk Talk) error
}

// SpeakerStore persists speakers by name.
type SpeakerStore interface {
	FindSpeaker(ctx context.Context, name string) (Speaker, bool, error)
	UpsertSpeaker(ctx context.Context, speaker Speaker) error
}

// SequenceCounter is a central counter supporting atomic increment-and-fetch.
// Increment creates the counter at zero when absent and returns the value
// after adding amount.
type SequenceCounter interface {
	Increment(ctx context.Context, sequence string, amount int64) (int64, error)
}

// RunStore persists run metadata for the API.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	StartRun(ctx context.Context, runID string) error
	CompleteRun(ctx context.Context, runID string, summary Summary) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// Queue provides enqueue/dequeue semantics for crawl runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// BlobStore persists raw page bodies and returns a URI for the object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher produces a content digest used to name archived pages.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher announces finished runs to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	RunID   string
	Request RunRequest
}
