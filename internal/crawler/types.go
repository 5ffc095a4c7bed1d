// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// Collection names double as the allocator's sequence names.
const (
	TalkCollection    = "talks"
	SpeakerCollection = "speakers"
)

// Talk is a unit of catalog content keyed by its permalink.
type Talk struct {
	// ID is zero until the talk is first persisted.
	ID          int64   `json:"id"`
	Permalink   string  `json:"permalink"`
	Title       string  `json:"title"`
	Duration    int     `json:"duration"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Venue       string  `json:"venue"`
	Event       *string `json:"event,omitempty"`
	Source      string  `json:"source"`
	License     string  `json:"license"`
	SpeakerID   int64   `json:"speaker_id"`
}

// Key returns the talk's natural key.
func (t Talk) Key() string { return t.Permalink }

// Identity returns the allocated identity, or zero.
func (t Talk) Identity() int64 { return t.ID }

// WithIdentity returns a copy of the talk carrying id.
func (t Talk) WithIdentity(id int64) Talk {
	t.ID = id
	return t
}

// Speaker is a contributor resolved from a detail page and keyed by name.
type Speaker struct {
	// ID is zero until the speaker is first persisted.
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Bio     string `json:"bio"`
	Website string `json:"website"`
	Picture string `json:"picture"`
}

// Key returns the speaker's natural key.
func (s Speaker) Key() string { return s.Name }

// Identity returns the allocated identity, or zero.
func (s Speaker) Identity() int64 { return s.ID }

// WithIdentity returns a copy of the speaker carrying id.
func (s Speaker) WithIdentity(id int64) Speaker {
	s.ID = id
	return s
}

// Document is satisfied by entities persisted through the entity store.
type Document[T any] interface {
	Key() string
	Identity() int64
	WithIdentity(id int64) T
}

// SpeakerRef is the speaker information visible on a listing row.
type SpeakerRef struct {
	Name string
	URL  string
}

// Listing is one parsed listing (or series) page.
type Listing struct {
	// Exhausted reports the source's "no more items" sentinel.
	Exhausted bool
	Items     []Item
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Kind    PageKind
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PageKind labels the role a fetched page plays in a crawl.
type PageKind string

// Page kinds fetched by the crawl controller.
const (
	PageListing PageKind = "listing"
	PageSeries  PageKind = "series"
	PageSpeaker PageKind = "speaker"
)

// Reason is the terminal state of a crawl run.
type Reason string

// Terminal reasons reported in a run summary.
const (
	ReasonExhausted Reason = "exhausted"
	ReasonFinished  Reason = "finished"
	ReasonFailed    Reason = "failed"
	ReasonCanceled  Reason = "canceled"
)

// Summary is reported to callers when a crawl run ends.
type Summary struct {
	Source          string `json:"source"`
	Recrawl         bool   `json:"recrawl"`
	Pages           int    `json:"pages"`
	SeriesPages     int    `json:"series_pages"`
	SpeakerPages    int    `json:"speaker_pages"`
	TalksCreated    int    `json:"talks_created"`
	TalksUpdated    int    `json:"talks_updated"`
	SpeakersCreated int    `json:"speakers_created"`
	SpeakersUpdated int    `json:"speakers_updated"`
	SpeakersReused  int    `json:"speakers_reused"`
	ItemsSkipped    int    `json:"items_skipped"`
	Reason          Reason `json:"reason"`
	Error           string `json:"error,omitempty"`
}

// RunStatus represents the lifecycle state of a queued crawl run.
type RunStatus string

// Run status values. Terminal runs carry their Reason as status.
const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
)

// RunRequest asks for one crawl of a source.
type RunRequest struct {
	Source    string `json:"source"`
	Recrawl   bool   `json:"recrawl"`
	StartPage int    `json:"start_page,omitempty"`
}

// Run is the metadata kept for each crawl submitted through the API.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Request   RunRequest `json:"request"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	Summary   *Summary   `json:"summary,omitempty"`
}
