package spider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

const testBase = "http://site.test"

// fakeSite serves scripted pages and parses them back; each page body is its URL.
type fakeSite struct {
	mu        sync.Mutex
	listings  map[string]crawler.Listing
	speakers  map[string]crawler.Speaker
	badPages  map[string]bool
	fetchErrs map[string]error
	fetches   map[string]int
	order     []string
	onFetch   func(url string)
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		listings:  map[string]crawler.Listing{},
		speakers:  map[string]crawler.Speaker{},
		badPages:  map[string]bool{},
		fetchErrs: map[string]error{},
		fetches:   map[string]int{},
	}
}

func (f *fakeSite) Name() string    { return "fake" }
func (f *fakeSite) BaseURL() string { return testBase }

func (f *fakeSite) ListingURL(page int) string {
	return fmt.Sprintf("%s/talks/?page=%d", testBase, page)
}

func (f *fakeSite) ParseListing(body []byte) (crawler.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := string(body)
	if f.badPages[url] {
		return crawler.Listing{}, errors.New("malformed listing")
	}
	listing, ok := f.listings[url]
	if !ok {
		return crawler.Listing{Exhausted: true}, nil
	}
	return listing, nil
}

func (f *fakeSite) ParseSpeaker(body []byte, name string) (crawler.Speaker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	speaker, ok := f.speakers[string(body)]
	if !ok {
		return crawler.Speaker{}, fmt.Errorf("%w: bio table missing", crawler.ErrExtraction)
	}
	speaker.Name = name
	return speaker, nil
}

func (f *fakeSite) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.fetches[request.URL]++
	f.order = append(f.order, request.URL)
	fetchErr := f.fetchErrs[request.URL]
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(request.URL)
	}
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, fetchErr
	}
	return crawler.FetchResponse{URL: request.URL, StatusCode: 200, Body: []byte(request.URL)}, nil
}

func (f *fakeSite) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[url]
}

func (f *fakeSite) page(n int, items ...crawler.Item) {
	f.listings[f.ListingURL(n)] = crawler.Listing{Items: items}
}

func (f *fakeSite) series(path string, items ...crawler.Item) {
	f.listings[testBase+path] = crawler.Listing{Items: items}
}

func (f *fakeSite) speaker(path string, speaker crawler.Speaker) {
	f.speakers[testBase+path] = speaker
}

type fakeItem struct {
	seriesURL    string
	speaker      crawler.SpeakerRef
	speakerErr   error
	permalinkErr error
	talk         crawler.Talk
	talkErr      error
}

func (i fakeItem) SeriesURL() (string, bool) {
	return i.seriesURL, i.seriesURL != ""
}

func (i fakeItem) Speaker() (crawler.SpeakerRef, error) {
	return i.speaker, i.speakerErr
}

func (i fakeItem) Permalink() (string, error) {
	return i.talk.Permalink, i.permalinkErr
}

func (i fakeItem) Talk() (crawler.Talk, error) {
	talk := i.talk
	talk.Permalink = ""
	return talk, i.talkErr
}

func talkItem(speaker, permalink string) fakeItem {
	return fakeItem{
		speaker: crawler.SpeakerRef{Name: speaker, URL: "/teachers/" + speaker + "/"},
		talk:    crawler.Talk{Permalink: permalink, Title: "Talk " + permalink, Duration: 60, Source: testBase},
	}
}

func seriesItem(path string) fakeItem {
	return fakeItem{seriesURL: path}
}
