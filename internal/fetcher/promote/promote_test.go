package promote

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	longListing := `<table class="talklist">` + strings.Repeat(`<tr><td class="talk_title">A talk</td></tr>`, 100) + `</table>`
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"empty body", 200, "  \n", true},
		{"next shell", 200, `<div id="__next"></div>`, true},
		{"react root", 200, `<div data-reactroot=""><p>x</p></div>`, true},
		{"empty app mount", 200, `<body><div id="app"></div></body>`, true},
		{"script heavy small page", 200, `<html><script>var a=1;var b=2;</script><p>t</p></html>`, true},
		{"static listing", 200, longListing, false},
		{"small static page", 200, `<p>No matching talks are available.</p>`, false},
		{"not found", 404, "", false},
	}
	h := NewHeuristic(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := h.ShouldPromote(crawler.FetchResponse{StatusCode: tt.status, Body: []byte(tt.body)})
			require.Equal(t, tt.want, got)
		})
	}
}

type stubFetcher struct {
	resp  crawler.FetchResponse
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	s.calls++
	return s.resp, s.err
}

func TestFetcherKeepsStaticPages(t *testing.T) {
	t.Parallel()
	fast := &stubFetcher{resp: crawler.FetchResponse{StatusCode: 200, Body: []byte(`<p>No matching talks are available.</p>`)}}
	headless := &stubFetcher{}
	f := NewFetcher(fast, headless, NewHeuristic(0), zaptest.NewLogger(t))

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "http://site.test/"})
	require.NoError(t, err)
	require.False(t, resp.UsedHeadless)
	require.Zero(t, headless.calls)
}

func TestFetcherPromotesShells(t *testing.T) {
	t.Parallel()
	fast := &stubFetcher{resp: crawler.FetchResponse{StatusCode: 200, Body: []byte(`<div id="__next"></div>`)}}
	headless := &stubFetcher{resp: crawler.FetchResponse{StatusCode: 200, Body: []byte(`<table class="talklist"></table>`)}}
	f := NewFetcher(fast, headless, NewHeuristic(0), zaptest.NewLogger(t))

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "http://site.test/"})
	require.NoError(t, err)
	require.True(t, resp.UsedHeadless)
	require.Contains(t, string(resp.Body), "talklist")
}

func TestFetcherErrors(t *testing.T) {
	t.Parallel()
	fastErr := &stubFetcher{err: crawler.ErrFetch}
	f := NewFetcher(fastErr, &stubFetcher{}, NewHeuristic(0), nil)
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "http://site.test/"})
	require.ErrorIs(t, err, crawler.ErrFetch)

	shell := &stubFetcher{resp: crawler.FetchResponse{StatusCode: 200}}
	f = NewFetcher(shell, &stubFetcher{err: errors.New("chrome crashed")}, NewHeuristic(0), nil)
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "http://site.test/"})
	require.ErrorContains(t, err, "chrome crashed")
}
