package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/talk-catalog-crawler/internal/storage/memory"
)

type stubFetcher struct {
	body []byte
	err  error
}

func (s stubFetcher) Fetch(_ context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if s.err != nil {
		return crawler.FetchResponse{}, s.err
	}
	return crawler.FetchResponse{URL: request.URL, StatusCode: 200, Body: s.body}, nil
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestFetcherArchivesBody(t *testing.T) {
	t.Parallel()
	blobs := memory.NewBlobStore()
	hasher := sha256.New()
	body := []byte("<html>listing</html>")
	f := NewFetcher(stubFetcher{body: body}, blobs, hasher, zaptest.NewLogger(t))

	request := crawler.FetchRequest{URL: "http://audiodharma.org/talks/?page=1", Kind: crawler.PageListing}
	resp, err := f.Fetch(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, body, resp.Body)

	digest, err := hasher.Hash(body)
	require.NoError(t, err)
	stored, ok := blobs.Object("listing/audiodharma.org/" + digest + ".html")
	require.True(t, ok)
	require.Equal(t, body, stored)
}

func TestFetcherPassesFetchErrors(t *testing.T) {
	t.Parallel()
	blobs := memory.NewBlobStore()
	f := NewFetcher(stubFetcher{err: crawler.ErrFetch}, blobs, sha256.New(), zaptest.NewLogger(t))

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "http://x.test/"})
	require.ErrorIs(t, err, crawler.ErrFetch)
	require.Empty(t, blobs.Paths())
}

func TestFetcherIgnoresArchiveFailures(t *testing.T) {
	t.Parallel()
	f := NewFetcher(stubFetcher{body: []byte("ok")}, failingBlobs{}, sha256.New(), zaptest.NewLogger(t))

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "http://x.test/"})
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
}

func TestObjectPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		request crawler.FetchRequest
		want    string
	}{
		{"speaker", crawler.FetchRequest{URL: "http://audiodharma.org/teacher/1/", Kind: crawler.PageSpeaker}, "speaker/audiodharma.org/d.html"},
		{"no kind", crawler.FetchRequest{URL: "https://site.test/a"}, "page/site.test/d.html"},
		{"bad url", crawler.FetchRequest{URL: "::", Kind: crawler.PageSeries}, "series/unknown/d.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ObjectPath(tt.request, "d"))
		})
	}
}
