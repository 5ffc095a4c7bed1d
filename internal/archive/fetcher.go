// Package archive keeps a copy of every fetched page in a blob store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// Fetcher archives each successful response from the wrapped fetcher.
// Archive failures are logged and never fail the fetch.
type Fetcher struct {
	next   crawler.Fetcher
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	logger *zap.Logger
}

// NewFetcher wraps next so page bodies land in blobs.
func NewFetcher(next crawler.Fetcher, blobs crawler.BlobStore, hasher crawler.Hasher, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, blobs: blobs, hasher: hasher, logger: logger}
}

// Fetch delegates and then stores the body under ObjectPath.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.next.Fetch(ctx, request)
	if err != nil {
		return resp, err
	}
	if err := f.store(ctx, request, resp); err != nil {
		f.logger.Warn("archive page failed", zap.String("url", request.URL), zap.Error(err))
	}
	return resp, nil
}

func (f *Fetcher) store(ctx context.Context, request crawler.FetchRequest, resp crawler.FetchResponse) error {
	digest, err := f.hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	path := ObjectPath(request, digest)
	uri, err := f.blobs.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	f.logger.Debug("page archived", zap.String("url", request.URL), zap.String("uri", uri))
	return nil
}

// ObjectPath names an archived page as <kind>/<host>/<digest>.html. Identical
// bodies share one object.
func ObjectPath(request crawler.FetchRequest, digest string) string {
	host := "unknown"
	if u, err := url.Parse(request.URL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	kind := string(request.Kind)
	if kind == "" {
		kind = "page"
	}
	return fmt.Sprintf("%s/%s/%s.html", kind, host, digest)
}
