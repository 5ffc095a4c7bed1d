// Package promote retries pages through a headless browser when a plain
// HTTP fetch returned a shell that only renders with JavaScript.
package promote

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

const defaultSmallBody = 2048

// spaMarkers identify client-rendered application shells.
var spaMarkers = []string{
	"#__next",
	"#root:empty",
	"#app:empty",
	"[data-reactroot]",
	"[ng-app]",
}

// Heuristic decides whether a response needs a headless render.
type Heuristic struct {
	// SmallBody is the size below which a script-heavy page is promoted.
	SmallBody int
}

// NewHeuristic creates a Heuristic; a zero smallBody uses 2 KiB.
func NewHeuristic(smallBody int) *Heuristic {
	if smallBody <= 0 {
		smallBody = defaultSmallBody
	}
	return &Heuristic{SmallBody: smallBody}
}

// ShouldPromote reports whether resp looks like a JavaScript shell.
// Non-200 responses are never promoted.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != 200 {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}
	for _, marker := range spaMarkers {
		if doc.Find(marker).Length() > 0 {
			return true
		}
	}
	return len(resp.Body) < h.SmallBody && scriptShare(doc, len(resp.Body)) >= 25
}

// scriptShare is the percentage of the document occupied by inline scripts.
func scriptShare(doc *goquery.Document, total int) int {
	if total == 0 {
		return 0
	}
	scripts := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts += len(s.Text())
	})
	return scripts * 100 / total
}

// Detector is satisfied by Heuristic.
type Detector interface {
	ShouldPromote(resp crawler.FetchResponse) bool
}

// Fetcher tries fast first and falls back to headless for promoted pages.
type Fetcher struct {
	fast     crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewFetcher builds a promoting Fetcher.
func NewFetcher(fast, headless crawler.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{fast: fast, headless: headless, detector: detector, logger: logger}
}

// Fetch returns the fast response unless the detector promotes it.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.fast.Fetch(ctx, request)
	if err != nil {
		return resp, err
	}
	if !f.detector.ShouldPromote(resp) {
		return resp, nil
	}
	f.logger.Debug("promoting fetch to headless", zap.String("url", request.URL), zap.Int("bytes", len(resp.Body)))
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("headless fetch %s: %w", request.URL, err)
	}
	rendered.UsedHeadless = true
	return rendered, nil
}
