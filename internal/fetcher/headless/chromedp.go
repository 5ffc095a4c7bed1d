// Package headless renders catalog pages in headless Chrome so extractors
// see the DOM after scripts have run.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

const defaultTimeout = 45 * time.Second

// DefaultReadySelectors are the elements awaited per page kind before the
// DOM is captured. Kinds without an entry wait for body.
var DefaultReadySelectors = map[crawler.PageKind]string{
	crawler.PageListing: "body",
	crawler.PageSeries:  "body",
	crawler.PageSpeaker: "body",
}

// Config controls the renderer.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxTabs caps concurrently open tabs. Zero means one tab per caller.
	MaxTabs        int
	ReadySelectors map[crawler.PageKind]string
}

// Renderer implements crawler.Fetcher on a chromedp exec allocator. Each
// Fetch opens a fresh tab.
type Renderer struct {
	cfg       Config
	tabs      chan struct{}
	allocator context.Context
	shutdown  context.CancelFunc
}

// New prepares a renderer. Chrome itself is launched on the first Fetch.
func New(cfg Config) (*Renderer, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReadySelectors == nil {
		cfg.ReadySelectors = DefaultReadySelectors
	}
	r := &Renderer{cfg: cfg}
	if cfg.MaxTabs > 0 {
		r.tabs = make(chan struct{}, cfg.MaxTabs)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
	)
	r.allocator, r.shutdown = chromedp.NewExecAllocator(context.Background(), opts...)
	return r, nil
}

// Close stops the browser process.
func (r *Renderer) Close() {
	r.shutdown()
}

// Fetch renders request.URL and returns the outer HTML. Document statuses
// outside 2xx and 3xx are errors.
func (r *Renderer) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := r.openTab(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer r.closeTab()

	tabCtx, closeTab := chromedp.NewContext(r.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer cancel()
	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	var html, location string
	err := chromedp.Run(tabCtx,
		r.prepare(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(r.readySelector(request.Kind), chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	status, headers, url := doc.result()
	if url == "" {
		url = location
	}
	if url == "" {
		url = request.URL
	}
	if status >= http.StatusBadRequest {
		return crawler.FetchResponse{}, fmt.Errorf("render %s: status %d", url, status)
	}
	return crawler.FetchResponse{
		URL:          url,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (r *Renderer) readySelector(kind crawler.PageKind) string {
	if sel, ok := r.cfg.ReadySelectors[kind]; ok && sel != "" {
		return sel
	}
	return "body"
}

func (r *Renderer) prepare(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user agent: %w", err)
			}
		}
		if extra := toNetworkHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set headers: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) openTab(ctx context.Context) error {
	if r.tabs == nil {
		return nil
	}
	select {
	case r.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for browser tab: %w", ctx.Err())
	}
}

func (r *Renderer) closeTab() {
	if r.tabs != nil {
		<-r.tabs
	}
}

// documentResponse records the first document response of a navigation.
// Later documents (iframes, redirects already followed) are ignored.
type documentResponse struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) observe(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}
	d.seen = true
	d.status = int(event.Response.Status)
	d.url = event.Response.URL
	d.headers = fromNetworkHeaders(event.Response.Headers)
}

// result reports 200 when no document response was observed.
func (d *documentResponse) result() (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seen {
		return http.StatusOK, http.Header{}, ""
	}
	return d.status, d.headers.Clone(), d.url
}

func fromNetworkHeaders(src network.Headers) http.Header {
	dst := http.Header{}
	for key, value := range src {
		switch v := value.(type) {
		case string:
			dst.Add(key, v)
		case []any:
			for _, entry := range v {
				dst.Add(key, fmt.Sprint(entry))
			}
		default:
			dst.Add(key, fmt.Sprint(v))
		}
	}
	return dst
}

func toNetworkHeaders(src http.Header) network.Headers {
	dst := network.Headers{}
	for key, values := range src {
		switch len(values) {
		case 0:
		case 1:
			dst[key] = values[0]
		default:
			dst[key] = append([]string(nil), values...)
		}
	}
	return dst
}
