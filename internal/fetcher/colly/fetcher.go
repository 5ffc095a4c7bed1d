// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodyBytes caps a page body. Zero keeps colly's default.
	MaxBodyBytes int
}

// StatusError reports a page that answered outside 2xx.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Fetcher fetches listing, series, and speaker pages with a synchronous
// Colly collector. Each call clones the template so concurrent runs can
// share one Fetcher.
type Fetcher struct {
	cfg      Config
	template *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	template := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)
	if cfg.UserAgent != "" {
		template.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		template.MaxBodySize = cfg.MaxBodyBytes
	}
	template.IgnoreRobotsTxt = !cfg.RespectRobots
	template.SetRequestTimeout(cfg.Timeout)

	var transport http.RoundTripper = newTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport)
	}
	template.WithTransport(transport)
	return &Fetcher{cfg: cfg, template: template}
}

// visit collects the outcome of one page request.
type visit struct {
	start    time.Time
	response crawler.FetchResponse
	err      error
}

func (v *visit) onResponse(r *colly.Response) {
	v.response = crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    r.Headers.Clone(),
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(v.start),
	}
}

func (v *visit) onError(r *colly.Response, err error) {
	if r != nil && r.StatusCode != 0 {
		url := ""
		if r.Request != nil && r.Request.URL != nil {
			url = r.Request.URL.String()
		}
		v.err = fmt.Errorf("%w: %w", &StatusError{URL: url, Code: r.StatusCode}, err)
		return
	}
	v.err = err
}

// Fetch executes a single GET. Transport failures and non-2xx responses are
// returned as errors; a non-2xx error wraps *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	v := &visit{start: time.Now()}
	c := f.template.Clone()
	c.Context = ctx
	c.OnResponse(v.onResponse)
	c.OnError(v.onError)

	err := c.Request(http.MethodGet, request.URL, nil, colly.NewContext(), request.Headers.Clone())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctxErr)
	}
	if v.err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, v.err)
	}
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
	}
	return v.response, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
