package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	robotsAttempts    = 4
	robotsBaseBackoff = 250 * time.Millisecond
	permissiveRobots  = "User-agent: *\nAllow: /"
)

// robotsTransport retries robots.txt probes that time out. A host whose
// robots.txt never answers is treated as allowing everything; catalog pages
// pass straight through.
type robotsTransport struct {
	next    http.RoundTripper
	backoff func(attempt int) time.Duration
}

func newRobotsTransport(next http.RoundTripper) *robotsTransport {
	return &robotsTransport{next: next, backoff: exponentialBackoff}
}

func exponentialBackoff(attempt int) time.Duration {
	return robotsBaseBackoff << attempt
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.next.RoundTrip(req)
	}
	for attempt := 0; ; attempt++ {
		resp, err := t.next.RoundTrip(req.Clone(req.Context()))
		switch {
		case err == nil:
			return resp, nil
		case !timedOut(err):
			return nil, fmt.Errorf("robots probe %s: %w", req.URL.Host, err)
		case attempt == robotsAttempts-1:
			return permissive(req), nil
		}
		if err := wait(req.Context(), t.backoff(attempt)); err != nil {
			return nil, fmt.Errorf("robots probe %s: %w", req.URL.Host, err)
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func permissive(req *http.Request) *http.Response {
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(permissiveRobots)),
		ContentLength: int64(len(permissiveRobots)),
		Request:       req,
	}
}

func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
