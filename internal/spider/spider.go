// Package spider implements the incremental crawl state machine. A run walks
// listing pages in order, recurses into series pages, resolves each speaker
// at most once, persists talks, and stops as soon as it meets a talk that is
// already stored (unless the run is a forced re-crawl).
package spider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/entity"
	"github.com/JakeFAU/talk-catalog-crawler/internal/metrics"
)

// Config controls a single run.
type Config struct {
	// Recrawl disables the stop-on-known-talk rule.
	Recrawl bool
	// StartPage is the first listing page to fetch. Defaults to 1.
	StartPage int
}

// Spider runs crawls of one source.
type Spider struct {
	source   crawler.Source
	fetcher  crawler.Fetcher
	talks    *entity.Collection[crawler.Talk]
	speakers *entity.Collection[crawler.Speaker]
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Spider.
func New(
	source crawler.Source,
	fetcher crawler.Fetcher,
	talks *entity.Collection[crawler.Talk],
	speakers *entity.Collection[crawler.Speaker],
	cfg Config,
	logger *zap.Logger,
) *Spider {
	if cfg.StartPage < 1 {
		cfg.StartPage = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Spider{
		source:   source,
		fetcher:  fetcher,
		talks:    talks,
		speakers: speakers,
		cfg:      cfg,
		logger:   logger,
	}
}

// session is the state owned by one run.
type session struct {
	page     int
	recrawl  bool
	speakers map[string]crawler.Speaker
	// series holds the series pages on the current recursion path.
	series   map[string]bool
	finished bool
	summary  crawler.Summary
}

func newSession(cfg Config, source string) *session {
	return &session{
		page:     cfg.StartPage,
		recrawl:  cfg.Recrawl,
		speakers: make(map[string]crawler.Speaker),
		series:   make(map[string]bool),
		summary:  crawler.Summary{Source: source, Recrawl: cfg.Recrawl},
	}
}

// Run crawls until the source is exhausted, a known talk is reached, or an
// error aborts the run. The summary is always returned; err is non-nil only
// for failed or canceled runs.
func (s *Spider) Run(ctx context.Context) (crawler.Summary, error) {
	sess := newSession(s.cfg, s.source.Name())
	s.logger.Info("crawl started",
		zap.Int("start_page", sess.page),
		zap.Bool("recrawl", sess.recrawl),
	)

	reason, err := s.crawl(ctx, sess)
	sess.summary.Reason = reason
	metrics.ObserveRun(s.source.Name(), string(reason))
	if err != nil {
		sess.summary.Error = err.Error()
		s.logger.Error("crawl aborted",
			zap.String("reason", string(reason)),
			zap.Int("page", sess.page),
			zap.Error(err),
		)
		return sess.summary, err
	}
	s.logger.Info("crawl completed",
		zap.String("reason", string(reason)),
		zap.Int("pages", sess.summary.Pages),
		zap.Int("talks_created", sess.summary.TalksCreated),
		zap.Int("talks_updated", sess.summary.TalksUpdated),
		zap.Int("speakers_created", sess.summary.SpeakersCreated),
		zap.Int("items_skipped", sess.summary.ItemsSkipped),
	)
	return sess.summary, nil
}

func (s *Spider) crawl(ctx context.Context, sess *session) (crawler.Reason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return crawler.ReasonCanceled, fmt.Errorf("crawl canceled: %w", err)
		}
		pageURL := s.source.ListingURL(sess.page)
		s.logger.Debug("fetching listing page", zap.Int("page", sess.page), zap.String("url", pageURL))

		body, err := s.fetch(ctx, pageURL, crawler.PageListing)
		if err != nil {
			return terminalReason(err), err
		}
		sess.summary.Pages++

		listing, err := s.source.ParseListing(body)
		if err != nil {
			return crawler.ReasonFailed, fmt.Errorf("parse listing page %d: %w", sess.page, err)
		}
		if listing.Exhausted {
			return crawler.ReasonExhausted, nil
		}
		if err := s.processItems(ctx, sess, listing.Items); err != nil {
			return terminalReason(err), err
		}
		if sess.finished {
			return crawler.ReasonFinished, nil
		}
		sess.page++
	}
}

// processItems handles listing rows in document order. Series pages are
// walked with the same logic before moving on to the next row.
func (s *Spider) processItems(ctx context.Context, sess *session, items []crawler.Item) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl canceled: %w", err)
		}
		if ref, ok := item.SeriesURL(); ok {
			if err := s.recurse(ctx, sess, ref); err != nil {
				return err
			}
		} else if err := s.processItem(ctx, sess, item); err != nil {
			return err
		}
		if sess.finished {
			return nil
		}
	}
	return nil
}

func (s *Spider) recurse(ctx context.Context, sess *session, ref string) error {
	seriesURL, err := crawler.ResolveURL(s.source.BaseURL(), ref)
	if err != nil {
		s.skip(sess, "unusable series link", zap.String("href", ref), zap.Error(err))
		return nil
	}
	if sess.series[seriesURL] {
		s.skip(sess, "series page links back to itself", zap.String("url", seriesURL))
		return nil
	}

	s.logger.Debug("entering series page", zap.String("url", seriesURL))
	body, err := s.fetch(ctx, seriesURL, crawler.PageSeries)
	if err != nil {
		return err
	}
	sess.summary.SeriesPages++

	listing, err := s.source.ParseListing(body)
	if err != nil {
		s.skip(sess, "series page could not be parsed", zap.String("url", seriesURL), zap.Error(err))
		return nil
	}

	sess.series[seriesURL] = true
	defer delete(sess.series, seriesURL)
	if err := s.processItems(ctx, sess, listing.Items); err != nil {
		return err
	}
	s.logger.Debug("exiting series page", zap.String("url", seriesURL))
	return nil
}

func (s *Spider) processItem(ctx context.Context, sess *session, item crawler.Item) error {
	speaker, ok, err := s.resolveSpeaker(ctx, sess, item)
	if err != nil || !ok {
		return err
	}
	return s.persistTalk(ctx, sess, item, speaker)
}

// resolveSpeaker returns ok=false when the item must be skipped.
func (s *Spider) resolveSpeaker(ctx context.Context, sess *session, item crawler.Item) (crawler.Speaker, bool, error) {
	ref, err := item.Speaker()
	name := strings.TrimSpace(ref.Name)
	if err != nil || name == "" {
		s.skip(sess, "speaker not found on listing row", zap.Error(err))
		return crawler.Speaker{}, false, nil
	}

	if cached, ok := sess.speakers[name]; ok {
		sess.summary.SpeakersReused++
		metrics.ObserveSpeaker(s.source.Name(), "reused")
		s.logger.Debug("speaker already resolved", zap.String("speaker", name))
		return cached, true, nil
	}

	detailURL, err := crawler.ResolveURL(s.source.BaseURL(), ref.URL)
	if err != nil {
		s.skip(sess, "speaker page link missing", zap.String("speaker", name), zap.Error(err))
		return crawler.Speaker{}, false, nil
	}
	body, err := s.fetch(ctx, detailURL, crawler.PageSpeaker)
	if err != nil {
		return crawler.Speaker{}, false, err
	}
	sess.summary.SpeakerPages++

	parsed, err := s.source.ParseSpeaker(body, name)
	if err != nil {
		s.skip(sess, "speaker page could not be parsed",
			zap.String("speaker", name),
			zap.String("url", detailURL),
			zap.Error(err),
		)
		return crawler.Speaker{}, false, nil
	}
	parsed.Name = name
	parsed.ID = 0

	stored, created, err := s.speakers.Upsert(ctx, parsed)
	if err != nil {
		return crawler.Speaker{}, false, fmt.Errorf("persist speaker %q: %w", name, err)
	}
	sess.speakers[name] = stored
	if created {
		sess.summary.SpeakersCreated++
		metrics.ObserveSpeaker(s.source.Name(), "created")
	} else {
		sess.summary.SpeakersUpdated++
		metrics.ObserveSpeaker(s.source.Name(), "updated")
	}
	return stored, true, nil
}

func (s *Spider) persistTalk(ctx context.Context, sess *session, item crawler.Item, speaker crawler.Speaker) error {
	href, err := item.Permalink()
	if err != nil {
		s.skip(sess, "talk permalink not found", zap.String("speaker", speaker.Name), zap.Error(err))
		return nil
	}
	permalink, err := crawler.ResolveURL(s.source.BaseURL(), href)
	if err != nil {
		s.skip(sess, "talk permalink unusable", zap.String("href", href), zap.Error(err))
		return nil
	}

	_, exists, err := s.talks.Find(ctx, permalink)
	if err != nil {
		return err
	}
	if exists && !sess.recrawl {
		sess.finished = true
		s.logger.Info("found existing talk, ending crawl", zap.String("permalink", permalink))
		return nil
	}

	talk, err := item.Talk()
	if err != nil {
		s.logger.Warn("talk fields incomplete",
			zap.String("permalink", permalink),
			zap.Int("page", sess.page),
			zap.Error(err),
		)
	}
	talk.Permalink = permalink
	talk.ID = 0
	talk.SpeakerID = speaker.ID
	stored, created, err := s.talks.Upsert(ctx, talk)
	if err != nil {
		return fmt.Errorf("persist talk %q: %w", permalink, err)
	}
	if created {
		sess.summary.TalksCreated++
		metrics.ObserveTalk(s.source.Name(), "created")
	} else {
		sess.summary.TalksUpdated++
		metrics.ObserveTalk(s.source.Name(), "updated")
	}
	s.logger.Debug("talk stored",
		zap.Int64("id", stored.ID),
		zap.String("title", stored.Title),
		zap.Bool("created", created),
	)
	return nil
}

func (s *Spider) fetch(ctx context.Context, pageURL string, kind crawler.PageKind) ([]byte, error) {
	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: pageURL, Kind: kind})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s page %s: %w", kind, pageURL, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s page %s: %w", crawler.ErrFetch, kind, pageURL, err)
	}
	metrics.ObservePage(s.source.Name(), string(kind))
	return resp.Body, nil
}

func (s *Spider) skip(sess *session, msg string, fields ...zap.Field) {
	sess.summary.ItemsSkipped++
	metrics.ObserveTalk(s.source.Name(), "skipped")
	s.logger.Warn(msg, append(fields, zap.Int("page", sess.page))...)
}

func terminalReason(err error) crawler.Reason {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return crawler.ReasonCanceled
	}
	return crawler.ReasonFailed
}
