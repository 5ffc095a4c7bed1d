// Package dharmaseed extracts talks and speakers from dharmaseed.org.
//
// Each talk on a listing page is its own table inside .talklist. The first
// row carries the date, teacher, title, length and download link; the
// following rows carry the description (which opens with the venue) and,
// for retreat recordings, the series the talk belongs to.
package dharmaseed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// Name is the registry key for this source.
const Name = "dharmaseed"

const (
	baseDomain = "http://dharmaseed.org"
	license    = "http://creativecommons.org/licenses/by-nc-nd/4.0/"
	dateLayout = "2006-01-02"
)

// dateLayouts are the forms the listing has used for talk dates.
var dateLayouts = []string{dateLayout, "2006/01/02", "Jan 2, 2006", "January 2, 2006"}

// Source implements crawler.Source for dharmaseed.org.
type Source struct {
	base string
}

// New returns the dharmaseed source. An empty base uses the live site.
func New(base string) *Source {
	if base == "" {
		base = baseDomain
	}
	return &Source{base: strings.TrimRight(base, "/")}
}

func (s *Source) Name() string    { return Name }
func (s *Source) BaseURL() string { return s.base }

func (s *Source) ListingURL(page int) string {
	return fmt.Sprintf("%s/talks/?page=%d", s.base, page)
}

// ParseListing reads a listing page. A page without talk tables means the
// listing has run out.
func (s *Source) ParseListing(body []byte) (crawler.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("%w: parse listing html: %w", crawler.ErrExtraction, err)
	}
	tables := doc.Find(".talklist table")
	if tables.Length() == 0 {
		return crawler.Listing{Exhausted: true}, nil
	}

	items := make([]crawler.Item, 0, tables.Length())
	tables.Each(func(_ int, table *goquery.Selection) {
		items = append(items, isolateRows(s, table))
	})
	return crawler.Listing{Items: items}, nil
}

// ParseSpeaker reads a teacher page. The listing's name is kept.
func (s *Source) ParseSpeaker(body []byte, name string) (crawler.Speaker, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Speaker{}, fmt.Errorf("%w: parse speaker html: %w", crawler.ErrExtraction, err)
	}
	profile := doc.Find(".teacher-profile").First()
	if profile.Length() == 0 {
		return crawler.Speaker{}, fmt.Errorf("%w: .teacher-profile missing for %q", crawler.ErrExtraction, name)
	}

	speaker := crawler.Speaker{
		Name: name,
		Bio:  crawler.CleanText(profile.Find(".teacher-bio").First().Text()),
	}
	if href, ok := profile.Find("a.teacher-website").First().Attr("href"); ok {
		speaker.Website = strings.TrimSpace(href)
	}
	if src, ok := profile.Find("img.teacher-photo").First().Attr("src"); ok {
		if picture, err := crawler.ResolveURL(s.base, src); err == nil {
			speaker.Picture = picture
		}
	}
	return speaker, nil
}

// talkTable is one talk's table split into its heading row and the rows
// below it.
type talkTable struct {
	source  *Source
	heading *goquery.Selection
	details *goquery.Selection
}

func isolateRows(s *Source, table *goquery.Selection) talkTable {
	rows := table.Find("tr")
	return talkTable{
		source:  s,
		heading: rows.First(),
		details: rows.Slice(1, goquery.ToEnd),
	}
}

// SeriesURL is always false: retreat talks are listed individually and
// carry their series as the talk's event.
func (t talkTable) SeriesURL() (string, bool) { return "", false }

func (t talkTable) Speaker() (crawler.SpeakerRef, error) {
	link := t.heading.Find("a.talkteacher").First()
	name := strings.TrimSpace(link.Text())
	if name == "" {
		return crawler.SpeakerRef{}, fmt.Errorf("%w: .talkteacher empty", crawler.ErrExtraction)
	}
	href, _ := link.Attr("href")
	return crawler.SpeakerRef{Name: name, URL: strings.TrimSpace(href)}, nil
}

func (t talkTable) Permalink() (string, error) {
	href, _ := t.heading.Find("a.talkdownload").First().Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: .talkdownload link missing", crawler.ErrExtraction)
	}
	return href, nil
}

func (t talkTable) Talk() (crawler.Talk, error) {
	talk := crawler.Talk{
		Title:       strings.TrimSpace(t.heading.Find(".talktitle").First().Text()),
		Description: crawler.CleanText(t.details.Find(".talkdescription").First().Text()),
		Venue:       strings.TrimSpace(t.details.Find(".talkvenue").First().Text()),
		Source:      t.source.base,
		License:     license,
	}
	if series := strings.TrimSpace(t.details.Find(".talkseries a").First().Text()); series != "" {
		talk.Event = &series
	}

	var problems []error
	if length := strings.TrimSpace(t.heading.Find(".talklength").First().Text()); length != "" {
		seconds, err := crawler.ColonTimeToSeconds(length)
		if err != nil {
			problems = append(problems, err)
		}
		talk.Duration = seconds
	}
	if raw := crawler.CleanText(t.heading.Find(".talkdate").First().Text()); raw != "" {
		date, err := normalizeDate(raw)
		if err != nil {
			problems = append(problems, err)
		}
		talk.Date = date
	}
	return talk, errors.Join(problems...)
}

func normalizeDate(raw string) (string, error) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: date %q not recognized", crawler.ErrExtraction, raw)
}
