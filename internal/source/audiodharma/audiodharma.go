// Package audiodharma extracts talks and speakers from audiodharma.org.
package audiodharma

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// Name is the registry key for this source.
const Name = "audiodharma"

const (
	baseDomain = "http://audiodharma.org"
	venue      = "Insight Meditation Centre, Redwood, California"
	license    = "http://creativecommons.org/licenses/by-nc-nd/3.0/"

	noMoreTalks = "No matching talks are available"
	seriesLabel = "View Series"
)

// Source implements crawler.Source for audiodharma.org.
type Source struct {
	base string
}

// New returns the audiodharma source. An empty base uses the live site.
func New(base string) *Source {
	if base == "" {
		base = baseDomain
	}
	return &Source{base: strings.TrimRight(base, "/")}
}

// Name returns the registry key.
func (s *Source) Name() string { return Name }

// BaseURL returns the domain relative links are resolved against.
func (s *Source) BaseURL() string { return s.base }

// ListingURL returns the paginated talk listing.
func (s *Source) ListingURL(page int) string {
	return fmt.Sprintf("%s/talks/?page=%d", s.base, page)
}

// ParseListing reads a listing or series page.
func (s *Source) ParseListing(body []byte) (crawler.Listing, error) {
	if bytes.Contains(body, []byte(noMoreTalks)) {
		return crawler.Listing{Exhausted: true}, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("%w: parse listing html: %w", crawler.ErrExtraction, err)
	}

	rows := doc.Find(".talklist tr")
	if rows.First().Find("th").Length() > 0 {
		rows = rows.Slice(1, goquery.ToEnd)
	}
	if rows.Length() == 0 {
		return crawler.Listing{Exhausted: true}, nil
	}

	items := make([]crawler.Item, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		items = append(items, listingRow{source: s, sel: row})
	})
	return crawler.Listing{Items: items}, nil
}

// ParseSpeaker reads a teacher page. name is the display name from the
// listing row and is kept regardless of what the page shows.
func (s *Source) ParseSpeaker(body []byte, name string) (crawler.Speaker, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Speaker{}, fmt.Errorf("%w: parse speaker html: %w", crawler.ErrExtraction, err)
	}
	table := doc.Find(".teacher_bio_table").First()
	if table.Length() == 0 {
		return crawler.Speaker{}, fmt.Errorf("%w: .teacher_bio_table missing for %q", crawler.ErrExtraction, name)
	}

	website, _ := table.Parent().Find("div + table + div a").First().Attr("href")
	picture, _ := table.Find(".teacher_photo img").First().Attr("src")
	return crawler.Speaker{
		Name:    name,
		Bio:     crawler.CleanText(table.Find(".teacher_bio").First().Text()),
		Website: strings.TrimSpace(website),
		Picture: strings.TrimSpace(picture),
	}, nil
}

// listingRow is one <tr> of the talk list.
type listingRow struct {
	source *Source
	sel    *goquery.Selection
}

func (r listingRow) SeriesURL() (string, bool) {
	link := r.sel.Find("td + td + td + td a").First()
	if link.Length() == 0 || strings.TrimSpace(link.Text()) != seriesLabel {
		return "", false
	}
	href, ok := link.Attr("href")
	href = strings.TrimSpace(href)
	return href, ok && href != ""
}

func (r listingRow) Speaker() (crawler.SpeakerRef, error) {
	teacher := r.sel.Find(".talk_teacher").First()
	name := strings.TrimSpace(teacher.Text())
	if name == "" {
		return crawler.SpeakerRef{}, fmt.Errorf("%w: .talk_teacher empty", crawler.ErrExtraction)
	}
	href, _ := teacher.Find("a").First().Attr("href")
	return crawler.SpeakerRef{Name: name, URL: strings.TrimSpace(href)}, nil
}

func (r listingRow) Permalink() (string, error) {
	permalink, ok := r.sel.Find(".talk_links a").First().Attr("href")
	permalink = strings.TrimSpace(permalink)
	if !ok || permalink == "" {
		return "", fmt.Errorf("%w: .talk_links permalink missing", crawler.ErrExtraction)
	}
	return permalink, nil
}

func (r listingRow) Talk() (crawler.Talk, error) {
	talk := crawler.Talk{
		Title:   strings.TrimSpace(r.sel.Find(".talk_title").First().Text()),
		Date:    strings.TrimSpace(r.sel.Find(".talk_date").First().Text()),
		Venue:   venue,
		Source:  r.source.base,
		License: license,
	}
	var problems []error
	if length := strings.TrimSpace(r.sel.Find(".talk_length").First().Text()); length != "" {
		seconds, err := crawler.ColonTimeToSeconds(length)
		if err != nil {
			problems = append(problems, err)
		}
		talk.Duration = seconds
	}
	if description, ok := r.sel.Find(".the_talk_description").First().Attr("title"); ok {
		talk.Description = crawler.CleanText(description)
	}
	return talk, errors.Join(problems...)
}
