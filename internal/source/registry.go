// Package source maps source names to their extractors.
package source

import (
	"errors"
	"fmt"
	"sort"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/source/audiodharma"
	"github.com/JakeFAU/talk-catalog-crawler/internal/source/dharmaseed"
)

// ErrUnknown is returned by Lookup for names that are not registered.
var ErrUnknown = errors.New("unknown source")

var registry = map[string]func() crawler.Source{
	audiodharma.Name: func() crawler.Source { return audiodharma.New("") },
	dharmaseed.Name:  func() crawler.Source { return dharmaseed.New("") },
}

// Lookup returns a fresh extractor for name.
func Lookup(name string) (crawler.Source, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return factory(), nil
}

// Names lists the registered sources in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
