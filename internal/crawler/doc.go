// Package crawler defines the catalog domain shared by every subsystem: the
// Talk and Speaker entities, the collaborator interfaces consumed by the crawl
// controller (fetchers, sources, stores, sequence counters), and the error
// taxonomy used to decide whether a failure skips an item or aborts a run.
package crawler
