package crawler

import "errors"

// Failure classes. Wrap one of these with %w and test with errors.Is.
var (
	// ErrFetch reports a network or host failure fetching a page.
	ErrFetch = errors.New("fetch failed")
	// ErrExtraction reports an expected field or selector that is absent.
	ErrExtraction = errors.New("extraction failed")
	// ErrAllocationUnavailable reports that the central counter could not be reached.
	ErrAllocationUnavailable = errors.New("identity allocation unavailable")
	// ErrPersistence reports a store read or write failure.
	ErrPersistence = errors.New("persistence failed")
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrQueueClosed is returned by a Queue after shutdown began.
	ErrQueueClosed = errors.New("run queue closed")
)
