// Package entity provides idempotent create/lookup/update of catalog entities
// keyed by their natural key. Opaque identities are assigned lazily, from the
// sequence allocator, the first time a key is persisted.
package entity

import (
	"context"
	"fmt"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// IdentityAllocator issues identities for a named sequence.
type IdentityAllocator interface {
	Next(ctx context.Context, sequence string) (int64, error)
}

type (
	findFunc[T any]   func(ctx context.Context, key string) (T, bool, error)
	upsertFunc[T any] func(ctx context.Context, doc T) error
)

// Collection persists one entity kind. Find-then-create is not atomic: two
// processes creating the same key concurrently may both allocate.
type Collection[T crawler.Document[T]] struct {
	name   string
	find   findFunc[T]
	upsert upsertFunc[T]
	ids    IdentityAllocator
}

// NewTalks returns the talk collection keyed by permalink.
func NewTalks(store crawler.TalkStore, ids IdentityAllocator) *Collection[crawler.Talk] {
	return &Collection[crawler.Talk]{
		name:   crawler.TalkCollection,
		find:   store.FindTalk,
		upsert: store.UpsertTalk,
		ids:    ids,
	}
}

// NewSpeakers returns the speaker collection keyed by name.
func NewSpeakers(store crawler.SpeakerStore, ids IdentityAllocator) *Collection[crawler.Speaker] {
	return &Collection[crawler.Speaker]{
		name:   crawler.SpeakerCollection,
		find:   store.FindSpeaker,
		upsert: store.UpsertSpeaker,
		ids:    ids,
	}
}

// Name returns the collection (and sequence) name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Find looks a document up by natural key without side effects.
func (c *Collection[T]) Find(ctx context.Context, key string) (T, bool, error) {
	doc, ok, err := c.find(ctx, key)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("%w: find %s %q: %w", crawler.ErrPersistence, c.name, key, err)
	}
	return doc, ok, nil
}

// FindOrCreate returns the stored document for doc's key unchanged, or
// persists doc under a freshly allocated identity. created reports which.
func (c *Collection[T]) FindOrCreate(ctx context.Context, doc T) (T, bool, error) {
	if doc.Key() == "" {
		return doc, false, fmt.Errorf("%s natural key is required", c.name)
	}
	existing, ok, err := c.Find(ctx, doc.Key())
	if err != nil {
		return doc, false, err
	}
	if ok {
		return existing, false, nil
	}
	stored, err := c.create(ctx, doc)
	if err != nil {
		return doc, false, err
	}
	return stored, true, nil
}

// Upsert overwrites the mutable fields of the document stored under doc's
// key, keeping its identity, or creates it when absent. created reports which.
func (c *Collection[T]) Upsert(ctx context.Context, doc T) (T, bool, error) {
	if doc.Key() == "" {
		return doc, false, fmt.Errorf("%s natural key is required", c.name)
	}
	existing, ok, err := c.Find(ctx, doc.Key())
	if err != nil {
		return doc, false, err
	}
	if !ok {
		stored, err := c.create(ctx, doc)
		if err != nil {
			return doc, false, err
		}
		return stored, true, nil
	}
	doc = doc.WithIdentity(existing.Identity())
	if err := c.persist(ctx, doc); err != nil {
		return doc, false, err
	}
	return doc, false, nil
}

func (c *Collection[T]) create(ctx context.Context, doc T) (T, error) {
	if doc.Identity() == 0 {
		id, err := c.ids.Next(ctx, c.name)
		if err != nil {
			return doc, fmt.Errorf("allocate %s identity for %q: %w", c.name, doc.Key(), err)
		}
		doc = doc.WithIdentity(id)
	}
	if err := c.persist(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (c *Collection[T]) persist(ctx context.Context, doc T) error {
	if err := c.upsert(ctx, doc); err != nil {
		return fmt.Errorf("%w: upsert %s %q: %w", crawler.ErrPersistence, c.name, doc.Key(), err)
	}
	return nil
}
