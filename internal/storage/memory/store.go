// Package memory provides in-process stores for development and testing.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// Store keeps talks, speakers and sequence counters in memory. It satisfies
// crawler.TalkStore, crawler.SpeakerStore and crawler.SequenceCounter.
type Store struct {
	mu       sync.RWMutex
	talks    map[string]crawler.Talk
	speakers map[string]crawler.Speaker
	counters map[string]int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		talks:    make(map[string]crawler.Talk),
		speakers: make(map[string]crawler.Speaker),
		counters: make(map[string]int64),
	}
}

// FindTalk looks a talk up by permalink.
func (s *Store) FindTalk(_ context.Context, permalink string) (crawler.Talk, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	talk, ok := s.talks[permalink]
	return cloneTalk(talk), ok, nil
}

// UpsertTalk writes a talk keyed by permalink.
func (s *Store) UpsertTalk(_ context.Context, talk crawler.Talk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.talks[talk.Permalink] = cloneTalk(talk)
	return nil
}

// FindSpeaker looks a speaker up by name.
func (s *Store) FindSpeaker(_ context.Context, name string) (crawler.Speaker, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	speaker, ok := s.speakers[name]
	return speaker, ok, nil
}

// UpsertSpeaker writes a speaker keyed by name.
func (s *Store) UpsertSpeaker(_ context.Context, speaker crawler.Speaker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakers[speaker.Name] = speaker
	return nil
}

// Increment atomically adds amount to the named counter and returns the new value.
func (s *Store) Increment(_ context.Context, sequence string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[sequence] += amount
	return s.counters[sequence], nil
}

// Talks returns a snapshot of every stored talk.
func (s *Store) Talks() []crawler.Talk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Talk, 0, len(s.talks))
	for _, talk := range s.talks {
		out = append(out, cloneTalk(talk))
	}
	return out
}

// Speakers returns a snapshot of every stored speaker.
func (s *Store) Speakers() []crawler.Speaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Speaker, 0, len(s.speakers))
	for _, speaker := range s.speakers {
		out = append(out, speaker)
	}
	return out
}

// Counter returns the current value of a sequence counter.
func (s *Store) Counter(sequence string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[sequence]
}

func cloneTalk(t crawler.Talk) crawler.Talk {
	if t.Event != nil {
		event := *t.Event
		t.Event = &event
	}
	return t
}
