// Package sequence issues unique, ascending integer identities per named
// sequence. Identities come from an atomic increment on a shared counter;
// each round-trip reserves a block that is served locally until it runs out.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/talk-catalog-crawler/internal/metrics"
)

// Config controls block reservation.
type Config struct {
	// BlockSize is the number of identities reserved per round-trip.
	BlockSize int64
	// CacheEnabled serves identities from the reserved block. When false
	// every call is a round-trip incrementing the counter by one.
	CacheEnabled bool
}

// Allocator hands out identities backed by a crawler.SequenceCounter.
// It is safe for concurrent use.
type Allocator struct {
	counter crawler.SequenceCounter
	cfg     Config
	logger  *zap.Logger

	mu     sync.Mutex
	blocks map[string]*reservation
}

// reservation is the unused tail of the last reserved block: next..last.
type reservation struct {
	mu   sync.Mutex
	next int64
	last int64
}

func (r *reservation) empty() bool {
	return r.next == 0 || r.next > r.last
}

// New builds an Allocator.
func New(counter crawler.SequenceCounter, cfg Config, logger *zap.Logger) (*Allocator, error) {
	if counter == nil {
		return nil, fmt.Errorf("sequence counter is required")
	}
	if cfg.BlockSize < 1 {
		return nil, fmt.Errorf("block size must be >= 1, got %d", cfg.BlockSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Allocator{
		counter: counter,
		cfg:     cfg,
		logger:  logger,
		blocks:  make(map[string]*reservation),
	}, nil
}

// Next returns an identity for sequence that has never been issued before.
// On failure the error wraps crawler.ErrAllocationUnavailable and the local
// cache is left untouched.
func (a *Allocator) Next(ctx context.Context, sequence string) (int64, error) {
	if !a.cfg.CacheEnabled {
		return a.increment(ctx, sequence, 1)
	}

	r := a.reservationFor(sequence)
	// Held across the round-trip so blocks are consumed in reservation order.
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.empty() {
		id := r.next
		r.next++
		metrics.ObserveSequenceCacheHit(sequence)
		return id, nil
	}

	last, err := a.increment(ctx, sequence, a.cfg.BlockSize)
	if err != nil {
		return 0, err
	}
	first := last - a.cfg.BlockSize + 1
	r.next = first + 1
	r.last = last
	a.logger.Debug("reserved identity block",
		zap.String("sequence", sequence),
		zap.Int64("first", first),
		zap.Int64("last", last),
	)
	return first, nil
}

// Pending reports how many reserved identities are cached for sequence.
func (a *Allocator) Pending(sequence string) int64 {
	r := a.reservationFor(sequence)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.empty() {
		return 0
	}
	return r.last - r.next + 1
}

func (a *Allocator) increment(ctx context.Context, sequence string, amount int64) (int64, error) {
	last, err := a.counter.Increment(ctx, sequence, amount)
	if err != nil {
		return 0, fmt.Errorf("%w: increment %q by %d: %w", crawler.ErrAllocationUnavailable, sequence, amount, err)
	}
	metrics.ObserveSequenceReservation(sequence)
	return last, nil
}

func (a *Allocator) reservationFor(sequence string) *reservation {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.blocks[sequence]
	if !ok {
		r = &reservation{}
		a.blocks[sequence] = r
	}
	return r
}
