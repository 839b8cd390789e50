// Package nonce serializes sequence-number retrieval per origin chain.
package nonce

import (
	"context"
	"fmt"
	"sync"
)

// Source fetches the current counter from the service. The service is
// the sole source of truth; no local counter is kept, so there is
// nothing to drift.
type Source interface {
	NextNonce(ctx context.Context, originChainID string) (uint64, error)
}

// Sequencer hands out nonces for origin chains. Retrieval for the
// same origin is serialized: two concurrently flushing batches must
// never be issued the same nonce, so each acquisition holds that
// origin's lock across the round-trip.
type Sequencer struct {
	source Source

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSequencer(source Source) *Sequencer {
	return &Sequencer{
		source: source,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Next returns the next valid nonce for an origin chain.
func (s *Sequencer) Next(ctx context.Context, originChainID string) (uint64, error) {
	if originChainID == "" {
		return 0, fmt.Errorf("origin chain id is empty")
	}

	lock := s.originLock(originChainID)
	lock.Lock()
	defer lock.Unlock()

	n, err := s.source.NextNonce(ctx, originChainID)
	if err != nil {
		return 0, fmt.Errorf("couldn't fetch nonce for origin %s: %w", originChainID, err)
	}
	return n, nil
}

func (s *Sequencer) originLock(originChainID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[originChainID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[originChainID] = lock
	}
	return lock
}
