// Package chain resolves market identifiers to the chain they live on.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
)

// Router maps market ids to destination chain ids. Lookups never
// fail: a market missing from the registry resolves to a
// deterministically derived id so routing can't block on an
// incomplete registry. Derived resolutions are logged with
// fallback=true so they stand out in telemetry.
type Router struct {
	mu       sync.RWMutex
	registry map[string]string
	logger   *slog.Logger
}

func NewRouter(l *slog.Logger) *Router {
	return &Router{
		registry: make(map[string]string),
		logger:   l.With("component", "chain_router"),
	}
}

// Register records the chain a market lives on, replacing any earlier
// mapping.
func (r *Router) Register(marketID, chainID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[marketID] = chainID
}

// RegisterAll merges a market->chain mapping into the registry.
func (r *Router) RegisterAll(mapping map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for marketID, chainID := range mapping {
		r.registry[marketID] = chainID
	}
}

// Known reports whether a market has a registered chain.
func (r *Router) Known(marketID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registry[marketID]
	return ok
}

// Len returns the number of registered markets.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registry)
}

// Resolve returns the destination chain id for a market.
func (r *Router) Resolve(marketID string) string {
	r.mu.RLock()
	chainID, ok := r.registry[marketID]
	r.mu.RUnlock()

	if ok {
		return chainID
	}

	derived := DeriveChainID(marketID)
	r.logger.Warn("market not in registry, using derived chain id",
		"market_id", marketID, "chain_id", derived, "fallback", true)
	return derived
}

// DeriveChainID computes the documented fallback identifier for a
// market: the first 32 hex chars of sha256("market:" + marketID).
func DeriveChainID(marketID string) string {
	sum := sha256.Sum256([]byte("market:" + marketID))
	return hex.EncodeToString(sum[:])[:32]
}
