// Package session tracks the wallet connection identity and the
// authorization token stamped on outgoing requests.
package session

import (
	"context"
	"crypto"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// ErrUnauthenticated is returned when a request needs an active
// session and there is none. Requests issued after disconnect get
// this instead of a stale token.
var ErrUnauthenticated = errors.New("unauthenticated: no active session")

// Identity is what a provider strategy must obtain: an address, the
// user's origin chain, and a signer proving control of the address.
type Identity struct {
	Address string
	ChainID string
	Signer  crypto.Signer
}

// Provider is one wallet-connection strategy.
type Provider interface {
	Name() string
	Identity(ctx context.Context) (Identity, error)
}

// Network is the slice of the RPC boundary the session needs for its
// connect handshake.
type Network interface {
	RegisterUserChain(ctx context.Context, userChainID string) error
	Balance(ctx context.Context, chainID string) (decimal.Decimal, error)
}

// Session holds the connection state. All outgoing authenticated
// requests read their token from here.
type Session struct {
	network Network
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	status   Status
	identity Identity
	token    string
	balance  decimal.Decimal
}

func New(network Network, l *slog.Logger) *Session {
	return &Session{
		network: network,
		logger:  l.With("component", "session"),
		now:     time.Now,
		status:  StatusDisconnected,
	}
}

// Connect tries each provider in order until one yields an identity,
// registers the user chain with the registry, and fetches the
// starting balance. On any failure the session stays disconnected.
func (s *Session) Connect(ctx context.Context, providers ...Provider) error {
	s.mu.Lock()
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("connect from status %q", s.status)
	}
	s.status = StatusConnecting
	s.mu.Unlock()

	identity, err := s.obtainIdentity(ctx, providers)
	if err != nil {
		s.reset()
		return err
	}

	token, err := mintToken(identity, s.now())
	if err != nil {
		s.reset()
		return fmt.Errorf("couldn't mint auth token: %w", err)
	}

	// The token must be live before the registration call: the
	// registry mutation itself is authenticated.
	s.mu.Lock()
	s.identity = identity
	s.token = token
	s.status = StatusConnected
	s.mu.Unlock()

	if err := s.network.RegisterUserChain(ctx, identity.ChainID); err != nil {
		s.reset()
		return fmt.Errorf("couldn't register user chain: %w", err)
	}

	balance, err := s.network.Balance(ctx, identity.ChainID)
	if err != nil {
		s.reset()
		return fmt.Errorf("couldn't fetch balance: %w", err)
	}

	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()

	s.logger.Info("wallet connected", "address", identity.Address, "chain_id", identity.ChainID)
	return nil
}

func (s *Session) obtainIdentity(ctx context.Context, providers []Provider) (Identity, error) {
	if len(providers) == 0 {
		return Identity{}, fmt.Errorf("no identity providers configured")
	}

	var errs []error
	for _, p := range providers {
		identity, err := p.Identity(ctx)
		if err != nil {
			s.logger.Warn("identity provider failed", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if identity.ChainID == "" {
			errs = append(errs, fmt.Errorf("%s: identity has no chain id", p.Name()))
			continue
		}
		s.logger.Info("identity obtained", "provider", p.Name(), "address", identity.Address)
		return identity, nil
	}
	return Identity{}, fmt.Errorf("all identity providers failed: %w", errors.Join(errs...))
}

// Disconnect drops the identity and token. The session can connect
// again afterwards with a fresh identity.
func (s *Session) Disconnect() {
	s.mu.Lock()
	wasConnected := s.status == StatusConnected
	s.mu.Unlock()

	s.reset()
	if wasConnected {
		s.logger.Info("wallet disconnected")
	}
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusDisconnected
	s.identity = Identity{}
	s.token = ""
	s.balance = decimal.Zero
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AuthToken returns the current authorization token, or
// ErrUnauthenticated if there is no active session.
func (s *Session) AuthToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return "", ErrUnauthenticated
	}
	return s.token, nil
}

// OriginChain returns the connected wallet's chain id, or
// ErrUnauthenticated.
func (s *Session) OriginChain() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return "", ErrUnauthenticated
	}
	return s.identity.ChainID, nil
}

// Address returns the connected wallet's address, or empty if
// disconnected.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Address
}

// Balance returns the balance fetched at connect time or by the last
// refresh.
func (s *Session) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// RefreshBalance re-reads the balance from the service.
func (s *Session) RefreshBalance(ctx context.Context) (decimal.Decimal, error) {
	chainID, err := s.OriginChain()
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := s.network.Balance(ctx, chainID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("couldn't refresh balance: %w", err)
	}

	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()
	return balance, nil
}

// mintToken signs a time-bound claim with the identity's key. The
// service verifies the signature against the address.
func mintToken(id Identity, now time.Time) (string, error) {
	claim := fmt.Sprintf("oddstream:%s:%s:%d", id.Address, id.ChainID, now.Unix())
	if id.Signer == nil {
		return "", fmt.Errorf("identity has no signer")
	}

	sig, err := id.Signer.Sign(rand.Reader, []byte(claim), crypto.Hash(0))
	if err != nil {
		return "", fmt.Errorf("sign claim: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString([]byte(claim)) + "." +
		base64.RawURLEncoding.EncodeToString(sig), nil
}
