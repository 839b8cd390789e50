package session

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyfileProvider derives the identity from a locally held ed25519
// key. The origin chain must already exist and be configured.
type KeyfileProvider struct {
	Key     ed25519.PrivateKey
	ChainID string
}

func (p KeyfileProvider) Name() string { return "keyfile" }

func (p KeyfileProvider) Identity(_ context.Context) (Identity, error) {
	if len(p.Key) != ed25519.PrivateKeySize {
		return Identity{}, fmt.Errorf("invalid ed25519 key length %d", len(p.Key))
	}
	if p.ChainID == "" {
		return Identity{}, fmt.Errorf("no chain id configured for keyfile identity")
	}

	return Identity{
		Address: DeriveAddress(p.Key.Public().(ed25519.PublicKey)),
		ChainID: p.ChainID,
		Signer:  p.Key,
	}, nil
}

// ChainClaimer is the faucet operation the faucet provider needs.
type ChainClaimer interface {
	ClaimChain(ctx context.Context, publicKey string) (string, error)
}

// FaucetProvider claims a fresh chain from the testnet faucet for a
// locally held key. Used to bootstrap a wallet that has no chain yet.
type FaucetProvider struct {
	Key    ed25519.PrivateKey
	Faucet ChainClaimer
}

func (p FaucetProvider) Name() string { return "faucet" }

func (p FaucetProvider) Identity(ctx context.Context) (Identity, error) {
	if len(p.Key) != ed25519.PrivateKeySize {
		return Identity{}, fmt.Errorf("invalid ed25519 key length %d", len(p.Key))
	}

	pub := p.Key.Public().(ed25519.PublicKey)
	chainID, err := p.Faucet.ClaimChain(ctx, hex.EncodeToString(pub))
	if err != nil {
		return Identity{}, fmt.Errorf("claim chain from faucet: %w", err)
	}

	return Identity{
		Address: DeriveAddress(pub),
		ChainID: chainID,
		Signer:  p.Key,
	}, nil
}

// DeriveAddress computes the wallet address for a public key: the
// first 40 hex chars of sha256(pubkey).
func DeriveAddress(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])[:40]
}
