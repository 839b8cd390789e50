package config

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// Ed25519PrivateKey wraps ed25519.PrivateKey and implements
// yaml.Unmarshaler to decode from base64-encoded PEM. It holds the
// wallet identity key used by the keyfile provider.
type Ed25519PrivateKey struct {
	ed25519.PrivateKey
}

// UnmarshalYAML decodes a base64-encoded PEM ed25519 private key.
func (k *Ed25519PrivateKey) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var encoded string
	if err := unmarshal(&encoded); err != nil {
		return err
	}

	if encoded == "" {
		return nil
	}

	key, err := decodeEd25519PrivateKey(encoded)
	if err != nil {
		return fmt.Errorf("decode ed25519 private key: %w", err)
	}

	k.PrivateKey = key
	return nil
}

func decodeEd25519PrivateKey(encoded string) (ed25519.PrivateKey, error) {
	pemBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, ok := keyAny.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an ed25519 private key")
	}

	return key, nil
}
