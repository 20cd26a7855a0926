package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Nitefawkes/TenzikCore/errors"
)

// GenerateKey creates a fresh ed25519 signing key.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

// NodeID renders a public key as the hex node identifier used in
// receipts and events.
func NodeID(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// ParseNodeID decodes a hex node identifier back into a public key.
func ParseNodeID(id string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseReceipt, errors.KindInvalidData, err, "node id is not hex")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.InvalidInput(errors.PhaseReceipt,
			fmt.Sprintf("node id must be %d bytes, got %d", ed25519.PublicKeySize, len(raw)))
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeKey renders a private key as its hex seed, the on-disk format.
func EncodeKey(key ed25519.PrivateKey) string {
	return hex.EncodeToString(key.Seed())
}

// DecodeKey parses a hex seed or a hex full private key.
func DecodeKey(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseReceipt, errors.KindInvalidData, err, "key material is not hex")
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, errors.InvalidInput(errors.PhaseReceipt,
		fmt.Sprintf("key material must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw)))
}

// LoadKey reads a hex-encoded key file written by SaveKey.
func LoadKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseReceipt, errors.KindNotFound, err, "read key file")
	}
	return DecodeKey(string(raw))
}

// SaveKey writes the key's hex seed, readable only by the owner.
func SaveKey(path string, key ed25519.PrivateKey) error {
	if err := os.WriteFile(path, []byte(EncodeKey(key)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
