package deployflow

import (
	"crypto/ecdsa"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Identity is a key-derived account able to sign transactions.
type Identity struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewIdentity derives a fresh secp256k1 identity from r.
//
// Candidate scalars are read 32 bytes at a time until one is a valid key, so
// a seeded reader always yields the same identity.
func NewIdentity(r io.Reader) (*Identity, error) {
	buf := make([]byte, 32)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("deployflow: read key material: %w", err)
		}
		key, err := crypto.ToECDSA(buf)
		if err != nil {
			continue
		}
		return IdentityFromKey(key), nil
	}
}

// IdentityFromKey wraps an existing private key.
func IdentityFromKey(key *ecdsa.PrivateKey) *Identity {
	return &Identity{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// IdentityFromHex parses a hex-encoded private key (with or without 0x).
func IdentityFromHex(hexKey string) (*Identity, error) {
	if len(hexKey) >= 2 && (hexKey[:2] == "0x" || hexKey[:2] == "0X") {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("deployflow: parse private key: %w", err)
	}
	return IdentityFromKey(key), nil
}
