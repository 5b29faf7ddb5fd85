// Package pow holds the proof of work hash functions a network can mine with.
package pow

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/sha3"
)

// Hasher computes the proof of work digest of a serialized block. It is
// called once per nonce, so implementations should not allocate.
type Hasher interface {
	Hash(data []byte) chainhash.Hash
	Name() string
}

const (
	AlgoSha256d  = "sha256d"
	AlgoSha3     = "sha3"
	AlgoVerthash = "verthash"
)

// Sha256d is double SHA-256.
type Sha256d struct{}

func (Sha256d) Hash(data []byte) chainhash.Hash {
	return chainhash.DoubleHashH(data)
}

func (Sha256d) Name() string { return AlgoSha256d }

// Sha3 is a single round of SHA3-256.
type Sha3 struct{}

func (Sha3) Hash(data []byte) chainhash.Hash {
	return chainhash.Hash(sha3.Sum256(data))
}

func (Sha3) Name() string { return AlgoSha3 }

// New returns the hasher for algo. datFile is only used by verthash.
func New(algo, datFile string) (Hasher, error) {
	switch strings.ToLower(algo) {
	case "", AlgoSha256d:
		return Sha256d{}, nil
	case AlgoSha3:
		return Sha3{}, nil
	case AlgoVerthash:
		return NewVerthash(datFile, false)
	default:
		return nil, fmt.Errorf("unknown pow algorithm %q", algo)
	}
}
