package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockVersion is the only block format this codec understands.
const BlockVersion uint32 = 1

// Header layout. Integers are little endian; the target is stored as a
// big-endian 256-bit number.
const (
	offsetVersion   = 0
	offsetPrevBlock = 4
	offsetTimestamp = 36
	offsetTarget    = 44
	offsetNonce     = 76

	// HeaderSize is the fixed size of the block header in bytes.
	HeaderSize = 84

	// TargetSize is the width of the difficulty target in bytes.
	TargetSize = 32
)

const (
	MaxBlockTxs = 100000
	MaxTxSize   = 1 << 20
)

// ErrEncoding is returned (wrapped) for every malformed field the codec
// refuses to encode or decode.
var ErrEncoding = errors.New("encoding error")

func encodingError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}

// Target is the threshold a block hash must be numerically below.
type Target [TargetSize]byte

// MaxTarget is the all-ones target, satisfied by every hash but the all-ones hash.
var MaxTarget = func() Target {
	var t Target
	for i := range t {
		t[i] = 0xff
	}
	return t
}()

// NewTarget left-pads b to the target width. Longer inputs are rejected.
func NewTarget(b []byte) (Target, error) {
	var t Target
	if len(b) > TargetSize {
		return t, encodingError("target is %d bytes, max %d", len(b), TargetSize)
	}
	copy(t[TargetSize-len(b):], b)
	return t, nil
}

// TargetFromBig converts a non-negative integer into a Target.
func TargetFromBig(n *big.Int) (Target, error) {
	if n.Sign() < 0 {
		return Target{}, encodingError("negative target")
	}
	return NewTarget(n.Bytes())
}

func (t Target) Big() *big.Int {
	return new(big.Int).SetBytes(t[:])
}

func (t Target) String() string {
	return hex.EncodeToString(t[:])
}

func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Target) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return encodingError("invalid target hex: %v", err)
	}
	nt, err := NewTarget(b)
	if err != nil {
		return err
	}
	*t = nt
	return nil
}

// Prefix returns the hex of the first n bytes, for log lines.
func (t Target) Prefix(n int) string {
	if n > TargetSize {
		n = TargetSize
	}
	return hex.EncodeToString(t[:n])
}

// Meets reports whether digest is strictly below the target when both are
// read as big-endian integers.
func (t *Target) Meets(digest *chainhash.Hash) bool {
	return bytes.Compare(digest[:], t[:]) < 0
}

type BlockHeader struct {
	Version   uint32
	PrevBlock chainhash.Hash
	Timestamp uint64
	Target    Target
	Nonce     uint64
}

func (h *BlockHeader) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[offsetVersion:], h.Version)
	copy(buf[offsetPrevBlock:offsetTimestamp], h.PrevBlock[:])
	binary.LittleEndian.PutUint64(buf[offsetTimestamp:], h.Timestamp)
	copy(buf[offsetTarget:offsetNonce], h.Target[:])
	binary.LittleEndian.PutUint64(buf[offsetNonce:], h.Nonce)
}

// MsgBlock is a block in its structured form. Transactions are carried as
// their encoded bytes; TxHashes holds the hash of each, in the same order,
// with the coinbase first.
type MsgBlock struct {
	BlockHeader
	Transactions [][]byte
	TxHashes     []chainhash.Hash
}

// Validate checks the shape invariants the codec relies on.
func (b *MsgBlock) Validate() error {
	if b.Version != BlockVersion {
		return encodingError("unsupported block version %d", b.Version)
	}
	if len(b.Transactions) == 0 {
		return encodingError("block has no coinbase transaction")
	}
	if len(b.Transactions) != len(b.TxHashes) {
		return encodingError("%d transactions but %d hashes", len(b.Transactions), len(b.TxHashes))
	}
	if len(b.Transactions) > MaxBlockTxs {
		return encodingError("%d transactions exceeds max %d", len(b.Transactions), MaxBlockTxs)
	}
	for i, tx := range b.Transactions {
		if len(tx) == 0 || len(tx) > MaxTxSize {
			return encodingError("transaction %d has invalid size %d", i, len(tx))
		}
	}
	return nil
}

// EncodeBlock serializes b. The hashed region of the result covers the
// header and the transaction hash list.
func EncodeBlock(b *MsgBlock) (*EncodedBlock, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	n := uint64(len(b.TxHashes))
	commit := HeaderSize + VarIntSize(n) + len(b.TxHashes)*chainhash.HashSize
	size := commit
	for _, tx := range b.Transactions {
		size += VarIntSize(uint64(len(tx))) + len(tx)
	}

	buf := make([]byte, HeaderSize, size)
	b.BlockHeader.put(buf)
	w := bytes.NewBuffer(buf)

	if err := WriteVarInt(w, n); err != nil {
		return nil, err
	}
	for i := range b.TxHashes {
		if err := WriteChainHash(w, &b.TxHashes[i]); err != nil {
			return nil, err
		}
	}
	for _, tx := range b.Transactions {
		if err := WriteVarBytes(w, tx); err != nil {
			return nil, err
		}
	}

	return &EncodedBlock{buf: w.Bytes(), commit: commit}, nil
}

// DecodeHeader reads only the fixed header from data.
func DecodeHeader(data []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(data) < HeaderSize {
		return h, encodingError("header needs %d bytes, have %d", HeaderSize, len(data))
	}
	h.Version = binary.LittleEndian.Uint32(data[offsetVersion:])
	copy(h.PrevBlock[:], data[offsetPrevBlock:offsetTimestamp])
	h.Timestamp = binary.LittleEndian.Uint64(data[offsetTimestamp:])
	copy(h.Target[:], data[offsetTarget:offsetNonce])
	h.Nonce = binary.LittleEndian.Uint64(data[offsetNonce:])
	return h, nil
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(data []byte) (*MsgBlock, error) {
	hdr, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data[HeaderSize:])
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, encodingError("failed on tx count: %v", err)
	}
	if count == 0 || count > MaxBlockTxs {
		return nil, encodingError("invalid tx count %d", count)
	}
	if uint64(r.Len()) < count*chainhash.HashSize {
		return nil, encodingError("tx hash list truncated")
	}

	blk := &MsgBlock{
		BlockHeader:  hdr,
		Transactions: make([][]byte, count),
		TxHashes:     make([]chainhash.Hash, count),
	}
	for i := range blk.TxHashes {
		if err := ReadChainHash(r, &blk.TxHashes[i]); err != nil {
			return nil, encodingError("failed on tx hash %d: %v", i, err)
		}
	}
	for i := range blk.Transactions {
		tx, err := ReadVarBytes(r, MaxTxSize, "transaction")
		if err != nil {
			return nil, err
		}
		blk.Transactions[i] = tx
	}
	if r.Len() != 0 {
		return nil, encodingError("%d trailing bytes after block", r.Len())
	}

	if err := blk.Validate(); err != nil {
		return nil, err
	}
	return blk, nil
}
