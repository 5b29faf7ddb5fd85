package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/gm2017/hidecoin/pow"
)

// HeaderUpdate names the header fields that may be changed on a block that
// is already being mined. Nil fields are left alone. Applying any update
// resets the nonce to zero.
type HeaderUpdate struct {
	Timestamp *uint64
	Target    *Target
}

func (u HeaderUpdate) Empty() bool {
	return u.Timestamp == nil && u.Target == nil
}

// Apply writes the update into a structured header.
func (u HeaderUpdate) Apply(h *BlockHeader) {
	if u.Timestamp != nil {
		h.Timestamp = *u.Timestamp
	}
	if u.Target != nil {
		h.Target = *u.Target
	}
	h.Nonce = 0
}

// EncodedBlock owns the serialized form of a block and patches its header
// in place.
type EncodedBlock struct {
	buf    []byte
	commit int
}

// NewEncodedBlock wraps an already serialized block. Only the header and
// the hash list are checked; data is not copied.
func NewEncodedBlock(data []byte) (*EncodedBlock, error) {
	if len(data) < HeaderSize+1 {
		return nil, encodingError("block needs at least %d bytes, have %d", HeaderSize+1, len(data))
	}
	count, err := ReadVarInt(bytes.NewReader(data[HeaderSize:]))
	if err != nil {
		return nil, encodingError("failed on tx count: %v", err)
	}
	if count == 0 || count > MaxBlockTxs {
		return nil, encodingError("invalid tx count %d", count)
	}
	commit := HeaderSize + VarIntSize(count) + int(count)*chainhash.HashSize
	if commit > len(data) {
		return nil, encodingError("tx hash list truncated")
	}
	return &EncodedBlock{buf: data, commit: commit}, nil
}

// Bytes returns the underlying buffer. Callers that keep it past the next
// patch must copy it.
func (e *EncodedBlock) Bytes() []byte {
	return e.buf
}

func (e *EncodedBlock) Copy() []byte {
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out
}

func (e *EncodedBlock) Len() int {
	return len(e.buf)
}

func (e *EncodedBlock) Nonce() uint64 {
	return binary.LittleEndian.Uint64(e.buf[offsetNonce:])
}

// PutNonce rewrites only the nonce bytes.
func (e *EncodedBlock) PutNonce(nonce uint64) {
	binary.LittleEndian.PutUint64(e.buf[offsetNonce:], nonce)
}

func (e *EncodedBlock) Timestamp() uint64 {
	return binary.LittleEndian.Uint64(e.buf[offsetTimestamp:])
}

func (e *EncodedBlock) Target() Target {
	var t Target
	copy(t[:], e.buf[offsetTarget:offsetNonce])
	return t
}

func (e *EncodedBlock) PrevBlock() chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], e.buf[offsetPrevBlock:offsetTimestamp])
	return h
}

// Patch writes the named fields into the buffer and zeroes the nonce. The
// transaction section is never touched.
func (e *EncodedBlock) Patch(u HeaderUpdate) {
	if u.Timestamp != nil {
		binary.LittleEndian.PutUint64(e.buf[offsetTimestamp:], *u.Timestamp)
	}
	if u.Target != nil {
		copy(e.buf[offsetTarget:offsetNonce], u.Target[:])
	}
	e.PutNonce(0)
}

// Hash computes the proof of work digest over the header and tx hash list
// and reports whether it is below the target stored in the header.
func (e *EncodedBlock) Hash(h pow.Hasher) (chainhash.Hash, bool) {
	digest := h.Hash(e.buf[:e.commit])
	target := (*Target)(e.buf[offsetTarget:offsetNonce])
	return digest, target.Meets(&digest)
}
