package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
)

// The varint helpers all use protocol version 0; the compact size format
// does not change between versions.
const pver = 0

// ReadVarInt reads a compact size integer from the given reader.
func ReadVarInt(r io.Reader) (uint64, error) {
	return btcwire.ReadVarInt(r, pver)
}

// WriteVarInt writes a compact size integer to the given writer.
func WriteVarInt(w io.Writer, val uint64) error {
	return btcwire.WriteVarInt(w, pver, val)
}

// VarIntSize returns the number of bytes val occupies as a compact size integer.
func VarIntSize(val uint64) int {
	return btcwire.VarIntSerializeSize(val)
}

// ReadVarBytes reads a length prefixed byte slice, refusing anything longer
// than maxLen.
func ReadVarBytes(r io.Reader, maxLen uint32, field string) ([]byte, error) {
	b, err := btcwire.ReadVarBytes(r, pver, maxLen, field)
	if err != nil {
		return nil, fmt.Errorf("%w: failed on %s: %v", ErrEncoding, field, err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	return b, nil
}

// WriteVarBytes writes a length prefixed byte slice.
func WriteVarBytes(w io.Writer, b []byte) error {
	return btcwire.WriteVarBytes(w, pver, b)
}

// ReadChainHash reads a 32-byte hash from the reader.
func ReadChainHash(r io.Reader, h *chainhash.Hash) error {
	_, err := io.ReadFull(r, h[:])
	return err
}

// WriteChainHash writes a 32-byte hash to the writer.
func WriteChainHash(w io.Writer, h *chainhash.Hash) error {
	_, err := w.Write(h[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}
