package wire

import (
	"bytes"
	"errors"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	maxTxKeys    = 1024
	maxTxIO      = 10000
	maxScriptLen = 10000
)

// ErrCoinbaseTx is returned for a transaction without inputs anywhere but
// the first slot of a block.
var ErrCoinbaseTx = errors.New("coinbase transaction outside the first slot")

type TxIn struct {
	PrevTx    chainhash.Hash
	Index     uint32
	SigScript []byte
}

type TxOut struct {
	Value  uint64
	Script []byte
}

// MsgTx is a transaction record. A coinbase has no inputs and no keys.
type MsgTx struct {
	Time uint64
	Keys [][]byte
	Ins  []TxIn
	Outs []TxOut
}

func (tx *MsgTx) IsCoinbase() bool {
	return len(tx.Ins) == 0
}

// TotalOut sums the output values.
func (tx *MsgTx) TotalOut() uint64 {
	var sum uint64
	for _, o := range tx.Outs {
		sum += o.Value
	}
	return sum
}

func (tx *MsgTx) Serialize(w io.Writer) error {
	if len(tx.Keys) > maxTxKeys || len(tx.Ins) > maxTxIO || len(tx.Outs) > maxTxIO {
		return encodingError("transaction has too many keys, inputs or outputs")
	}
	if err := writeUint64(w, tx.Time); err != nil {
		return err
	}

	if err := WriteVarInt(w, uint64(len(tx.Keys))); err != nil {
		return err
	}
	for _, k := range tx.Keys {
		if err := WriteVarBytes(w, k); err != nil {
			return err
		}
	}

	if err := WriteVarInt(w, uint64(len(tx.Ins))); err != nil {
		return err
	}
	for i := range tx.Ins {
		in := &tx.Ins[i]
		if err := WriteChainHash(w, &in.PrevTx); err != nil {
			return err
		}
		if err := writeUint32(w, in.Index); err != nil {
			return err
		}
		if err := WriteVarBytes(w, in.SigScript); err != nil {
			return err
		}
	}

	if err := WriteVarInt(w, uint64(len(tx.Outs))); err != nil {
		return err
	}
	for _, out := range tx.Outs {
		if len(out.Script) > maxScriptLen {
			return encodingError("output script is %d bytes", len(out.Script))
		}
		if err := writeUint64(w, out.Value); err != nil {
			return err
		}
		if err := WriteVarBytes(w, out.Script); err != nil {
			return err
		}
	}
	return nil
}

func (tx *MsgTx) Deserialize(r io.Reader) error {
	var err error
	if tx.Time, err = readUint64(r); err != nil {
		return encodingError("failed on time: %v", err)
	}

	n, err := readCount(r, maxTxKeys, "keys")
	if err != nil {
		return err
	}
	tx.Keys = nil
	if n > 0 {
		tx.Keys = make([][]byte, n)
	}
	for i := range tx.Keys {
		if tx.Keys[i], err = ReadVarBytes(r, maxScriptLen, "key"); err != nil {
			return err
		}
	}

	if n, err = readCount(r, maxTxIO, "inputs"); err != nil {
		return err
	}
	tx.Ins = nil
	if n > 0 {
		tx.Ins = make([]TxIn, n)
	}
	for i := range tx.Ins {
		in := &tx.Ins[i]
		if err := ReadChainHash(r, &in.PrevTx); err != nil {
			return encodingError("failed on input %d: %v", i, err)
		}
		if in.Index, err = readUint32(r); err != nil {
			return encodingError("failed on input %d: %v", i, err)
		}
		if in.SigScript, err = ReadVarBytes(r, maxScriptLen, "sig script"); err != nil {
			return err
		}
	}

	if n, err = readCount(r, maxTxIO, "outputs"); err != nil {
		return err
	}
	tx.Outs = nil
	if n > 0 {
		tx.Outs = make([]TxOut, n)
	}
	for i := range tx.Outs {
		out := &tx.Outs[i]
		if out.Value, err = readUint64(r); err != nil {
			return encodingError("failed on output %d: %v", i, err)
		}
		if out.Script, err = ReadVarBytes(r, maxScriptLen, "pk script"); err != nil {
			return err
		}
	}
	return nil
}

func readCount(r io.Reader, max uint64, field string) (uint64, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return 0, encodingError("failed on %s count: %v", field, err)
	}
	if n > max {
		return 0, encodingError("%d %s exceeds max %d", n, field, max)
	}
	return n, nil
}

// EncodeTx serializes tx and returns the bytes along with their hash.
func EncodeTx(tx *MsgTx) ([]byte, chainhash.Hash, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, chainhash.Hash{}, err
	}
	b := buf.Bytes()
	return b, TxHash(b), nil
}

// DecodeTx parses a single transaction; trailing bytes are an error.
func DecodeTx(data []byte) (*MsgTx, error) {
	r := bytes.NewReader(data)
	tx := &MsgTx{}
	if err := tx.Deserialize(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, encodingError("%d trailing bytes after transaction", r.Len())
	}
	return tx, nil
}

// TxHash is the double SHA-256 of an encoded transaction.
func TxHash(data []byte) chainhash.Hash {
	return chainhash.DoubleHashH(data)
}

// CheckPendingTx decodes a transaction waiting for inclusion. Coinbases are
// refused: a block holds exactly one and it is built by the miner.
func CheckPendingTx(data []byte) (*MsgTx, error) {
	tx, err := DecodeTx(data)
	if err != nil {
		return nil, err
	}
	if tx.IsCoinbase() {
		return nil, ErrCoinbaseTx
	}
	return tx, nil
}
