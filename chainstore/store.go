// Package chainstore keeps the local chain of accepted blocks in leveldb.
package chainstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/gm2017/hidecoin/logging"
	"github.com/gm2017/hidecoin/work"
)

var log = logging.New("CHN")

var (
	ErrNotFound = errors.New("block not found")
	ErrEmpty    = errors.New("chain store is empty")
	ErrNotTip   = errors.New("parent is not the current tip")
)

var (
	prefixBlock  = []byte("b")
	prefixHeight = []byte("h")
	keyTip       = []byte("tip")
)

var defaultOptions = opt.Options{
	Compression:        opt.NoCompression,
	BlockCacheCapacity: 32 * opt.MiB,
	WriteBuffer:        16 * opt.MiB,
}

// Store is an append-only chain of blocks indexed by height and hash.
type Store struct {
	db *leveldb.DB

	mtx    sync.RWMutex
	empty  bool
	height uint64
	tip    chainhash.Hash
}

// Open opens or creates the store at path, recovering a corrupted database
// if needed.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &defaultOptions)
	if _, corrupted := err.(*ldberrors.ErrCorrupted); corrupted {
		log.Warnf("LevelDB corruption detected for path %s: %s", path, err)
		db, err = leveldb.RecoverFile(path, &defaultOptions)
		if err != nil {
			return nil, err
		}
		log.Warnf("LevelDB recovered from corruption for path %s", path)
	}
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// OpenMemory returns a store that lives only in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

func newStore(db *leveldb.DB) (*Store, error) {
	s := &Store{db: db, empty: true}
	v, err := db.Get(keyTip, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read tip: %w", err)
	}
	if len(v) != 8+chainhash.HashSize {
		db.Close()
		return nil, fmt.Errorf("tip record has invalid length %d", len(v))
	}
	s.empty = false
	s.height = binary.BigEndian.Uint64(v)
	copy(s.tip[:], v[8:])
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(height uint64) []byte {
	k := make([]byte, len(prefixBlock)+8)
	copy(k, prefixBlock)
	binary.BigEndian.PutUint64(k[len(prefixBlock):], height)
	return k
}

func hashKey(hash *chainhash.Hash) []byte {
	return append(append([]byte{}, prefixHeight...), hash[:]...)
}

// Init writes the genesis block into an empty store. It is a no-op when
// the store already holds a chain starting at the same genesis.
func (s *Store) Init(genesisHash chainhash.Hash, genesis []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.empty {
		first, err := s.blockAt(0)
		if err != nil {
			return err
		}
		if first.Hash != genesisHash {
			return fmt.Errorf("store holds genesis %s, expected %s", first.Hash, genesisHash)
		}
		return nil
	}
	return s.put(0, genesisHash, genesis)
}

func (s *Store) put(height uint64, hash chainhash.Hash, data []byte) error {
	val := make([]byte, chainhash.HashSize+len(data))
	copy(val, hash[:])
	copy(val[chainhash.HashSize:], data)

	var hv [8]byte
	binary.BigEndian.PutUint64(hv[:], height)
	tip := append(hv[:], hash[:]...)

	batch := new(leveldb.Batch)
	batch.Put(blockKey(height), val)
	batch.Put(hashKey(&hash), hv[:])
	batch.Put(keyTip, tip)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write block %d: %w", height, err)
	}

	s.empty = false
	s.height = height
	s.tip = hash
	return nil
}

// Append adds a block on top of the tip. prev must be the hash of the
// current tip.
func (s *Store) Append(prev, hash chainhash.Hash, data []byte) (uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.empty {
		return 0, ErrEmpty
	}
	if prev != s.tip {
		return 0, fmt.Errorf("%w: have %s, block builds on %s", ErrNotTip, s.tip, prev)
	}
	height := s.height + 1
	if err := s.put(height, hash, data); err != nil {
		return 0, err
	}
	return height, nil
}

// Height returns the height of the tip.
func (s *Store) Height() (uint64, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.empty {
		return 0, ErrEmpty
	}
	return s.height, nil
}

func (s *Store) TipHash() (chainhash.Hash, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.empty {
		return chainhash.Hash{}, ErrEmpty
	}
	return s.tip, nil
}

func (s *Store) BlockAt(height uint64) (*work.StoredBlock, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.blockAt(height)
}

func (s *Store) blockAt(height uint64) (*work.StoredBlock, error) {
	v, err := s.db.Get(blockKey(height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	if err != nil {
		return nil, err
	}
	if len(v) < chainhash.HashSize {
		return nil, fmt.Errorf("block record %d is truncated", height)
	}
	blk := &work.StoredBlock{Height: height, Data: v[chainhash.HashSize:]}
	copy(blk.Hash[:], v[:chainhash.HashSize])
	return blk, nil
}

// HeightOf looks up the height of a block by hash.
func (s *Store) HeightOf(hash chainhash.Hash) (uint64, error) {
	v, err := s.db.Get(hashKey(&hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func (s *Store) Has(hash chainhash.Hash) bool {
	ok, err := s.db.Has(hashKey(&hash), nil)
	return err == nil && ok
}
