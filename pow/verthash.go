package pow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gertjaap/verthash-go"

	"github.com/gm2017/hidecoin/logging"
)

var log = logging.New("POW")

// Verthash hashes with the memory-hard verthash algorithm. Without
// keepInRam every hash seeks in the dat file, so calls are serialized.
type Verthash struct {
	mtx sync.Mutex
	vh  *verthash.Verthash
}

// NewVerthash opens the verthash.dat file. If datFile does not exist the
// default location under ~/.vertcoin is tried.
func NewVerthash(datFile string, keepInRam bool) (*Verthash, error) {
	path, err := findDatFile(datFile)
	if err != nil {
		return nil, err
	}

	if keepInRam {
		log.Infof("Loading %s into memory, this takes more than 1GB of RAM", path)
	}
	vh, err := verthash.NewVerthash(path, keepInRam)
	if err != nil {
		return nil, fmt.Errorf("failed to open verthash data file %s: %w", path, err)
	}
	log.Infof("Verthash initialized from %s", path)
	return &Verthash{vh: vh}, nil
}

func findDatFile(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("error accessing verthash data file %s: %w", configured, err)
		}
		log.Warnf("Configured verthash data file %s not found", configured)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("verthash data file not found and no home directory: %w", err)
	}
	fallback := filepath.Join(home, ".vertcoin", "verthash.dat")
	if _, err := os.Stat(fallback); err != nil {
		return "", fmt.Errorf("verthash data file not found (tried %q and %q)", configured, fallback)
	}
	return fallback, nil
}

// Hash returns the all-ones hash when the data file cannot be read, which
// never satisfies a target.
func (v *Verthash) Hash(data []byte) chainhash.Hash {
	v.mtx.Lock()
	sum, err := v.vh.SumVerthash(data)
	v.mtx.Unlock()
	if err != nil {
		log.Errorf("Verthash failed during hashing: %v", err)
		var h chainhash.Hash
		for i := range h {
			h[i] = 0xff
		}
		return h
	}
	return chainhash.Hash(sum)
}

func (v *Verthash) Name() string { return AlgoVerthash }

func (v *Verthash) Close() {
	v.vh.Close()
}
