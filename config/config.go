package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/gm2017/hidecoin/logging"
	"github.com/gm2017/hidecoin/net"
)

const defaultConfigFile = "config.yaml"

type PeerConfig struct {
	URL  string `yaml:"url"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

type MinerConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	ReportInterval   time.Duration `yaml:"reportInterval"`
	RestartDelay     time.Duration `yaml:"restartDelay"`
	RetryDelay       time.Duration `yaml:"retryDelay"`
	RefreshTimestamp bool          `yaml:"refreshTimestamp"`

	// AcceptWait of 0s starts the next cycle without waiting for the found
	// block's acceptance or pool pruning.
	AcceptWait time.Duration `yaml:"acceptWait"`
}

type Config struct {
	Network        string       `yaml:"network"`
	MinerAddresses []string     `yaml:"minerAddresses"`
	DataDir        string       `yaml:"dataDir"`
	LogFile        string       `yaml:"logFile"`
	LogLevel       string       `yaml:"logLevel"`
	Listen         string       `yaml:"listen"`
	PowAlgorithm   string       `yaml:"powAlgorithm"`
	VerthashDat    string       `yaml:"verthashDat"`
	NTPServer      string       `yaml:"ntpServer"`
	MaxPoolSize    int          `yaml:"maxPoolSize"`
	Peers          []PeerConfig `yaml:"peers"`
	Miner          MinerConfig  `yaml:"miner"`
}

var Active Config

// Default returns the configuration used for anything config.yaml and the
// command line leave unset.
func Default() Config {
	return Config{
		Network:  "mainnet",
		DataDir:  "data",
		LogLevel: "info",
		Listen:   ":7439",
		Miner: MinerConfig{
			BatchSize:        1000,
			ReportInterval:   10 * time.Second,
			RestartDelay:     time.Millisecond,
			RetryDelay:       time.Second,
			AcceptWait:       2 * time.Second,
			RefreshTimestamp: true,
		},
	}
}

type configFlags struct {
	ConfigFile     string        `short:"C" long:"configfile" description:"Path to configuration file"`
	Network        string        `short:"n" long:"network" description:"Network to mine on (mainnet, testnet, regtest)"`
	Testnet        bool          `long:"testnet" description:"Use the test network"`
	MinerAddresses []string      `short:"a" long:"mineraddress" description:"Address to pay block rewards to; may be given more than once"`
	DataDir        string        `short:"b" long:"datadir" description:"Directory to store the chain in"`
	LogFile        string        `long:"logfile" description:"Write logs to this file as well, rotated by size"`
	LogLevel       string        `short:"d" long:"loglevel" description:"Logging level (debug, info, warn, error)"`
	Listen         string        `long:"listen" description:"Address for the status, metrics and event listener"`
	PowAlgorithm   string        `long:"pow" description:"Override the network's proof of work algorithm (sha256d, sha3, verthash)"`
	VerthashDat    string        `long:"verthashdat" description:"Path to verthash.dat"`
	NTPServer      string        `long:"ntp" description:"Correct the clock against this NTP server"`
	Peers          []string      `long:"peer" description:"JSON-RPC URL of a peer to relay blocks to; may be given more than once"`
	BatchSize      int           `long:"batchsize" description:"Hashes per batch between yield points"`
	AcceptWait     time.Duration `long:"acceptwait" description:"How long to wait for a found block to be accepted"`
	NoRefresh      bool          `long:"norefresh" description:"Do not refresh the candidate timestamp while searching"`
}

// Load reads config.yaml (or the file named by --configfile) and applies
// command line overrides from args. The result is also stored in Active.
func Load(args []string) (*Config, error) {
	var f configFlags
	parser := flags.NewParser(&f, flags.HelpFlag)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	cfg := Default()
	path := f.ConfigFile
	if path == "" {
		path = defaultConfigFile
	}
	if err := cfg.readFile(path); err != nil {
		if f.ConfigFile != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logging.Warnf("No %s file found.", path)
	}

	f.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	Active = cfg
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (f *configFlags) apply(c *Config) {
	if f.Network != "" {
		c.Network = f.Network
	}
	if f.Testnet {
		c.Network = "testnet"
	}
	if len(f.MinerAddresses) > 0 {
		c.MinerAddresses = f.MinerAddresses
	}
	if f.DataDir != "" {
		c.DataDir = f.DataDir
	}
	if f.LogFile != "" {
		c.LogFile = f.LogFile
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.Listen != "" {
		c.Listen = f.Listen
	}
	if f.PowAlgorithm != "" {
		c.PowAlgorithm = f.PowAlgorithm
	}
	if f.VerthashDat != "" {
		c.VerthashDat = f.VerthashDat
	}
	if f.NTPServer != "" {
		c.NTPServer = f.NTPServer
	}
	if len(f.Peers) > 0 {
		c.Peers = nil
		for _, url := range f.Peers {
			c.Peers = append(c.Peers, PeerConfig{URL: url})
		}
	}
	if f.BatchSize > 0 {
		c.Miner.BatchSize = f.BatchSize
	}
	if f.AcceptWait > 0 {
		c.Miner.AcceptWait = f.AcceptWait
	}
	if f.NoRefresh {
		c.Miner.RefreshTimestamp = false
	}
}

// Validate checks values that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	if _, err := net.ByName(c.Network); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Miner.BatchSize <= 0 {
		return fmt.Errorf("miner batch size must be positive, got %d", c.Miner.BatchSize)
	}
	for i, p := range c.Peers {
		if p.URL == "" {
			return fmt.Errorf("peer %d has no url", i)
		}
	}
	return nil
}
