package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
network: regtest
minerAddresses:
  - addr1
  - addr2
logLevel: debug
peers:
  - url: http://10.0.0.1:7439
    user: alice
    pass: secret
miner:
  batchSize: 500
  reportInterval: 30s
  acceptWait: 500ms
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load([]string{"--configfile", path})
	require.NoError(t, err)

	assert.Equal(t, "regtest", cfg.Network)
	assert.Equal(t, []string{"addr1", "addr2"}, cfg.MinerAddresses)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, PeerConfig{URL: "http://10.0.0.1:7439", User: "alice", Pass: "secret"}, cfg.Peers[0])
	assert.Equal(t, 500, cfg.Miner.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Miner.ReportInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Miner.AcceptWait)

	// Unset keys keep their defaults.
	assert.Equal(t, time.Millisecond, cfg.Miner.RestartDelay)
	assert.True(t, cfg.Miner.RefreshTimestamp)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, *cfg, Active)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load([]string{
		"-C", path,
		"--testnet",
		"-a", "addr3",
		"--peer", "http://10.0.0.2:7439",
		"--batchsize", "64",
		"--acceptwait", "3s",
		"--norefresh",
	})
	require.NoError(t, err)

	assert.Equal(t, "testnet", cfg.Network)
	assert.Equal(t, []string{"addr3"}, cfg.MinerAddresses)
	assert.Equal(t, []PeerConfig{{URL: "http://10.0.0.2:7439"}}, cfg.Peers)
	assert.Equal(t, 64, cfg.Miner.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.Miner.AcceptWait)
	assert.False(t, cfg.Miner.RefreshTimestamp)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestMissingDefaultFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
	}{
		{"missing explicit file", func(t *testing.T) []string {
			return []string{"-C", filepath.Join(t.TempDir(), "nope.yaml")}
		}},
		{"unknown key", func(t *testing.T) []string {
			return []string{"-C", writeConfig(t, "netwrok: regtest\n")}
		}},
		{"unknown network", func(t *testing.T) []string {
			return []string{"-C", writeConfig(t, "network: moon\n")}
		}},
		{"bad log level", func(t *testing.T) []string {
			return []string{"-C", writeConfig(t, "logLevel: loud\n")}
		}},
		{"bad batch size", func(t *testing.T) []string {
			return []string{"-C", writeConfig(t, "miner:\n  batchSize: -1\n")}
		}},
		{"peer without url", func(t *testing.T) []string {
			return []string{"-C", writeConfig(t, "peers:\n  - user: bob\n")}
		}},
		{"unknown flag", func(t *testing.T) []string {
			return []string{"--frobnicate"}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, err := Load(tc.args(t))
			assert.Error(t, err)
		})
	}
}
