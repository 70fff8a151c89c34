package config

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testConfig = `
network = "regtest"

[alice]
cnd = "http://alice:8000"
feeperbyte = 5

[alice.lnd]
host = "10.0.0.1"

[bob]
lnddir = "/tmp/bob-lnd"

[timeouts]
wait = "30s"

[scenario]
name = "bitcoin-for-ether"
beta = "9000000000000000000"
`

func writeConfig(t *testing.T, dataDir string) {
	require.NoError(t, os.WriteFile(path.Join(dataDir, "swapharness.toml"), []byte(testConfig), 0600))
}

func TestDefaults(t *testing.T) {
	dataDir := t.TempDir()
	cfg, err := LoadConfig(dataDir, nil)
	require.NoError(t, err)

	require.Equal(t, "regtest", cfg.Network)
	require.Equal(t, "bitcoin-for-erc20", cfg.Scenario.Name)
	require.Equal(t, "regtest", cfg.Bitcoin.Network)
	require.Equal(t, "regtest", cfg.Ethereum.Network)
	require.Equal(t, 10*time.Second, cfg.Timeouts.Discovery)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, path.Join(dataDir, "swapharness.log"), cfg.LogFile)
	require.NotNil(t, cfg.Log.Logger)
	require.False(t, cfg.Alice.HasLightning())
	require.Equal(t, "alice", cfg.Alice.Spawn.Name)
}

func TestConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	writeConfig(t, dataDir)

	cfg, err := LoadConfig(dataDir, nil)
	require.NoError(t, err)

	require.Equal(t, "http://alice:8000", cfg.Alice.Cnd)
	require.Equal(t, uint64(5), cfg.Alice.FeePerByte)
	require.True(t, cfg.Alice.HasLightning())
	require.Equal(t, 10009, cfg.Alice.Lnd.Port)

	require.Equal(t, "/tmp/bob-lnd/data/chain/bitcoin/regtest/admin.macaroon", cfg.Bob.Lnd.Macaroon)
	require.Equal(t, "/tmp/bob-lnd/tls.cert", cfg.Bob.Lnd.Certificate)
	require.True(t, cfg.Bob.HasLightning())

	require.Equal(t, 30*time.Second, cfg.Timeouts.Wait)
	require.Equal(t, 5*time.Second, cfg.Timeouts.Execute)

	amounts, err := cfg.Scenario.Amounts("")
	require.NoError(t, err)
	require.Equal(t, "9000000000000000000", amounts.Beta.String())
	require.Equal(t, int64(100_000_000), amounts.Bitcoin.Int64())
}

func TestFlagsOverrideFile(t *testing.T) {
	dataDir := t.TempDir()
	writeConfig(t, dataDir)

	cfg, err := LoadConfig(dataDir, []string{
		"--alice.cnd", "http://other:8000",
		"--timeouts.wait", "1m",
		"--scenario.name", "decline",
		"--bob.lnd.binary", "/usr/bin/lnd",
	})
	require.NoError(t, err)
	require.Equal(t, "http://other:8000", cfg.Alice.Cnd)
	require.Equal(t, time.Minute, cfg.Timeouts.Wait)
	require.Equal(t, "decline", cfg.Scenario.Name)
	require.True(t, cfg.Bob.SpawnsLnd())
	require.Equal(t, "bob", cfg.Bob.Spawn.Name)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		desc string
		args []string
	}{
		{"UnknownScenario", []string{"--scenario.name", "bitcoin-for-dogecoin"}},
		{"SameCnd", []string{"--alice.cnd", "http://cnd", "--bob.cnd", "http://cnd"}},
		{"InvalidBeta", []string{"--scenario.beta", "lots"}},
		{"EmptyNetwork", []string{"--network", ""}},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := LoadConfig(t.TempDir(), tc.args)
			require.Error(t, err)
		})
	}
}

func TestVersion(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), []string{"--version"})
	require.NoError(t, err)
	require.True(t, cfg.Help.ShowVersion)
}
