package lnd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/comit-network/swapharness/internal/poll"
	"github.com/comit-network/swapharness/internal/test"
	"github.com/stretchr/testify/require"
)

func testInstance(t *testing.T) *Instance {
	return NewInstance(InstanceConfig{
		Name:        "alice",
		P2pPort:     9735,
		RpcPort:     10009,
		RestPort:    8080,
		BitcoindDir: "/tmp/bitcoind",
	}, t.TempDir(), poll.NewPoller(test.NewClock(), poll.DefaultInterval))
}

func TestInstancePaths(t *testing.T) {
	instance := testInstance(t)

	require.Equal(t, "127.0.0.1:10009", instance.GrpcSocket())
	require.Equal(t, "127.0.0.1:9735", instance.LightningSocket())
	require.Equal(t, filepath.Join(instance.Dir, "tls.cert"), instance.TlsCertPath())
	require.Equal(t, filepath.Join(instance.Dir, "data", "chain", "bitcoin", "regtest", "admin.macaroon"), instance.AdminMacaroonPath())
	require.Equal(t, "lnd-alice", filepath.Base(instance.Dir))
	require.Equal(t, "lnd", instance.Config.Binary)

	client := instance.Client()
	require.Equal(t, 10009, client.Port)
	require.Equal(t, instance.AdminMacaroonPath(), client.Macaroon)
}

func TestWriteConfig(t *testing.T) {
	instance := testInstance(t)
	require.NoError(t, instance.WriteConfig())

	raw, err := os.ReadFile(filepath.Join(instance.Dir, "lnd.conf"))
	require.NoError(t, err)
	config := string(raw)
	require.Contains(t, config, "listen=127.0.0.1:9735")
	require.Contains(t, config, "rpclisten=127.0.0.1:10009")
	require.Contains(t, config, "restlisten=127.0.0.1:8080")
	require.Contains(t, config, "bitcoind.dir=/tmp/bitcoind")
	require.Contains(t, config, "bitcoin.regtest=true")
}

func TestStartInvalidBinary(t *testing.T) {
	instance := testInstance(t)
	instance.Config.Binary = filepath.Join(t.TempDir(), "does-not-exist")

	require.Error(t, instance.Start(context.Background()))
	require.False(t, instance.IsRunning())
	require.NoError(t, instance.Stop())
	require.NoError(t, StopAll(instance, testInstance(t)))
}

func TestLogReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lnd.log")
	require.NoError(t, os.WriteFile(path, []byte("RPCS: password RPC server listening\nRPCS: RPC server listening\n"), 0644))

	clock := test.NewClock()
	reader := NewLogReader(path, poll.NewPoller(clock, poll.DefaultInterval))

	require.NoError(t, reader.WaitForLogMessage(context.Background(), "RPCS: password RPC server listening", time.Second))
	require.NoError(t, reader.WaitForLogMessage(context.Background(), "RPCS: RPC server listening", time.Second))
	require.Empty(t, clock.Waits())

	// already consumed
	err := reader.WaitForLogMessage(context.Background(), "RPCS: RPC server listening", time.Second)
	require.ErrorIs(t, err, poll.ErrTimeout)

	missing := NewLogReader(filepath.Join(t.TempDir(), "missing.log"), poll.NewPoller(clock, poll.DefaultInterval))
	err = missing.WaitForLogMessage(context.Background(), "anything", time.Second)
	require.ErrorIs(t, err, poll.ErrTransport)
}
