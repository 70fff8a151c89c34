package bitcoin

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/stretchr/testify/require"
)

const address = "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080"

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Id     json.RawMessage   `json:"id"`
}

type fakeBitcoind struct {
	lock  sync.Mutex
	calls map[string][]string
}

func (fake *fakeBitcoind) handle(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fake.lock.Lock()
	fake.calls[request.Method] = append(fake.calls[request.Method], r.URL.Path)
	fake.lock.Unlock()

	var result any
	switch request.Method {
	case "createwallet":
		result = map[string]any{"name": "alice", "warning": ""}
	case "getnewaddress":
		result = address
	case "getbalance":
		result = 1.5
	case "getblockchaininfo":
		result = map[string]any{"chain": "regtest", "blocks": 101, "mediantime": 1600000000}
	case "sendtoaddress":
		result = strings.Repeat("ab", 32)
	case "generatetoaddress":
		result = []string{strings.Repeat("cd", 32)}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "error": nil, "id": request.Id})
}

func setup(t *testing.T) (*Wallet, *fakeBitcoind) {
	fake := &fakeBitcoind{calls: make(map[string][]string)}
	server := httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(server.Close)

	host, port, found := strings.Cut(strings.TrimPrefix(server.URL, "http://"), ":")
	require.True(t, found)
	parsedPort, err := strconv.Atoi(port)
	require.NoError(t, err)

	wallet, err := New(Config{Host: host, Port: parsedPort, User: "user", Password: "pass"}, "alice")
	require.NoError(t, err)
	t.Cleanup(wallet.Shutdown)

	require.NoError(t, wallet.Setup(context.Background()))
	return wallet, fake
}

func TestWallet(t *testing.T) {
	wallet, fake := setup(t)
	ctx := context.Background()

	require.Equal(t, address, wallet.Identity())
	require.Equal(t, "regtest", wallet.Network())
	require.Equal(t, []string{"/wallet/alice"}, fake.calls["getnewaddress"])
	require.Equal(t, []string{"/"}, fake.calls["createwallet"])

	balance, err := wallet.GetBalanceByAsset(ctx, ledger.AssetBitcoin)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(150_000_000), balance)

	_, err = wallet.GetBalanceByAsset(ctx, ledger.AssetEther)
	require.Error(t, err)

	blockchainTime, err := wallet.GetBlockchainTime(ctx)
	require.NoError(t, err)
	require.Equal(t, time.Unix(1600000000, 0), blockchainTime)

	txId, err := wallet.SendToAddress(ctx, address, btcutil.Amount(100_000_000))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("ab", 32), txId.String())

	_, err = wallet.SendToAddress(ctx, "not an address", 1)
	require.Error(t, err)

	require.NoError(t, wallet.Fund(ctx, ledger.AssetBitcoin, big.NewInt(100_000_000)))
	require.Len(t, fake.calls["generatetoaddress"], 1)
}

func TestChainParams(t *testing.T) {
	for _, network := range []string{"mainnet", "testnet", "regtest", "signet"} {
		params, err := ChainParams(network)
		require.NoError(t, err)
		require.NotNil(t, params)
	}
	_, err := ChainParams("litecoin")
	require.Error(t, err)
}
