// Package bitcoin implements the bitcoin ledger wallet on top of a named
// bitcoind wallet.
package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/logger"
)

type Config struct {
	Host     string `long:"bitcoin.host" description:"Host of the bitcoind RPC" toml:"host"`
	Port     int    `long:"bitcoin.port" description:"Port of the bitcoind RPC" toml:"port"`
	User     string `long:"bitcoin.user" description:"User of the bitcoind RPC" toml:"user"`
	Password string `long:"bitcoin.password" description:"Password of the bitcoind RPC" toml:"password"`
	Network  string `long:"bitcoin.network" description:"Network bitcoind runs on" toml:"network"`
	DataDir  string `long:"bitcoin.datadir" description:"Data directory of bitcoind, needed by lnd" toml:"datadir"`
}

func (config Config) socket() string {
	return fmt.Sprintf("%s:%d", config.Host, config.Port)
}

func (config Config) connConfig(path string) *rpcclient.ConnConfig {
	return &rpcclient.ConnConfig{
		Host:         config.socket() + path,
		User:         config.User,
		Pass:         config.Password,
		Params:       config.Network,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
}

func ChainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "test", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network: %s", network)
}

// Wallet is the bitcoind wallet of one actor.
type Wallet struct {
	name    string
	config  Config
	params  *chaincfg.Params
	client  *rpcclient.Client
	miner   *rpcclient.Client
	address btcutil.Address
}

// New creates a wallet for name. Setup has to be called before it is used.
// The miner is the default bitcoind wallet, which holds the coinbase outputs.
func New(config Config, name string) (*Wallet, error) {
	if config.Network == "" {
		config.Network = "regtest"
	}
	params, err := ChainParams(config.Network)
	if err != nil {
		return nil, err
	}
	miner, err := rpcclient.New(config.connConfig(""), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create bitcoind client: %w", err)
	}
	client, err := rpcclient.New(config.connConfig("/wallet/"+name), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create bitcoind wallet client: %w", err)
	}
	return &Wallet{name: name, config: config, params: params, client: client, miner: miner}, nil
}

// Setup creates or loads the named wallet and derives the address identifying it.
func (wallet *Wallet) Setup(ctx context.Context) error {
	if _, err := wallet.miner.CreateWallet(wallet.name); err != nil {
		logger.Debugf("Could not create bitcoind wallet %s, loading it: %v", wallet.name, err)
		if _, err := wallet.miner.LoadWallet(wallet.name); err != nil && !strings.Contains(err.Error(), "already loaded") {
			return fmt.Errorf("could not load bitcoind wallet %s: %w", wallet.name, err)
		}
	}

	address, err := wallet.client.GetNewAddress("")
	if err != nil {
		return fmt.Errorf("could not get address of bitcoind wallet %s: %w", wallet.name, err)
	}
	wallet.address = address
	logger.Debugf("Using bitcoind wallet %s with address %s", wallet.name, address)
	return nil
}

func (wallet *Wallet) Identity() string {
	if wallet.address == nil {
		return ""
	}
	return wallet.address.EncodeAddress()
}

func (wallet *Wallet) Network() string {
	return wallet.config.Network
}

// Fund pays amount from the miner wallet and confirms it.
func (wallet *Wallet) Fund(ctx context.Context, asset ledger.Asset, amount *big.Int) error {
	if asset != ledger.AssetBitcoin {
		return fmt.Errorf("bitcoin wallet can not hold %s", asset)
	}
	if wallet.address == nil {
		return errors.New("bitcoin wallet is not set up")
	}
	if _, err := wallet.miner.SendToAddress(wallet.address, btcutil.Amount(amount.Int64())); err != nil {
		return fmt.Errorf("could not fund %s: %w", wallet.name, err)
	}
	return wallet.MineBlocks(ctx, 1)
}

// MineBlocks mines count blocks to the address of the wallet.
func (wallet *Wallet) MineBlocks(ctx context.Context, count int64) error {
	if wallet.address == nil {
		return errors.New("bitcoin wallet is not set up")
	}
	if _, err := wallet.miner.GenerateToAddress(count, wallet.address, nil); err != nil {
		return fmt.Errorf("could not mine %d blocks: %w", count, err)
	}
	return nil
}

func (wallet *Wallet) GetBalanceByAsset(ctx context.Context, asset ledger.Asset) (*big.Int, error) {
	if asset != ledger.AssetBitcoin {
		return nil, fmt.Errorf("bitcoin wallet can not hold %s", asset)
	}
	balance, err := wallet.client.GetBalance("*")
	if err != nil {
		return nil, err
	}
	return big.NewInt(int64(balance)), nil
}

func (wallet *Wallet) blockchainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	raw, err := wallet.miner.RawRequest("getblockchaininfo", nil)
	if err != nil {
		return nil, err
	}
	var info btcjson.GetBlockChainInfoResult
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("could not parse blockchain info: %w", err)
	}
	return &info, nil
}

// GetBlockchainTime is the median time past, which is what timelocks are checked against.
func (wallet *Wallet) GetBlockchainTime(ctx context.Context) (time.Time, error) {
	info, err := wallet.blockchainInfo()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(info.MedianTime, 0), nil
}

func (wallet *Wallet) SendToAddress(ctx context.Context, address string, amount btcutil.Amount) (*chainhash.Hash, error) {
	decoded, err := btcutil.DecodeAddress(address, wallet.params)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	return wallet.client.SendToAddress(decoded, amount)
}

func (wallet *Wallet) BroadcastTransaction(ctx context.Context, transaction *wire.MsgTx) (*chainhash.Hash, error) {
	return wallet.client.SendRawTransaction(transaction, false)
}

func (wallet *Wallet) Shutdown() {
	wallet.client.Shutdown()
	wallet.miner.Shutdown()
}

var _ ledger.BitcoinWallet = &Wallet{}
