// Package ethereum implements the ethereum ledger wallet with a local key.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/logger"
	eth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

type Config struct {
	RpcUrl        string `long:"ethereum.rpcurl" description:"URL of the ethereum JSON-RPC" toml:"rpcurl"`
	FunderKey     string `long:"ethereum.funderkey" description:"Hex encoded private key of the account which funds the actors" toml:"funderkey"`
	ChainId       int64  `long:"ethereum.chainid" description:"Chain id, queried from the node if not set" toml:"chainid"`
	Network       string `long:"ethereum.network" description:"Network name ledger actions refer to" toml:"network"`
	TokenContract string `long:"ethereum.tokencontract" description:"Address of the ERC20 token contract used in swaps" toml:"tokencontract"`
}

// Client is the subset of the ethereum JSON-RPC the wallet needs.
type Client interface {
	eth.ChainReader
	eth.ChainStateReader
	eth.ContractCaller
	eth.GasEstimator
	eth.GasPricer
	eth.PendingStateReader
	eth.TransactionReader
	eth.TransactionSender
	eth.ChainIDReader
}

type Wallet struct {
	client  Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainId *big.Int
	network string

	// funder pays for Fund, nil if the wallet can not be funded
	funder *Wallet
	// mine is called after every transaction on chains which do not mine by themselves
	mine func()

	lock sync.Mutex
}

type Option func(wallet *Wallet)

func WithFunder(funder *Wallet) Option {
	return func(wallet *Wallet) {
		wallet.funder = funder
	}
}

func WithMiner(mine func()) Option {
	return func(wallet *Wallet) {
		wallet.mine = mine
	}
}

func Dial(ctx context.Context, config Config) (Client, error) {
	client, err := ethclient.DialContext(ctx, config.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("could not connect to ethereum node %s: %w", config.RpcUrl, err)
	}
	return client, nil
}

func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	return crypto.HexToECDSA(hexKey)
}

// New creates a wallet for key. A nil key generates a new one.
func New(ctx context.Context, client Client, key *ecdsa.PrivateKey, config Config, options ...Option) (*Wallet, error) {
	if key == nil {
		var err error
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
	}

	chainId := big.NewInt(config.ChainId)
	if config.ChainId == 0 {
		var err error
		chainId, err = client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not get chain id: %w", err)
		}
	}
	network := config.Network
	if network == "" {
		network = "regtest"
	}

	wallet := &Wallet{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainId: chainId,
		network: network,
	}
	for _, option := range options {
		option(wallet)
	}
	return wallet, nil
}

func (wallet *Wallet) Address() common.Address {
	return wallet.address
}

func (wallet *Wallet) Identity() string {
	return wallet.address.Hex()
}

func (wallet *Wallet) Network() string {
	return wallet.network
}

func (wallet *Wallet) GetBalanceByAsset(ctx context.Context, asset ledger.Asset) (*big.Int, error) {
	if asset.Ledger != ledger.Ethereum {
		return nil, fmt.Errorf("ethereum wallet can not hold %s", asset)
	}
	if asset.Token == "" {
		return wallet.client.BalanceAt(ctx, wallet.address, nil)
	}
	data, err := BalanceOfData(wallet.address)
	if err != nil {
		return nil, err
	}
	token := common.HexToAddress(asset.Token)
	result, err := wallet.client.CallContract(ctx, eth.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("could not query %s balance: %w", asset, err)
	}
	return unpackBalance(result)
}

func (wallet *Wallet) GetBlockchainTime(ctx context.Context) (time.Time, error) {
	header, err := wallet.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0), nil
}

// Fund transfers amount of asset from the funder.
func (wallet *Wallet) Fund(ctx context.Context, asset ledger.Asset, amount *big.Int) error {
	if wallet.funder == nil {
		return errors.New("ethereum wallet has no funder")
	}
	if asset.Ledger != ledger.Ethereum {
		return fmt.Errorf("ethereum wallet can not hold %s", asset)
	}

	var receipt *types.Receipt
	var err error
	if asset.Token == "" {
		receipt, err = wallet.funder.send(ctx, &wallet.address, nil, amount, 21000)
	} else {
		var data []byte
		data, err = TransferData(wallet.address, amount)
		if err != nil {
			return err
		}
		token := common.HexToAddress(asset.Token)
		receipt, err = wallet.funder.send(ctx, &token, data, nil, 0)
	}
	if err != nil {
		return fmt.Errorf("could not fund %s with %s: %w", wallet.address, asset, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("funding %s with %s reverted", wallet.address, asset)
	}
	logger.Debugf("Funded %s with %s %s", wallet.address, amount, asset)
	return nil
}

func (wallet *Wallet) DeployContract(ctx context.Context, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error) {
	return wallet.send(ctx, nil, data, value, gasLimit)
}

func (wallet *Wallet) CallContract(ctx context.Context, contract common.Address, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error) {
	return wallet.send(ctx, &contract, data, value, gasLimit)
}

// send signs and broadcasts a transaction and waits until it is mined. A
// gasLimit of 0 is estimated.
func (wallet *Wallet) send(ctx context.Context, to *common.Address, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error) {
	wallet.lock.Lock()
	defer wallet.lock.Unlock()

	if value == nil {
		value = new(big.Int)
	}

	nonce, err := wallet.client.PendingNonceAt(ctx, wallet.address)
	if err != nil {
		return nil, fmt.Errorf("could not get nonce: %w", err)
	}
	gasPrice, err := wallet.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get gas price: %w", err)
	}
	if gasLimit == 0 {
		gasLimit, err = wallet.client.EstimateGas(ctx, eth.CallMsg{From: wallet.address, To: to, Value: value, Data: data})
		if err != nil {
			return nil, fmt.Errorf("could not estimate gas: %w", err)
		}
	}

	transaction := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(transaction, types.NewEIP155Signer(wallet.chainId), wallet.key)
	if err != nil {
		return nil, err
	}
	if err := wallet.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("could not send transaction: %w", err)
	}
	if wallet.mine != nil {
		wallet.mine()
	}

	receipt, err := bind.WaitMined(ctx, wallet.client, signed)
	if err != nil {
		return nil, fmt.Errorf("transaction %s was not mined: %w", signed.Hash(), err)
	}
	// nodes before london do not report it, legacy transactions pay the gas price
	if receipt.EffectiveGasPrice == nil {
		receipt.EffectiveGasPrice = gasPrice
	}
	return receipt, nil
}

var _ ledger.EthereumWallet = &Wallet{}
