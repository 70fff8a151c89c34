package test

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/routing/route"
)

type wallet struct {
	world    *World
	identity string
	network  string
}

func (w *wallet) Fund(ctx context.Context, asset ledger.Asset, amount *big.Int) error {
	w.world.Mint(w.identity, asset, amount)
	return nil
}

func (w *wallet) GetBalanceByAsset(ctx context.Context, asset ledger.Asset) (*big.Int, error) {
	return w.world.Balance(w.identity, asset), nil
}

func (w *wallet) GetBlockchainTime(ctx context.Context) (time.Time, error) {
	return w.world.Now(), nil
}

func (w *wallet) Identity() string {
	return w.identity
}

func (w *wallet) Network() string {
	return w.network
}

type BitcoinWallet struct {
	wallet
}

func NewBitcoinWallet(world *World, name string) *BitcoinWallet {
	return &BitcoinWallet{wallet{world: world, identity: "bcrt1q" + name, network: Network}}
}

func (w *BitcoinWallet) SendToAddress(ctx context.Context, address string, amount btcutil.Amount) (*chainhash.Hash, error) {
	value := big.NewInt(int64(amount))
	if err := w.world.Transfer(w.identity, address, ledger.AssetBitcoin, value); err != nil {
		return nil, err
	}
	if err := w.world.Transfer(w.identity, "fees", ledger.AssetBitcoin, big.NewInt(BitcoinFee)); err != nil {
		return nil, err
	}
	txId := w.world.nextHash()
	return &txId, w.world.emit(Event{
		Type:   ledger.TypeBitcoinSendAmountToAddress,
		Ledger: ledger.Bitcoin,
		From:   w.identity,
		To:     address,
		Amount: value,
		TxId:   txId.String(),
	})
}

func (w *BitcoinWallet) BroadcastTransaction(ctx context.Context, transaction *wire.MsgTx) (*chainhash.Hash, error) {
	txId := transaction.TxHash()
	return &txId, w.world.emit(Event{
		Type:        ledger.TypeBitcoinBroadcastSignedTransaction,
		Ledger:      ledger.Bitcoin,
		From:        w.identity,
		Transaction: transaction,
		TxId:        txId.String(),
	})
}

type EthereumWallet struct {
	wallet
	Address common.Address
	// GasPrice makes every transaction cost gas, nil means they are free.
	GasPrice *big.Int
}

func NewEthereumWallet(world *World) *EthereumWallet {
	address := world.NextAddress()
	return &EthereumWallet{
		wallet:  wallet{world: world, identity: address.Hex(), network: Network},
		Address: address,
	}
}

func (w *EthereumWallet) receipt(event Event, contract common.Address) (*types.Receipt, error) {
	txId := w.world.nextHash()
	event.TxId = common.Hash(txId).Hex()
	receipt := &types.Receipt{
		TxHash:          common.Hash(txId),
		ContractAddress: contract,
		Status:          types.ReceiptStatusSuccessful,
		GasUsed:         21000,
	}
	if err := w.world.emit(event); err != nil {
		// reverted transactions are mined too
		receipt.Status = types.ReceiptStatusFailed
	}
	if w.GasPrice != nil {
		receipt.EffectiveGasPrice = new(big.Int).Set(w.GasPrice)
		cost := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), w.GasPrice)
		if err := w.world.Transfer(w.identity, "fees", ledger.AssetEther, cost); err != nil {
			return nil, err
		}
	}
	return receipt, nil
}

func (w *EthereumWallet) DeployContract(ctx context.Context, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error) {
	contract := w.world.NextAddress()
	if err := w.world.Transfer(w.identity, contract.Hex(), ledger.AssetEther, value); err != nil {
		return nil, err
	}
	return w.receipt(Event{
		Type:   ledger.TypeEthereumDeployContract,
		Ledger: ledger.Ethereum,
		From:   w.identity,
		To:     contract.Hex(),
		Amount: value,
		Data:   data,
	}, contract)
}

func (w *EthereumWallet) CallContract(ctx context.Context, contract common.Address, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error) {
	return w.receipt(Event{
		Type:   ledger.TypeEthereumCallContract,
		Ledger: ledger.Ethereum,
		From:   w.identity,
		To:     contract.Hex(),
		Amount: value,
		Data:   data,
	}, common.Address{})
}

type LightningWallet struct {
	wallet
}

func NewLightningWallet(world *World) *LightningWallet {
	hash := world.nextHash()
	_, publicKey := btcec.PrivKeyFromBytes(hash[:])
	identity := hex.EncodeToString(publicKey.SerializeCompressed())
	return &LightningWallet{wallet{world: world, identity: identity, network: Network}}
}

func (w *LightningWallet) SendPayment(ctx context.Context, destination route.Vertex, amount btcutil.Amount, hash lntypes.Hash, finalCltvDelta uint32) error {
	return w.world.emit(Event{
		Type:   ledger.TypeLndSendPayment,
		Ledger: ledger.Lightning,
		From:   w.identity,
		To:     destination.String(),
		Amount: big.NewInt(int64(amount)),
		Hash:   hash.String(),
	})
}

func (w *LightningWallet) AddHoldInvoice(ctx context.Context, amount btcutil.Amount, hash lntypes.Hash, expiry uint32, cltvExpiry uint32) (string, error) {
	return "lnbcrt" + hash.String(), w.world.emit(Event{
		Type:   ledger.TypeLndAddHoldInvoice,
		Ledger: ledger.Lightning,
		From:   w.identity,
		Amount: big.NewInt(int64(amount)),
		Hash:   hash.String(),
	})
}

func (w *LightningWallet) SettleInvoice(ctx context.Context, preimage lntypes.Preimage) error {
	return w.world.emit(Event{
		Type:   ledger.TypeLndSettleInvoice,
		Ledger: ledger.Lightning,
		From:   w.identity,
		Hash:   preimage.Hash().String(),
	})
}

// Wallets creates a bitcoin, ethereum and lightning wallet for name.
func Wallets(world *World, name string) ledger.Wallets {
	return ledger.Wallets{
		Bitcoin:   NewBitcoinWallet(world, name),
		Ethereum:  NewEthereumWallet(world),
		Lightning: NewLightningWallet(world),
	}
}

var (
	_ ledger.BitcoinWallet   = &BitcoinWallet{}
	_ ledger.EthereumWallet  = &EthereumWallet{}
	_ ledger.LightningWallet = &LightningWallet{}
)
