package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/routing/route"
)

type Ledger string

const (
	Bitcoin   Ledger = "bitcoin"
	Ethereum  Ledger = "ethereum"
	Lightning Ledger = "lightning"
)

func ParseLedger(name string) (Ledger, error) {
	switch Ledger(strings.ToLower(name)) {
	case Bitcoin:
		return Bitcoin, nil
	case Ethereum:
		return Ethereum, nil
	case Lightning, "lnd":
		return Lightning, nil
	default:
		return "", fmt.Errorf("unknown ledger: %s", name)
	}
}

var (
	ErrMalformedLedgerAction    = errors.New("malformed ledger action")
	ErrUnrecognizedLedgerAction = errors.New("unrecognized ledger action")
)

// Asset identifies something a wallet can hold. Token is the contract
// address for erc20 tokens and empty for native assets.
type Asset struct {
	Name   string
	Ledger Ledger
	Token  string
}

var (
	AssetBitcoin          = Asset{Name: "bitcoin", Ledger: Bitcoin}
	AssetEther            = Asset{Name: "ether", Ledger: Ethereum}
	AssetLightningBitcoin = Asset{Name: "bitcoin", Ledger: Lightning}
)

func Erc20(contract string) Asset {
	return Asset{Name: "erc20", Ledger: Ethereum, Token: contract}
}

func (asset Asset) String() string {
	name := asset.Name
	if asset.Ledger == Lightning {
		name = "lightning-" + name
	}
	if asset.Token != "" {
		return name + ":" + asset.Token
	}
	return name
}

// Wallet is the part every ledger wallet has in common.
type Wallet interface {
	// Fund mints amount of asset into the wallet. Only works on development chains.
	Fund(ctx context.Context, asset Asset, amount *big.Int) error
	GetBalanceByAsset(ctx context.Context, asset Asset) (*big.Int, error)
	GetBlockchainTime(ctx context.Context) (time.Time, error)
	// Identity is what the wallet is addressed by: an address or a node public key.
	Identity() string
	Network() string
}

type BitcoinWallet interface {
	Wallet
	SendToAddress(ctx context.Context, address string, amount btcutil.Amount) (*chainhash.Hash, error)
	BroadcastTransaction(ctx context.Context, transaction *wire.MsgTx) (*chainhash.Hash, error)
}

type EthereumWallet interface {
	Wallet
	DeployContract(ctx context.Context, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error)
	CallContract(ctx context.Context, contract common.Address, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error)
}

type LightningWallet interface {
	Wallet
	// SendPayment returns once the payment is in flight; payments to hold
	// invoices only complete when the invoice is settled.
	SendPayment(ctx context.Context, destination route.Vertex, amount btcutil.Amount, hash lntypes.Hash, finalCltvDelta uint32) error
	AddHoldInvoice(ctx context.Context, amount btcutil.Amount, hash lntypes.Hash, expiry uint32, cltvExpiry uint32) (string, error)
	SettleInvoice(ctx context.Context, preimage lntypes.Preimage) error
}

// Wallets holds at most one wallet per ledger.
type Wallets struct {
	Bitcoin   BitcoinWallet
	Ethereum  EthereumWallet
	Lightning LightningWallet
}

func (wallets Wallets) Get(ledger Ledger) (Wallet, bool) {
	switch ledger {
	case Bitcoin:
		return wallets.Bitcoin, wallets.Bitcoin != nil
	case Ethereum:
		return wallets.Ethereum, wallets.Ethereum != nil
	case Lightning:
		return wallets.Lightning, wallets.Lightning != nil
	}
	return nil, false
}

func (wallets Wallets) Ledgers() []Ledger {
	var ledgers []Ledger
	for _, ledger := range []Ledger{Bitcoin, Ethereum, Lightning} {
		if _, ok := wallets.Get(ledger); ok {
			ledgers = append(ledgers, ledger)
		}
	}
	return ledgers
}

// Outcome is what the wallet reported, passed on without interpretation.
type Outcome struct {
	Type           ActionType
	Ledger         Ledger
	TxId           string
	PaymentHash    string
	PaymentRequest string
	Receipt        *types.Receipt
	// Success is nil if the ledger does not report it synchronously.
	Success *bool
}

func (outcome *Outcome) String() string {
	if outcome == nil {
		return "<no ledger action>"
	}
	result := fmt.Sprintf("%s on %s", outcome.Type, outcome.Ledger)
	if outcome.TxId != "" {
		result += " tx " + outcome.TxId
	}
	if outcome.PaymentHash != "" {
		result += " payment " + outcome.PaymentHash
	}
	if outcome.Success != nil {
		result += fmt.Sprintf(" success=%t", *outcome.Success)
	}
	return result
}
