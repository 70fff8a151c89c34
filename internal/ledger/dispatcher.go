// Package ledger turns the ledger actions returned by the daemon into calls on
// the wallet of the matching ledger.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/comit-network/swapharness/internal/logger"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/routing/route"
)

type Dispatcher struct {
	Wallets Wallets
}

func NewDispatcher(wallets Wallets) *Dispatcher {
	return &Dispatcher{Wallets: wallets}
}

// DispatchBody parses body and dispatches the ledger action it carries, if any.
func (dispatcher *Dispatcher) DispatchBody(ctx context.Context, body []byte) (*Outcome, error) {
	action, err := Parse(body)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, nil
	}
	return dispatcher.Dispatch(ctx, action)
}

// Dispatch executes action on exactly one wallet and waits for the wallet to
// report back. It never mines blocks.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, action Action) (*Outcome, error) {
	wallet, ok := dispatcher.Wallets.Get(action.Ledger())
	if !ok {
		return nil, fmt.Errorf("%w: %s requires a %s wallet which is not configured", ErrMalformedLedgerAction, action.Type(), action.Ledger())
	}
	if !strings.EqualFold(wallet.Network(), action.GetNetwork()) {
		return nil, fmt.Errorf(
			"%w: %s is for network %s but %s wallet is on %s",
			ErrMalformedLedgerAction, action.Type(), action.GetNetwork(), action.Ledger(), wallet.Network(),
		)
	}

	logger.Debugf("Dispatching %s to %s wallet %s", action.Type(), action.Ledger(), wallet.Identity())

	outcome := &Outcome{Type: action.Type(), Ledger: action.Ledger()}
	var err error
	switch action := action.(type) {
	case *BitcoinSendAmountToAddress:
		err = dispatcher.sendAmountToAddress(ctx, action, outcome)
	case *BitcoinBroadcastSignedTransaction:
		err = dispatcher.broadcastTransaction(ctx, action, outcome)
	case *EthereumDeployContract:
		err = dispatcher.deployContract(ctx, action, outcome)
	case *EthereumCallContract:
		err = dispatcher.callContract(ctx, action, outcome)
	case *LndSendPayment:
		err = dispatcher.sendPayment(ctx, action, outcome)
	case *LndAddHoldInvoice:
		err = dispatcher.addHoldInvoice(ctx, action, outcome)
	case *LndSettleInvoice:
		err = dispatcher.settleInvoice(ctx, action, outcome)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedLedgerAction, action.Type())
	}
	if err != nil {
		return nil, err
	}

	logger.Infof("Dispatched %s", outcome)
	return outcome, nil
}

func malformed(action Action, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedLedgerAction, action.Type(), err)
}

func (dispatcher *Dispatcher) sendAmountToAddress(ctx context.Context, action *BitcoinSendAmountToAddress, outcome *Outcome) error {
	amount, err := action.Amount.Satoshis()
	if err != nil {
		return malformed(action, err)
	}
	txId, err := dispatcher.Wallets.Bitcoin.SendToAddress(ctx, action.To, amount)
	if err != nil {
		return fmt.Errorf("could not send %s to %s: %w", amount, action.To, err)
	}
	outcome.TxId = txId.String()
	return nil
}

func (dispatcher *Dispatcher) broadcastTransaction(ctx context.Context, action *BitcoinBroadcastSignedTransaction, outcome *Outcome) error {
	transaction, err := action.Transaction()
	if err != nil {
		return malformed(action, err)
	}
	txId, err := dispatcher.Wallets.Bitcoin.BroadcastTransaction(ctx, transaction)
	if err != nil {
		return fmt.Errorf("could not broadcast transaction %s: %w", transaction.TxHash(), err)
	}
	outcome.TxId = txId.String()
	return nil
}

func receiptOutcome(receipt *types.Receipt, outcome *Outcome) {
	outcome.Receipt = receipt
	if receipt != nil {
		outcome.TxId = receipt.TxHash.Hex()
		success := receipt.Status == types.ReceiptStatusSuccessful
		outcome.Success = &success
	}
}

func (dispatcher *Dispatcher) deployContract(ctx context.Context, action *EthereumDeployContract, outcome *Outcome) error {
	data, err := decodeHex(action.Data)
	if err != nil {
		return malformed(action, err)
	}
	value, err := action.Amount.Big()
	if err != nil {
		return malformed(action, err)
	}
	receipt, err := dispatcher.Wallets.Ethereum.DeployContract(ctx, data, value, action.GasLimit)
	if err != nil {
		return fmt.Errorf("could not deploy contract: %w", err)
	}
	receiptOutcome(receipt, outcome)
	return nil
}

func (dispatcher *Dispatcher) callContract(ctx context.Context, action *EthereumCallContract, outcome *Outcome) error {
	contract, err := action.Contract()
	if err != nil {
		return malformed(action, err)
	}
	data, err := decodeHex(action.Data)
	if err != nil {
		return malformed(action, err)
	}
	value, err := action.Amount.Big()
	if err != nil {
		return malformed(action, err)
	}
	receipt, err := dispatcher.Wallets.Ethereum.CallContract(ctx, contract, data, value, action.GasLimit)
	if err != nil {
		return fmt.Errorf("could not call contract %s: %w", contract, err)
	}
	receiptOutcome(receipt, outcome)
	return nil
}

func (dispatcher *Dispatcher) sendPayment(ctx context.Context, action *LndSendPayment, outcome *Outcome) error {
	destination, err := route.NewVertexFromStr(action.ToPublicKey)
	if err != nil {
		return malformed(action, err)
	}
	amount, err := action.Amount.Satoshis()
	if err != nil {
		return malformed(action, err)
	}
	hash, err := lntypes.MakeHashFromStr(action.SecretHash)
	if err != nil {
		return malformed(action, err)
	}
	if err := dispatcher.Wallets.Lightning.SendPayment(ctx, destination, amount, hash, action.FinalCltvDelta); err != nil {
		return fmt.Errorf("could not send payment %s: %w", hash, err)
	}
	outcome.PaymentHash = hash.String()
	return nil
}

func (dispatcher *Dispatcher) addHoldInvoice(ctx context.Context, action *LndAddHoldInvoice, outcome *Outcome) error {
	amount, err := action.Amount.Satoshis()
	if err != nil {
		return malformed(action, err)
	}
	hash, err := lntypes.MakeHashFromStr(action.SecretHash)
	if err != nil {
		return malformed(action, err)
	}
	paymentRequest, err := dispatcher.Wallets.Lightning.AddHoldInvoice(ctx, amount, hash, action.Expiry, action.CltvExpiry)
	if err != nil {
		return fmt.Errorf("could not add hold invoice %s: %w", hash, err)
	}
	outcome.PaymentHash = hash.String()
	outcome.PaymentRequest = paymentRequest
	return nil
}

func (dispatcher *Dispatcher) settleInvoice(ctx context.Context, action *LndSettleInvoice, outcome *Outcome) error {
	preimage, err := lntypes.MakePreimageFromStr(action.Secret)
	if err != nil {
		return malformed(action, err)
	}
	if err := dispatcher.Wallets.Lightning.SettleInvoice(ctx, preimage); err != nil {
		return fmt.Errorf("could not settle invoice %s: %w", preimage.Hash(), err)
	}
	outcome.PaymentHash = preimage.Hash().String()
	return nil
}
