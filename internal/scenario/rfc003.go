package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/comit-network/swapharness/internal/actor"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/pkg/cnd"
	"github.com/comit-network/swapharness/pkg/siren"
)

const (
	Rfc003Protocol = "rfc003"

	StatusInProgress = "IN_PROGRESS"
	StatusSwapped    = "SWAPPED"
	StatusNotSwapped = "NOT_SWAPPED"

	CommunicationSent     = "SENT"
	CommunicationAccepted = "ACCEPTED"
	CommunicationDeclined = "DECLINED"

	LedgerNotDeployed = "NOT_DEPLOYED"
	LedgerDeployed    = "DEPLOYED"
	LedgerFunded      = "FUNDED"
	LedgerRedeemed    = "REDEEMED"
	LedgerRefunded    = "REFUNDED"
)

var (
	DefaultAlphaExpiry = time.Date(2080, 6, 11, 23, 0, 0, 0, time.UTC)
	DefaultBetaExpiry  = time.Date(2080, 6, 11, 13, 0, 0, 0, time.UTC)
)

type RequestLedger struct {
	Name    string `json:"name"`
	Network string `json:"network"`
}

type RequestAsset struct {
	Name          string `json:"name"`
	Quantity      string `json:"quantity"`
	TokenContract string `json:"token_contract,omitempty"`
}

type Peer struct {
	PeerId      string `json:"peer_id"`
	AddressHint string `json:"address_hint,omitempty"`
}

// Request is the body which creates an rfc003 swap.
type Request struct {
	AlphaLedger               RequestLedger `json:"alpha_ledger"`
	BetaLedger                RequestLedger `json:"beta_ledger"`
	AlphaAsset                RequestAsset  `json:"alpha_asset"`
	BetaAsset                 RequestAsset  `json:"beta_asset"`
	AlphaLedgerRefundIdentity string        `json:"alpha_ledger_refund_identity,omitempty"`
	BetaLedgerRedeemIdentity  string        `json:"beta_ledger_redeem_identity,omitempty"`
	AlphaExpiry               int64         `json:"alpha_expiry"`
	BetaExpiry                int64         `json:"beta_expiry"`
	Peer                      Peer          `json:"peer"`
}

func requestAsset(asset ledger.Asset, quantity *big.Int) RequestAsset {
	return RequestAsset{Name: asset.Name, Quantity: quantity.String(), TokenContract: asset.Token}
}

// NewRequest builds the request of alice to swap alpha for beta with bob.
func NewRequest(alice *actor.Actor, alpha ledger.Asset, alphaQuantity *big.Int, beta ledger.Asset, betaQuantity *big.Int, network string, peer Peer) Request {
	request := Request{
		AlphaLedger: RequestLedger{Name: string(alpha.Ledger), Network: network},
		BetaLedger:  RequestLedger{Name: string(beta.Ledger), Network: network},
		AlphaAsset:  requestAsset(alpha, alphaQuantity),
		BetaAsset:   requestAsset(beta, betaQuantity),
		AlphaExpiry: DefaultAlphaExpiry.Unix(),
		BetaExpiry:  DefaultBetaExpiry.Unix(),
		Peer:        peer,
	}
	if alpha.Ledger == ledger.Ethereum {
		request.AlphaLedgerRefundIdentity = alice.Identity(ledger.Ethereum)
	}
	if beta.Ledger == ledger.Ethereum {
		request.BetaLedgerRedeemIdentity = alice.Identity(ledger.Ethereum)
	}
	return request
}

// PeerOf looks up how alice reaches the cnd of bob.
func PeerOf(ctx context.Context, bob *actor.Actor) (Peer, error) {
	info, err := bob.Api().GetInfo(ctx)
	if err != nil {
		return Peer{}, fmt.Errorf("could not get cnd info of %s: %w", bob.Name(), err)
	}
	peer := Peer{PeerId: info.Id}
	if len(info.ListenAddresses) > 0 {
		peer.AddressHint = info.ListenAddresses[0]
	}
	return peer, nil
}

type Parties struct {
	Alice *actor.Actor
	Bob   *actor.Actor
	Peer  Peer
	// MineBlock confirms the bitcoin redeem transaction of bob.
	MineBlock func(ctx context.Context) error
}

type Amounts struct {
	Bitcoin *big.Int
	Beta    *big.Int
	// Token is the erc20 contract, empty for ether.
	Token string
	// MaxBitcoinFee is how much less than Bitcoin bob may receive.
	MaxBitcoinFee *big.Int
	// MaxBetaFee is how much less than Beta alice may receive on top of the
	// gas of her ether redeem, which is accounted for from its receipt.
	MaxBetaFee *big.Int
}

func DefaultAmounts(token string) Amounts {
	return Amounts{
		Bitcoin:       big.NewInt(100_000_000),
		Beta:          big.NewInt(5000),
		Token:         token,
		MaxBitcoinFee: big.NewInt(5000),
		MaxBetaFee:    new(big.Int),
	}
}

func communicationStatus(status string) func(state siren.State) bool {
	return func(state siren.State) bool {
		return state.String("communication", "status") == status
	}
}

func ledgerStatus(side string, status string) func(state siren.State) bool {
	return func(state siren.State) bool {
		return state.String(side, "status") == status
	}
}

func expectStatus(status string) func(ctx context.Context, entity *siren.Entity) error {
	return func(ctx context.Context, entity *siren.Entity) error {
		if actual := entity.Status(); actual != status {
			return fmt.Errorf("%w: expected status %s, got %q", ErrAssertion, status, actual)
		}
		return nil
	}
}

func expectSuccessfulReceipt(outcome *ledger.Outcome) error {
	if outcome == nil {
		return errors.New("no ledger action was executed")
	}
	if outcome.Success != nil && !*outcome.Success {
		return fmt.Errorf("%s failed on chain", outcome.Type)
	}
	return nil
}

// balance remembers the balance of an actor before a step and checks it
// received at least (or exactly) an amount afterwards. Gas the actor paid
// in the asset itself is added back before checking.
type balance struct {
	actor  *actor.Actor
	asset  ledger.Asset
	before *big.Int
	gas    *big.Int
}

func (b *balance) capture(ctx context.Context, _ *siren.Entity) error {
	wallet, ok := b.actor.Wallets().Get(b.asset.Ledger)
	if !ok {
		return fmt.Errorf("%s has no %s wallet", b.actor.Name(), b.asset.Ledger)
	}
	before, err := wallet.GetBalanceByAsset(ctx, b.asset)
	if err != nil {
		return err
	}
	b.before = before
	b.gas = new(big.Int)
	return nil
}

// paysGas checks the outcome like next and records the gas it cost if the
// balance is held in ether.
func (b *balance) paysGas(next func(outcome *ledger.Outcome) error) func(outcome *ledger.Outcome) error {
	return func(outcome *ledger.Outcome) error {
		if err := next(outcome); err != nil {
			return err
		}
		if b.asset != ledger.AssetEther || outcome.Receipt == nil || outcome.Receipt.EffectiveGasPrice == nil {
			return nil
		}
		if b.gas == nil {
			b.gas = new(big.Int)
		}
		cost := new(big.Int).SetUint64(outcome.Receipt.GasUsed)
		b.gas.Add(b.gas, cost.Mul(cost, outcome.Receipt.EffectiveGasPrice))
		return nil
	}
}

func (b *balance) received(amount *big.Int, maxFee *big.Int) func(ctx context.Context, entity *siren.Entity) error {
	return func(ctx context.Context, _ *siren.Entity) error {
		if b.before == nil {
			return errors.New("balance before the swap was not captured")
		}
		wallet, _ := b.actor.Wallets().Get(b.asset.Ledger)
		after, err := wallet.GetBalanceByAsset(ctx, b.asset)
		if err != nil {
			return err
		}
		received := new(big.Int).Sub(after, b.before)
		if b.gas != nil {
			received.Add(received, b.gas)
		}
		minimum := new(big.Int).Sub(amount, maxFee)
		if received.Cmp(minimum) < 0 || received.Cmp(amount) > 0 {
			return fmt.Errorf("%w: %s received %s %s, expected between %s and %s", ErrAssertion, b.actor.Name(), received, b.asset, minimum, amount)
		}
		return nil
	}
}

// happyPath is the part shared by all bitcoin for ethereum swaps once the
// beta asset is funded.
func happyPath(parties Parties, amounts Amounts, betaAsset ledger.Asset, betaFunding []Step) []Step {
	alice, bob := parties.Alice, parties.Bob
	aliceBeta := &balance{actor: alice, asset: betaAsset}
	bobBitcoin := &balance{actor: bob, asset: ledger.AssetBitcoin}

	steps := []Step{
		{
			Actor:     bob,
			Action:    &Action{Kind: siren.Accept},
			WaitUntil: communicationStatus(CommunicationAccepted),
			Test:      bobBitcoin.capture,
		},
		{
			Actor:     alice,
			Action:    &Action{Kind: siren.Fund, Outcome: expectSuccessfulReceipt},
			WaitUntil: ledgerStatus("alpha_ledger", LedgerFunded),
		},
	}
	steps = append(steps, betaFunding...)
	steps = append(steps,
		Step{
			Actor: alice,
			Test:  aliceBeta.capture,
		},
		Step{
			Actor:     alice,
			Action:    &Action{Kind: siren.Redeem, Outcome: aliceBeta.paysGas(expectSuccessfulReceipt)},
			WaitUntil: ledgerStatus("beta_ledger", LedgerRedeemed),
			Test:      aliceBeta.received(amounts.Beta, amounts.MaxBetaFee),
		},
		Step{
			Actor: bob,
			Action: &Action{
				Kind:        siren.Redeem,
				Outcome:     expectSuccessfulReceipt,
				AfterAction: parties.MineBlock,
			},
			WaitUntil: ledgerStatus("alpha_ledger", LedgerRedeemed),
			Test:      bobBitcoin.received(amounts.Bitcoin, amounts.MaxBitcoinFee),
		},
		Step{Actor: alice, Test: expectStatus(StatusSwapped)},
		Step{Actor: bob, Test: expectStatus(StatusSwapped)},
	)
	return steps
}

func newScenario(name string, parties Parties, request Request, steps []Step) *Scenario {
	return &Scenario{
		Name: name,
		Create: Creation{
			Actor:   parties.Alice,
			Path:    cnd.Rfc003Path,
			Request: request,
		},
		Discover: Discovery{
			Actor:    parties.Bob,
			Protocol: Rfc003Protocol,
			Status:   StatusInProgress,
		},
		Steps: steps,
	}
}

// BitcoinForErc20 is alice swapping bitcoin for erc20 tokens of bob.
func BitcoinForErc20(parties Parties, amounts Amounts, network string) (*Scenario, error) {
	if amounts.Token == "" {
		return nil, errors.New("bitcoin for erc20 needs a token contract")
	}
	token := ledger.Erc20(amounts.Token)
	steps := happyPath(parties, amounts, token, []Step{
		{
			Actor:     parties.Bob,
			Action:    &Action{Kind: siren.Deploy, Outcome: expectSuccessfulReceipt},
			WaitUntil: ledgerStatus("beta_ledger", LedgerDeployed),
		},
		{
			Actor:     parties.Bob,
			Action:    &Action{Kind: siren.Fund, Outcome: expectSuccessfulReceipt},
			WaitUntil: ledgerStatus("beta_ledger", LedgerFunded),
		},
	})
	request := NewRequest(parties.Alice, ledger.AssetBitcoin, amounts.Bitcoin, token, amounts.Beta, network, parties.Peer)
	return newScenario("rfc003 bitcoin for erc20", parties, request, steps), nil
}

// BitcoinForEther is alice swapping bitcoin for ether of bob. The ether
// htlc is funded on deployment.
func BitcoinForEther(parties Parties, amounts Amounts, network string) (*Scenario, error) {
	steps := happyPath(parties, amounts, ledger.AssetEther, []Step{
		{
			Actor:     parties.Bob,
			Action:    &Action{Kind: siren.Fund, Outcome: expectSuccessfulReceipt},
			WaitUntil: ledgerStatus("beta_ledger", LedgerFunded),
		},
	})
	request := NewRequest(parties.Alice, ledger.AssetBitcoin, amounts.Bitcoin, ledger.AssetEther, amounts.Beta, network, parties.Peer)
	return newScenario("rfc003 bitcoin for ether", parties, request, steps), nil
}

// Decline is bob declining the request of alice.
func Decline(parties Parties, amounts Amounts, network string) (*Scenario, error) {
	beta := ledger.AssetEther
	if amounts.Token != "" {
		beta = ledger.Erc20(amounts.Token)
	}
	steps := []Step{
		{
			Actor:     parties.Bob,
			Action:    &Action{Kind: siren.Decline},
			WaitUntil: communicationStatus(CommunicationDeclined),
			Test:      expectStatus(StatusNotSwapped),
		},
		{
			Actor:     parties.Alice,
			WaitUntil: communicationStatus(CommunicationDeclined),
			Test:      expectStatus(StatusNotSwapped),
		},
	}
	request := NewRequest(parties.Alice, ledger.AssetBitcoin, amounts.Bitcoin, beta, amounts.Beta, network, parties.Peer)
	return newScenario("rfc003 decline", parties, request, steps), nil
}

// Builder creates a scenario from the parties and amounts.
type Builder func(parties Parties, amounts Amounts, network string) (*Scenario, error)

var Library = map[string]Builder{
	"bitcoin-for-erc20": BitcoinForErc20,
	"bitcoin-for-ether": BitcoinForEther,
	"decline":           Decline,
}
