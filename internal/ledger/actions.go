package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mitchellh/mapstructure"
)

type ActionType string

const (
	TypeBitcoinSendAmountToAddress        ActionType = "bitcoin-send-amount-to-address"
	TypeBitcoinBroadcastSignedTransaction ActionType = "bitcoin-broadcast-signed-transaction"
	TypeEthereumDeployContract            ActionType = "ethereum-deploy-contract"
	TypeEthereumCallContract              ActionType = "ethereum-call-contract"
	TypeLndSendPayment                    ActionType = "lnd-send-payment"
	TypeLndAddHoldInvoice                 ActionType = "lnd-add-hold-invoice"
	TypeLndSettleInvoice                  ActionType = "lnd-settle-invoice"
)

// Action is one of the ledger specific operations a party has to perform
// itself. The concrete types below are the only implementations.
type Action interface {
	Type() ActionType
	Ledger() Ledger
	GetNetwork() string
}

// Quantity is an integer in the smallest unit of an asset, encoded either
// decimal or as 0x prefixed hex.
type Quantity string

func (quantity Quantity) Big() (*big.Int, error) {
	str := strings.TrimSpace(string(quantity))
	if str == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(str, "0x") {
		return hexutil.DecodeBig(str)
	}
	value, ok := new(big.Int).SetString(str, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid quantity: %s", quantity)
	}
	return value, nil
}

func (quantity Quantity) Satoshis() (btcutil.Amount, error) {
	value, err := quantity.Big()
	if err != nil {
		return 0, err
	}
	if !value.IsInt64() {
		return 0, fmt.Errorf("quantity out of range: %s", quantity)
	}
	return btcutil.Amount(value.Int64()), nil
}

type BitcoinSendAmountToAddress struct {
	To      string   `mapstructure:"to"`
	Amount  Quantity `mapstructure:"amount"`
	Network string   `mapstructure:"network"`
}

type BitcoinBroadcastSignedTransaction struct {
	Hex                string `mapstructure:"hex"`
	Network            string `mapstructure:"network"`
	MinMedianBlockTime *int64 `mapstructure:"min_median_block_time"`
}

func (action *BitcoinBroadcastSignedTransaction) Transaction() (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(action.Hex)
	if err != nil {
		return nil, err
	}
	transaction := wire.NewMsgTx(wire.TxVersion)
	if err := transaction.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return transaction, nil
}

type EthereumDeployContract struct {
	Data     string   `mapstructure:"data"`
	Amount   Quantity `mapstructure:"amount"`
	GasLimit uint64   `mapstructure:"gas_limit"`
	Network  string   `mapstructure:"network"`
	ChainId  *uint64  `mapstructure:"chain_id"`
}

type EthereumCallContract struct {
	ContractAddress   string   `mapstructure:"contract_address"`
	Data              string   `mapstructure:"data"`
	Amount            Quantity `mapstructure:"amount"`
	GasLimit          uint64   `mapstructure:"gas_limit"`
	Network           string   `mapstructure:"network"`
	ChainId           *uint64  `mapstructure:"chain_id"`
	MinBlockTimestamp *int64   `mapstructure:"min_block_timestamp"`
}

func (action *EthereumCallContract) Contract() (common.Address, error) {
	if !common.IsHexAddress(action.ContractAddress) {
		return common.Address{}, fmt.Errorf("invalid contract address: %s", action.ContractAddress)
	}
	return common.HexToAddress(action.ContractAddress), nil
}

type LndSendPayment struct {
	ToPublicKey    string   `mapstructure:"to_public_key"`
	Amount         Quantity `mapstructure:"amount"`
	SecretHash     string   `mapstructure:"secret_hash"`
	FinalCltvDelta uint32   `mapstructure:"final_cltv_delta"`
	Chain          string   `mapstructure:"chain"`
	Network        string   `mapstructure:"network"`
	SelfPublicKey  string   `mapstructure:"self_public_key"`
}

type LndAddHoldInvoice struct {
	Amount        Quantity `mapstructure:"amount"`
	SecretHash    string   `mapstructure:"secret_hash"`
	Expiry        uint32   `mapstructure:"expiry"`
	CltvExpiry    uint32   `mapstructure:"cltv_expiry"`
	Chain         string   `mapstructure:"chain"`
	Network       string   `mapstructure:"network"`
	SelfPublicKey string   `mapstructure:"self_public_key"`
}

type LndSettleInvoice struct {
	Secret        string `mapstructure:"secret"`
	Chain         string `mapstructure:"chain"`
	Network       string `mapstructure:"network"`
	SelfPublicKey string `mapstructure:"self_public_key"`
}

func (*BitcoinSendAmountToAddress) Type() ActionType { return TypeBitcoinSendAmountToAddress }
func (*BitcoinBroadcastSignedTransaction) Type() ActionType {
	return TypeBitcoinBroadcastSignedTransaction
}
func (*EthereumDeployContract) Type() ActionType { return TypeEthereumDeployContract }
func (*EthereumCallContract) Type() ActionType   { return TypeEthereumCallContract }
func (*LndSendPayment) Type() ActionType         { return TypeLndSendPayment }
func (*LndAddHoldInvoice) Type() ActionType      { return TypeLndAddHoldInvoice }
func (*LndSettleInvoice) Type() ActionType       { return TypeLndSettleInvoice }

func (*BitcoinSendAmountToAddress) Ledger() Ledger        { return Bitcoin }
func (*BitcoinBroadcastSignedTransaction) Ledger() Ledger { return Bitcoin }
func (*EthereumDeployContract) Ledger() Ledger            { return Ethereum }
func (*EthereumCallContract) Ledger() Ledger              { return Ethereum }
func (*LndSendPayment) Ledger() Ledger                    { return Lightning }
func (*LndAddHoldInvoice) Ledger() Ledger                 { return Lightning }
func (*LndSettleInvoice) Ledger() Ledger                  { return Lightning }

func (action *BitcoinSendAmountToAddress) GetNetwork() string        { return action.Network }
func (action *BitcoinBroadcastSignedTransaction) GetNetwork() string { return action.Network }
func (action *EthereumDeployContract) GetNetwork() string            { return action.Network }
func (action *EthereumCallContract) GetNetwork() string              { return action.Network }
func (action *LndSendPayment) GetNetwork() string                    { return action.Network }
func (action *LndAddHoldInvoice) GetNetwork() string                 { return action.Network }
func (action *LndSettleInvoice) GetNetwork() string                  { return action.Network }

type actionKind struct {
	required []string
	create   func() Action
}

var actionKinds = map[ActionType]actionKind{
	TypeBitcoinSendAmountToAddress: {
		required: []string{"to", "amount", "network"},
		create:   func() Action { return &BitcoinSendAmountToAddress{} },
	},
	TypeBitcoinBroadcastSignedTransaction: {
		required: []string{"hex", "network"},
		create:   func() Action { return &BitcoinBroadcastSignedTransaction{} },
	},
	TypeEthereumDeployContract: {
		required: []string{"data", "amount", "gas_limit", "network"},
		create:   func() Action { return &EthereumDeployContract{} },
	},
	TypeEthereumCallContract: {
		required: []string{"contract_address", "data", "gas_limit", "network"},
		create:   func() Action { return &EthereumCallContract{} },
	},
	TypeLndSendPayment: {
		required: []string{"to_public_key", "amount", "secret_hash", "final_cltv_delta", "network"},
		create:   func() Action { return &LndSendPayment{} },
	},
	TypeLndAddHoldInvoice: {
		required: []string{"amount", "secret_hash", "expiry", "cltv_expiry", "network"},
		create:   func() Action { return &LndAddHoldInvoice{} },
	},
	TypeLndSettleInvoice: {
		required: []string{"secret", "network"},
		create:   func() Action { return &LndSettleInvoice{} },
	},
}

type envelope struct {
	Type    *string        `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Parse extracts the ledger action from an action response. A body which is
// not a {type, payload} object carries no ledger action and yields nil.
func Parse(body []byte) (Action, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	jsonDecoder := json.NewDecoder(bytes.NewReader(body))
	jsonDecoder.UseNumber()

	var raw envelope
	if err := jsonDecoder.Decode(&raw); err != nil {
		return nil, nil
	}
	if raw.Type == nil || raw.Payload == nil {
		return nil, nil
	}

	kind, ok := actionKinds[ActionType(*raw.Type)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedLedgerAction, *raw.Type)
	}

	var missing []string
	for _, field := range kind.required {
		value, ok := raw.Payload[field]
		if !ok || value == nil || value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s is missing %s", ErrMalformedLedgerAction, *raw.Type, strings.Join(missing, ", "))
	}

	action := kind.create()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           action,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw.Payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedLedgerAction, *raw.Type, err)
	}
	return action, nil
}

// KnownTypes lists every ledger action type that can be dispatched.
func KnownTypes() []ActionType {
	types := make([]ActionType, 0, len(actionKinds))
	for actionType := range actionKinds {
		types = append(types, actionType)
	}
	slices.Sort(types)
	return types
}

func decodeHex(data string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(data, "0x"))
}
