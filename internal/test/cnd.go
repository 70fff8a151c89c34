package test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/comit-network/swapharness/internal/ethereum"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/pkg/siren"
	"github.com/ethereum/go-ethereum/common"
)

const (
	Alice = "alice"
	Bob   = "bob"

	// RedeemVsize is the size the fake bitcoin redeem transaction is charged for.
	RedeemVsize = 200

	htlcCode     = "0x6000600055"
	alphaHtlc    = "bcrt1qalphahtlc"
	swapsPath    = "/swaps"
	rfc003Prefix = "/swaps/rfc003"
)

var secret = [32]byte{0x68, 0x65, 0x6c, 0x6c, 0x6f}

type creationRequest struct {
	AlphaLedger struct {
		Name    string `json:"name"`
		Network string `json:"network"`
	} `json:"alpha_ledger"`
	BetaLedger struct {
		Name    string `json:"name"`
		Network string `json:"network"`
	} `json:"beta_ledger"`
	AlphaAsset struct {
		Name     string `json:"name"`
		Quantity string `json:"quantity"`
	} `json:"alpha_asset"`
	BetaAsset struct {
		Name          string `json:"name"`
		Quantity      string `json:"quantity"`
		TokenContract string `json:"token_contract"`
	} `json:"beta_asset"`
	BetaLedgerRedeemIdentity string `json:"beta_ledger_redeem_identity"`
	AlphaExpiry              int64  `json:"alpha_expiry"`
	BetaExpiry               int64  `json:"beta_expiry"`
}

type fakeSwap struct {
	id             string
	alphaQuantity  *big.Int
	betaQuantity   *big.Int
	betaAsset      ledger.Asset
	redeemIdentity string
	refundIdentity string

	communication string
	alpha         string
	beta          string

	betaHtlc     common.Address
	redeemTx     chainhash.Hash
	redeemTo     string
	redeemAmount *big.Int
}

func (swap *fakeSwap) status() string {
	switch {
	case swap.communication == "DECLINED":
		return "NOT_SWAPPED"
	case swap.alpha == "REDEEMED" && swap.beta == "REDEEMED":
		return "SWAPPED"
	}
	return "IN_PROGRESS"
}

// FakeCnd is a pair of cnd HTTP APIs, one for each party, sharing a single
// rfc003 bitcoin for ether or erc20 swap. Ledger actions handed out are
// settled in the World when the wallets of the parties execute them.
type FakeCnd struct {
	Alice *httptest.Server
	Bob   *httptest.Server
	World *World

	// Intercept can answer a request instead of the fake; returning false
	// lets the fake handle it.
	Intercept func(role string, w http.ResponseWriter, r *http.Request) bool

	lock    sync.Mutex
	swap    *fakeSwap
	counter int
	// Requests counts the requests per role and method.
	requests map[string]int
}

func NewFakeCnd(t *testing.T, world *World) *FakeCnd {
	fake := &FakeCnd{World: world, requests: make(map[string]int)}
	fake.Alice = httptest.NewServer(fake.handler(Alice))
	fake.Bob = httptest.NewServer(fake.handler(Bob))
	t.Cleanup(fake.Alice.Close)
	t.Cleanup(fake.Bob.Close)
	world.Subscribe(fake.onEvent)
	return fake
}

func (fake *FakeCnd) Requests(role string, method string) int {
	fake.lock.Lock()
	defer fake.lock.Unlock()
	return fake.requests[role+" "+method]
}

func (fake *FakeCnd) handler(role string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.lock.Lock()
		fake.requests[role+" "+r.Method]++
		fake.lock.Unlock()

		if fake.Intercept != nil && fake.Intercept(role, w, r) {
			return
		}

		fake.lock.Lock()
		defer fake.lock.Unlock()

		switch {
		case r.URL.Path == "/" && r.Method == http.MethodGet:
			writeJson(w, http.StatusOK, map[string]any{
				"id":               "Qm" + role,
				"listen_addresses": []string{"/ip4/127.0.0.1/tcp/" + role},
			})
		case r.URL.Path == swapsPath && r.Method == http.MethodGet:
			writeJson(w, http.StatusOK, fake.list(role))
		case r.URL.Path == rfc003Prefix && r.Method == http.MethodPost:
			fake.create(role, w, r)
		case strings.HasPrefix(r.URL.Path, rfc003Prefix+"/"):
			parts := strings.Split(strings.TrimPrefix(r.URL.Path, rfc003Prefix+"/"), "/")
			if fake.swap == nil || parts[0] != fake.swap.id {
				writeJson(w, http.StatusNotFound, map[string]string{"title": "swap not found"})
				return
			}
			if len(parts) == 1 {
				writeJson(w, http.StatusOK, fake.entity(role))
				return
			}
			fake.action(role, parts[1], w, r)
		default:
			writeJson(w, http.StatusNotFound, map[string]string{"title": "not found"})
		}
	})
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", siren.ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (fake *FakeCnd) href(role string) string {
	path := rfc003Prefix + "/" + fake.swap.id
	if role == Bob {
		// the two parties do not agree on the url of a swap
		return fake.Bob.URL + path
	}
	return path
}

func (fake *FakeCnd) list(role string) *siren.Entity {
	list := &siren.Entity{Class: []string{"swaps"}, Entities: []siren.SubEntity{}}
	if fake.swap != nil {
		list.Entities = append(list.Entities, siren.SubEntity{
			Rel:   []string{"item"},
			Class: []string{"swap"},
			Properties: siren.Properties{
				"protocol": "rfc003",
				"status":   fake.swap.status(),
			},
			Links: []siren.Link{{Rel: []string{"self"}, Href: fake.href(role)}},
		})
	}
	return list
}

func (fake *FakeCnd) create(role string, w http.ResponseWriter, r *http.Request) {
	if role != Alice {
		writeJson(w, http.StatusBadRequest, map[string]string{"title": "only alice creates swaps"})
		return
	}
	var request creationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJson(w, http.StatusBadRequest, map[string]string{"title": err.Error()})
		return
	}
	alphaQuantity, okAlpha := new(big.Int).SetString(request.AlphaAsset.Quantity, 10)
	betaQuantity, okBeta := new(big.Int).SetString(request.BetaAsset.Quantity, 10)
	if !okAlpha || !okBeta || request.AlphaLedger.Name != string(ledger.Bitcoin) {
		writeJson(w, http.StatusBadRequest, map[string]string{"title": "unsupported swap"})
		return
	}

	betaAsset := ledger.AssetEther
	if request.BetaAsset.TokenContract != "" {
		betaAsset = ledger.Erc20(request.BetaAsset.TokenContract)
	}

	fake.counter++
	fake.swap = &fakeSwap{
		id:             "swap" + strconv.Itoa(fake.counter),
		alphaQuantity:  alphaQuantity,
		betaQuantity:   betaQuantity,
		betaAsset:      betaAsset,
		redeemIdentity: request.BetaLedgerRedeemIdentity,
		communication:  "SENT",
		alpha:          "NOT_DEPLOYED",
		beta:           "NOT_DEPLOYED",
	}
	w.Header().Set("Location", fake.href(Alice))
	w.WriteHeader(http.StatusCreated)
}

func (fake *FakeCnd) entity(role string) *siren.Entity {
	swap := fake.swap
	return &siren.Entity{
		Class: []string{"swap"},
		Properties: siren.Properties{
			"id":       swap.id,
			"protocol": "rfc003",
			"role":     role,
			"status":   swap.status(),
			"state": map[string]any{
				"communication": map[string]any{"status": swap.communication},
				"alpha_ledger":  map[string]any{"status": swap.alpha},
				"beta_ledger":   map[string]any{"status": swap.beta},
			},
		},
		Actions: fake.actions(role),
		Links:   []siren.Link{{Rel: []string{"self"}, Href: fake.href(role)}},
	}
}

func (fake *FakeCnd) actionHref(name string) string {
	return rfc003Prefix + "/" + fake.swap.id + "/" + name
}

func (fake *FakeCnd) actions(role string) []siren.Action {
	swap := fake.swap
	isToken := swap.betaAsset.Token != ""
	var actions []siren.Action
	get := func(name string, fields ...siren.Field) {
		actions = append(actions, siren.Action{Name: name, Method: http.MethodGet, Href: fake.actionHref(name), Fields: fields})
	}

	if role == Alice {
		if swap.communication == "ACCEPTED" && swap.alpha == "NOT_DEPLOYED" {
			get("fund")
		}
		if swap.beta == "FUNDED" {
			get("redeem")
		}
		return actions
	}

	if swap.communication == "SENT" {
		actions = append(actions,
			siren.Action{
				Name:   "accept",
				Method: http.MethodPost,
				Href:   fake.actionHref("accept"),
				Type:   "application/json",
				Fields: []siren.Field{{Name: "beta_ledger_refund_identity", Class: []string{"ethereum", "address"}}},
			},
			siren.Action{Name: "decline", Method: http.MethodPost, Href: fake.actionHref("decline"), Type: "application/json"},
		)
	}
	if swap.alpha == "FUNDED" && swap.beta == "NOT_DEPLOYED" {
		if isToken {
			get("deploy")
		} else {
			get("fund")
		}
	}
	if isToken && swap.beta == "DEPLOYED" {
		get("fund")
	}
	if swap.beta == "REDEEMED" && swap.alpha == "FUNDED" {
		get("redeem",
			siren.Field{Name: "address", Class: []string{"bitcoin", "address"}},
			siren.Field{Name: "fee_per_byte", Class: []string{"feePerByte"}},
		)
	}
	return actions
}

func ledgerAction(actionType ledger.ActionType, payload map[string]any) map[string]any {
	payload["network"] = Network
	return map[string]any{"type": actionType, "payload": payload}
}

func (fake *FakeCnd) offered(role string, name string) bool {
	for _, action := range fake.actions(role) {
		if action.Name == name {
			return true
		}
	}
	return false
}

func (fake *FakeCnd) action(role string, name string, w http.ResponseWriter, r *http.Request) {
	swap := fake.swap
	if !fake.offered(role, name) {
		writeJson(w, http.StatusBadRequest, map[string]string{"title": "action " + name + " not available"})
		return
	}

	switch {
	case name == "accept":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		identity, _ := body["beta_ledger_refund_identity"].(string)
		if identity == "" {
			writeJson(w, http.StatusBadRequest, map[string]string{"title": "missing beta_ledger_refund_identity"})
			return
		}
		swap.refundIdentity = identity
		swap.communication = "ACCEPTED"
		w.WriteHeader(http.StatusOK)
	case name == "decline":
		swap.communication = "DECLINED"
		w.WriteHeader(http.StatusOK)
	case role == Alice && name == "fund":
		writeJson(w, http.StatusOK, ledgerAction(ledger.TypeBitcoinSendAmountToAddress, map[string]any{
			"to":     alphaHtlc,
			"amount": swap.alphaQuantity.String(),
		}))
	case role == Alice && name == "redeem":
		writeJson(w, http.StatusOK, ledgerAction(ledger.TypeEthereumCallContract, map[string]any{
			"contract_address": swap.betaHtlc.Hex(),
			"data":             "0x" + hex.EncodeToString(secret[:]),
			"amount":           "0",
			"gas_limit":        "0x186a0",
		}))
	case role == Bob && (name == "deploy" || (name == "fund" && swap.betaAsset.Token == "")):
		amount := "0"
		if swap.betaAsset.Token == "" {
			amount = swap.betaQuantity.String()
		}
		writeJson(w, http.StatusOK, ledgerAction(ledger.TypeEthereumDeployContract, map[string]any{
			"data":      htlcCode,
			"amount":    amount,
			"gas_limit": "0x3d0900",
		}))
	case role == Bob && name == "fund":
		data, err := ethereum.TransferData(swap.betaHtlc, swap.betaQuantity)
		if err != nil {
			writeJson(w, http.StatusInternalServerError, map[string]string{"title": err.Error()})
			return
		}
		writeJson(w, http.StatusOK, ledgerAction(ledger.TypeEthereumCallContract, map[string]any{
			"contract_address": swap.betaAsset.Token,
			"data":             "0x" + hex.EncodeToString(data),
			"amount":           "0",
			"gas_limit":        "0x186a0",
		}))
	case role == Bob && name == "redeem":
		fake.bitcoinRedeem(w, r)
	default:
		writeJson(w, http.StatusBadRequest, map[string]string{"title": "unknown action " + name})
	}
}

func (fake *FakeCnd) bitcoinRedeem(w http.ResponseWriter, r *http.Request) {
	swap := fake.swap
	address := r.URL.Query().Get("address")
	feePerByte, err := strconv.ParseInt(r.URL.Query().Get("fee_per_byte"), 10, 64)
	if address == "" || err != nil {
		writeJson(w, http.StatusBadRequest, map[string]string{"title": "address and fee_per_byte are required"})
		return
	}

	amount := new(big.Int).Sub(swap.alphaQuantity, big.NewInt(feePerByte*RedeemVsize))
	transaction := wire.NewMsgTx(wire.TxVersion)
	transaction.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x01}, 0), nil, [][]byte{secret[:]}))
	transaction.AddTxOut(wire.NewTxOut(amount.Int64(), []byte(address)))

	var buf bytes.Buffer
	if err := transaction.Serialize(&buf); err != nil {
		writeJson(w, http.StatusInternalServerError, map[string]string{"title": err.Error()})
		return
	}
	swap.redeemTx = transaction.TxHash()
	swap.redeemTo = address
	swap.redeemAmount = amount

	writeJson(w, http.StatusOK, ledgerAction(ledger.TypeBitcoinBroadcastSignedTransaction, map[string]any{
		"hex": hex.EncodeToString(buf.Bytes()),
	}))
}

// onEvent settles the htlcs of the swap in the World.
func (fake *FakeCnd) onEvent(event Event) error {
	fake.lock.Lock()
	defer fake.lock.Unlock()

	swap := fake.swap
	if swap == nil {
		return nil
	}

	switch event.Type {
	case ledger.TypeBitcoinSendAmountToAddress:
		if event.To == alphaHtlc && event.Amount.Cmp(swap.alphaQuantity) == 0 {
			swap.alpha = "FUNDED"
		}
	case ledger.TypeBitcoinBroadcastSignedTransaction:
		if event.Transaction == nil || event.Transaction.TxHash() != swap.redeemTx {
			return nil
		}
		if err := fake.World.Transfer(alphaHtlc, swap.redeemTo, ledger.AssetBitcoin, swap.redeemAmount); err != nil {
			return err
		}
		fee := new(big.Int).Sub(swap.alphaQuantity, swap.redeemAmount)
		if err := fake.World.Transfer(alphaHtlc, "fees", ledger.AssetBitcoin, fee); err != nil {
			return err
		}
		swap.alpha = "REDEEMED"
	case ledger.TypeEthereumDeployContract:
		if "0x"+hex.EncodeToString(event.Data) != htlcCode {
			return nil
		}
		swap.betaHtlc = common.HexToAddress(event.To)
		if swap.betaAsset.Token != "" {
			swap.beta = "DEPLOYED"
		} else if event.Amount.Cmp(swap.betaQuantity) == 0 {
			swap.beta = "FUNDED"
		}
	case ledger.TypeEthereumCallContract:
		return fake.onCall(swap, event)
	}
	return nil
}

func (fake *FakeCnd) onCall(swap *fakeSwap, event Event) error {
	to := common.HexToAddress(event.To)
	switch {
	case swap.betaAsset.Token != "" && to == common.HexToAddress(swap.betaAsset.Token):
		expected, err := ethereum.TransferData(swap.betaHtlc, swap.betaQuantity)
		if err != nil {
			return err
		}
		if !bytes.Equal(event.Data, expected) {
			return fmt.Errorf("unexpected token call %x", event.Data)
		}
		if err := fake.World.Transfer(event.From, swap.betaHtlc.Hex(), swap.betaAsset, swap.betaQuantity); err != nil {
			return err
		}
		swap.beta = "FUNDED"
	case to == swap.betaHtlc:
		if !bytes.Equal(event.Data, secret[:]) {
			return fmt.Errorf("wrong secret %x", event.Data)
		}
		if err := fake.World.Transfer(swap.betaHtlc.Hex(), swap.redeemIdentity, swap.betaAsset, swap.betaQuantity); err != nil {
			return err
		}
		swap.beta = "REDEEMED"
	}
	return nil
}
