package scenario_test

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/comit-network/swapharness/internal/actor"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/scenario"
	"github.com/comit-network/swapharness/internal/test"
	"github.com/comit-network/swapharness/pkg/cnd"
	"github.com/comit-network/swapharness/pkg/siren"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*test.Env, scenario.Parties) {
	env := test.NewEnv(t)
	alice := actor.New(test.Alice, &cnd.Api{URL: env.Cnd.Alice.URL}, env.Alice, actor.WithPoller(env.Poller()))
	bob := actor.New(test.Bob, &cnd.Api{URL: env.Cnd.Bob.URL}, env.Bob, actor.WithPoller(env.Poller()))

	peer, err := scenario.PeerOf(t.Context(), bob)
	require.NoError(t, err)
	require.Equal(t, "Qmbob", peer.PeerId)

	return env, scenario.Parties{
		Alice: alice,
		Bob:   bob,
		Peer:  peer,
		MineBlock: func(ctx context.Context) error {
			env.World.MineBlock()
			return nil
		},
	}
}

func requireStepError(t *testing.T, err error) *scenario.StepError {
	var stepErr *scenario.StepError
	require.ErrorAs(t, err, &stepErr)
	return stepErr
}

func TestBitcoinForErc20(t *testing.T) {
	env, parties := setup(t)
	amounts := scenario.DefaultAmounts(test.Token)

	swap, err := scenario.BitcoinForErc20(parties, amounts, test.Network)
	require.NoError(t, err)

	locations, err := swap.Run(t.Context())
	require.NoError(t, err)

	aliceTokens := env.World.Balance(env.Alice.Ethereum.Identity(), ledger.Erc20(test.Token))
	require.Equal(t, big.NewInt(5000), aliceTokens)

	bobBitcoin := env.World.Balance(env.Bob.Bitcoin.Identity(), ledger.AssetBitcoin)
	require.GreaterOrEqual(t, bobBitcoin.Int64(), int64(100_000_000-5000))
	require.LessOrEqual(t, bobBitcoin.Int64(), int64(100_000_000))

	require.Equal(t, 1, env.World.Blocks)
	require.Equal(t, map[string]string{
		test.Alice: "/swaps/rfc003/swap1",
		test.Bob:   env.Cnd.Bob.URL + "/swaps/rfc003/swap1",
	}, locations.All())

	// every action and state was visible on the first fetch
	require.Empty(t, env.Clock.Waits())
}

func TestBitcoinForEther(t *testing.T) {
	env, parties := setup(t)
	amounts := scenario.DefaultAmounts("")

	swap, err := scenario.BitcoinForEther(parties, amounts, test.Network)
	require.NoError(t, err)
	_, err = swap.Run(t.Context())
	require.NoError(t, err)

	require.Equal(t, big.NewInt(5000), env.World.Balance(env.Alice.Ethereum.Identity(), ledger.AssetEther))
	expectedBob := new(big.Int).Sub(test.BobEther, big.NewInt(5000))
	require.Equal(t, expectedBob, env.World.Balance(env.Bob.Ethereum.Identity(), ledger.AssetEther))
}

func TestRedeemGas(t *testing.T) {
	gasPrice := big.NewInt(2)
	// one redeem transaction of alice
	gas := new(big.Int).Mul(big.NewInt(21000), gasPrice)
	initial := big.NewInt(1_000_000)

	t.Run("Ether", func(t *testing.T) {
		env, parties := setup(t)
		env.Alice.Ethereum.(*test.EthereumWallet).GasPrice = gasPrice
		env.World.Mint(env.Alice.Ethereum.Identity(), ledger.AssetEther, initial)

		swap, err := scenario.BitcoinForEther(parties, scenario.DefaultAmounts(""), test.Network)
		require.NoError(t, err)
		_, err = swap.Run(t.Context())
		require.NoError(t, err)

		expected := new(big.Int).Add(initial, big.NewInt(5000))
		expected.Sub(expected, gas)
		require.Equal(t, expected, env.World.Balance(env.Alice.Ethereum.Identity(), ledger.AssetEther))
	})

	t.Run("Erc20", func(t *testing.T) {
		env, parties := setup(t)
		env.Alice.Ethereum.(*test.EthereumWallet).GasPrice = gasPrice
		env.World.Mint(env.Alice.Ethereum.Identity(), ledger.AssetEther, initial)

		swap, err := scenario.BitcoinForErc20(parties, scenario.DefaultAmounts(test.Token), test.Network)
		require.NoError(t, err)
		_, err = swap.Run(t.Context())
		require.NoError(t, err)

		require.Equal(t, big.NewInt(5000), env.World.Balance(env.Alice.Ethereum.Identity(), ledger.Erc20(test.Token)))
		require.Equal(t, new(big.Int).Sub(initial, gas), env.World.Balance(env.Alice.Ethereum.Identity(), ledger.AssetEther))
	})
}

func TestBitcoinForErc20NeedsToken(t *testing.T) {
	_, parties := setup(t)
	_, err := scenario.BitcoinForErc20(parties, scenario.DefaultAmounts(""), test.Network)
	require.Error(t, err)
}

func TestDecline(t *testing.T) {
	env, parties := setup(t)

	swap, err := scenario.Decline(parties, scenario.DefaultAmounts(test.Token), test.Network)
	require.NoError(t, err)
	_, err = swap.Run(t.Context())
	require.NoError(t, err)

	require.Empty(t, env.World.Events())
}

func TestLibrary(t *testing.T) {
	for name, builder := range scenario.Library {
		t.Run(name, func(t *testing.T) {
			_, parties := setup(t)
			swap, err := builder(parties, scenario.DefaultAmounts(test.Token), test.Network)
			require.NoError(t, err)
			_, err = swap.Run(t.Context())
			require.NoError(t, err)
		})
	}
}

func TestStepOrder(t *testing.T) {
	_, parties := setup(t)

	var calls []string
	swap := &scenario.Scenario{
		Name:     "order",
		Create:   scenario.Creation{Actor: parties.Alice, Path: cnd.Rfc003Path, Request: acceptRequest(parties)},
		Discover: scenario.Discovery{Actor: parties.Bob},
		Steps: []scenario.Step{
			{
				Actor: parties.Bob,
				Action: &scenario.Action{
					Kind: siren.Accept,
					AfterAction: func(ctx context.Context) error {
						calls = append(calls, "after")
						return nil
					},
				},
				WaitUntil: func(state siren.State) bool {
					calls = append(calls, "wait:"+state.String("communication", "status"))
					return true
				},
				Test: func(ctx context.Context, entity *siren.Entity) error {
					calls = append(calls, "test")
					return nil
				},
			},
		},
	}
	_, err := swap.Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"after", "wait:ACCEPTED", "test"}, calls)
}

func acceptRequest(parties scenario.Parties) scenario.Request {
	return scenario.NewRequest(parties.Alice, ledger.AssetBitcoin, big.NewInt(100_000_000), ledger.AssetEther, big.NewInt(5000), test.Network, parties.Peer)
}

func TestFailures(t *testing.T) {
	never := func(siren.State) bool { return false }

	tests := []struct {
		desc      string
		intercept func(role string, w http.ResponseWriter, r *http.Request) bool
		steps     func(parties scenario.Parties) []scenario.Step
		aliceUrl  string
		bobUrl    string
		index     int
		phase     scenario.Phase
		kind      scenario.ErrorKind
	}{
		{
			desc: "CreateRejected",
			intercept: func(role string, w http.ResponseWriter, r *http.Request) bool {
				if r.Method != http.MethodPost || r.URL.Path != cnd.Rfc003Path {
					return false
				}
				w.WriteHeader(http.StatusInternalServerError)
				return true
			},
			index: -1,
			phase: scenario.PhaseCreate,
			kind:  scenario.KindUnexpectedStatus,
		},
		{
			desc:     "AliceUnreachable",
			aliceUrl: "http://127.0.0.1:1",
			index:    -1,
			phase:    scenario.PhaseCreate,
			kind:     scenario.KindTransportError,
		},
		{
			desc:   "BobUnreachable",
			bobUrl: "http://127.0.0.1:1",
			index:  -1,
			phase:  scenario.PhaseDiscover,
			kind:   scenario.KindTransportError,
		},
		{
			desc: "ConnectionDroppedOnAction",
			intercept: func(role string, w http.ResponseWriter, r *http.Request) bool {
				if !strings.HasSuffix(r.URL.Path, "/accept") {
					return false
				}
				conn, _, err := w.(http.Hijacker).Hijack()
				if err == nil {
					_ = conn.Close()
				}
				return true
			},
			steps: func(parties scenario.Parties) []scenario.Step {
				return []scenario.Step{{Actor: parties.Bob, Action: &scenario.Action{Kind: siren.Accept}}}
			},
			index: 0,
			phase: scenario.PhaseAction,
			kind:  scenario.KindTransportError,
		},
		{
			desc: "DuplicateAction",
			intercept: func(role string, w http.ResponseWriter, r *http.Request) bool {
				if role != test.Bob || r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, cnd.Rfc003Path+"/") {
					return false
				}
				w.Header().Set("Content-Type", siren.ContentType)
				_, _ = w.Write([]byte(`{"properties": {"status": "IN_PROGRESS"}, "actions": [
					{"name": "accept", "href": "` + r.URL.Path + `/accept", "method": "POST"},
					{"name": "accept", "href": "` + r.URL.Path + `/accept-again", "method": "POST"}
				]}`))
				return true
			},
			steps: func(parties scenario.Parties) []scenario.Step {
				return []scenario.Step{{Actor: parties.Bob, Action: &scenario.Action{Kind: siren.Accept}}}
			},
			index: 0,
			phase: scenario.PhaseAction,
			kind:  scenario.KindProtocolViolation,
		},
		{
			desc: "ActionNotOffered",
			steps: func(parties scenario.Parties) []scenario.Step {
				return []scenario.Step{{Actor: parties.Alice, Action: &scenario.Action{Kind: siren.Redeem}}}
			},
			index: 0,
			phase: scenario.PhaseAction,
			kind:  scenario.KindActionNotOffered,
		},
		{
			desc: "UnrecognizedLedgerAction",
			intercept: func(role string, w http.ResponseWriter, r *http.Request) bool {
				if !strings.HasSuffix(r.URL.Path, "/fund") {
					return false
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"type": "bitcoin-teleport", "payload": {"network": "regtest"}}`))
				return true
			},
			steps: fundSteps,
			index: 1,
			phase: scenario.PhaseAction,
			kind:  scenario.KindUnrecognizedLedgerAction,
		},
		{
			desc: "MalformedLedgerAction",
			intercept: func(role string, w http.ResponseWriter, r *http.Request) bool {
				if !strings.HasSuffix(r.URL.Path, "/fund") {
					return false
				}
				_, _ = w.Write([]byte(`{"type": "bitcoin-send-amount-to-address", "payload": {"amount": "1", "network": "regtest"}}`))
				return true
			},
			steps: fundSteps,
			index: 1,
			phase: scenario.PhaseAction,
			kind:  scenario.KindMalformedLedgerAction,
		},
		{
			desc: "WaitTimeout",
			steps: func(parties scenario.Parties) []scenario.Step {
				return []scenario.Step{{Actor: parties.Bob, Action: &scenario.Action{Kind: siren.Accept}, WaitUntil: never}}
			},
			index: 0,
			phase: scenario.PhaseWait,
			kind:  scenario.KindTimeout,
		},
		{
			desc: "TestFails",
			steps: func(parties scenario.Parties) []scenario.Step {
				return []scenario.Step{{Actor: parties.Alice, Test: func(ctx context.Context, entity *siren.Entity) error {
					return errors.New("balance is off")
				}}}
			},
			index: 0,
			phase: scenario.PhaseTest,
			kind:  scenario.KindAssertionFailure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			env, parties := setup(t)
			env.Cnd.Intercept = tc.intercept
			if tc.aliceUrl != "" {
				parties.Alice = actor.New(test.Alice, &cnd.Api{URL: tc.aliceUrl}, env.Alice, actor.WithPoller(env.Poller()))
			}
			if tc.bobUrl != "" {
				parties.Bob = actor.New(test.Bob, &cnd.Api{URL: tc.bobUrl}, env.Bob, actor.WithPoller(env.Poller()))
			}

			swap := &scenario.Scenario{
				Name:     tc.desc,
				Create:   scenario.Creation{Actor: parties.Alice, Path: cnd.Rfc003Path, Request: acceptRequest(parties)},
				Discover: scenario.Discovery{Actor: parties.Bob, Protocol: scenario.Rfc003Protocol},
			}
			if tc.steps != nil {
				swap.Steps = tc.steps(parties)
			}

			_, err := swap.Run(t.Context())
			stepErr := requireStepError(t, err)
			require.Equal(t, tc.index, stepErr.Index)
			require.Equal(t, tc.phase, stepErr.Phase)
			require.Equal(t, tc.kind, stepErr.Kind)
			require.Equal(t, tc.kind, scenario.Classify(err))
		})
	}
}

func fundSteps(parties scenario.Parties) []scenario.Step {
	return []scenario.Step{
		{Actor: parties.Bob, Action: &scenario.Action{Kind: siren.Accept}},
		{Actor: parties.Alice, Action: &scenario.Action{Kind: siren.Fund}},
	}
}

func TestStepErrorMessage(t *testing.T) {
	_, parties := setup(t)
	swap := &scenario.Scenario{
		Name:     "message",
		Create:   scenario.Creation{Actor: parties.Alice, Path: cnd.Rfc003Path, Request: map[string]string{}},
		Discover: scenario.Discovery{Actor: parties.Bob},
	}
	_, err := swap.Run(t.Context())
	stepErr := requireStepError(t, err)
	require.NotNil(t, stepErr.Response)
	require.Equal(t, http.StatusBadRequest, stepErr.Response.StatusCode)
	require.Contains(t, err.Error(), "setup failed for alice in create phase (UnexpectedStatus)")
	require.Contains(t, err.Error(), "last response: POST")
}
