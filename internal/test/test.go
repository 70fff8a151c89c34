package test

import (
	"math/big"
	"testing"

	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/poll"
	"github.com/stretchr/testify/require"
)

// Token is the erc20 contract used by the fake cnd pair.
const Token = "0xB97048628DB6B661D4C2aA833e95Dbe1A905B280"

var (
	AliceBitcoin = big.NewInt(200_000_000)
	BobEther     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	BobTokens    = big.NewInt(10_000)
)

func InitLogger() {
	logger.Init(logger.Options{Level: "debug"})
}

// Env is a simulated swap environment: a World with funded wallets for
// alice and bob and the fake cnd instances of both.
type Env struct {
	Clock *Clock
	World *World
	Cnd   *FakeCnd

	Alice ledger.Wallets
	Bob   ledger.Wallets
}

func NewEnv(t *testing.T) *Env {
	InitLogger()
	clock := NewClock()
	world := NewWorld(clock)
	env := &Env{
		Clock: clock,
		World: world,
		Cnd:   NewFakeCnd(t, world),
		Alice: Wallets(world, Alice),
		Bob:   Wallets(world, Bob),
	}

	ctx := t.Context()
	require.NoError(t, env.Alice.Bitcoin.Fund(ctx, ledger.AssetBitcoin, AliceBitcoin))
	require.NoError(t, env.Bob.Ethereum.Fund(ctx, ledger.AssetEther, BobEther))
	require.NoError(t, env.Bob.Ethereum.Fund(ctx, ledger.Erc20(Token), BobTokens))
	return env
}

func (env *Env) Poller() *poll.Poller {
	return poll.NewPoller(env.Clock, 0)
}
