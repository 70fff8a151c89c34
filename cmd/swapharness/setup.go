package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/comit-network/swapharness/internal/actor"
	"github.com/comit-network/swapharness/internal/bitcoin"
	"github.com/comit-network/swapharness/internal/config"
	"github.com/comit-network/swapharness/internal/ethereum"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/lnd"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/scenario"
	"github.com/comit-network/swapharness/pkg/cnd"
)

// gas is what every actor gets on top of the swapped ether to pay for its transactions.
var gas = new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)

type party struct {
	name    string
	options config.ActorOptions

	actor     *actor.Actor
	bitcoin   *bitcoin.Wallet
	ethereum  *ethereum.Wallet
	lightning *lnd.LND
	instance  *lnd.Instance
}

type environment struct {
	cfg   *config.Config
	alice *party
	bob   *party
	peer  scenario.Peer
}

func setup(ctx context.Context, cfg *config.Config) (*environment, error) {
	env := &environment{
		cfg:   cfg,
		alice: &party{name: "alice", options: cfg.Alice},
		bob:   &party{name: "bob", options: cfg.Bob},
	}

	if cfg.Ethereum.FunderKey == "" {
		return env, errors.New("ethereum funder key must be set")
	}
	client, err := ethereum.Dial(ctx, cfg.Ethereum)
	if err != nil {
		return env, err
	}
	funderKey, err := ethereum.ParseKey(cfg.Ethereum.FunderKey)
	if err != nil {
		return env, fmt.Errorf("invalid ethereum funder key: %w", err)
	}
	funder, err := ethereum.New(ctx, client, funderKey, cfg.Ethereum)
	if err != nil {
		return env, err
	}

	eg, groupCtx := errgroup.WithContext(ctx)
	for _, member := range []*party{env.alice, env.bob} {
		eg.Go(func() error {
			return env.setupParty(groupCtx, member, client, funder)
		})
	}
	if err := eg.Wait(); err != nil {
		return env, err
	}

	env.peer, err = scenario.PeerOf(ctx, env.bob.actor)
	return env, err
}

func (env *environment) setupParty(ctx context.Context, party *party, client ethereum.Client, funder *ethereum.Wallet) (err error) {
	cfg := env.cfg
	party.bitcoin, err = bitcoin.New(cfg.Bitcoin, party.options.BitcoinWallet)
	if err != nil {
		return err
	}
	if err := party.bitcoin.Setup(ctx); err != nil {
		return err
	}

	var key *ecdsa.PrivateKey
	if party.options.EthereumKey != "" {
		key, err = ethereum.ParseKey(party.options.EthereumKey)
		if err != nil {
			return fmt.Errorf("invalid ethereum key of %s: %w", party.name, err)
		}
	}
	party.ethereum, err = ethereum.New(ctx, client, key, cfg.Ethereum, ethereum.WithFunder(funder))
	if err != nil {
		return err
	}

	wallets := ledger.Wallets{Bitcoin: party.bitcoin, Ethereum: party.ethereum}
	if party.options.HasLightning() {
		if err := party.connectLnd(ctx, cfg); err != nil {
			return err
		}
		wallets.Lightning = party.lightning
	}

	actorOptions := []actor.Option{actor.WithLedgers(ledger.Bitcoin, ledger.Ethereum)}
	if party.options.FeePerByte > 0 {
		actorOptions = append(actorOptions, actor.WithFeePerByte(party.options.FeePerByte))
	}
	party.actor = actor.New(party.name, &cnd.Api{
		URL:    party.options.Cnd,
		Client: http.Client{Timeout: cfg.RequestTimeout},
	}, wallets, actorOptions...)

	info, err := party.actor.Api().GetInfo(ctx)
	if err != nil {
		return fmt.Errorf("cnd of %s is not reachable: %w", party.name, err)
	}
	logger.Infof("cnd of %s is %s", party.name, info.Id)
	return nil
}

func (party *party) connectLnd(ctx context.Context, cfg *config.Config) error {
	client := &party.options.Lnd
	if party.options.SpawnsLnd() {
		party.instance = lnd.NewInstance(party.options.Spawn, cfg.DataDir, nil)
		if err := party.instance.Start(ctx); err != nil {
			return fmt.Errorf("could not start lnd of %s: %w", party.name, err)
		}
		client = party.instance.Client()
	}
	client.Faucet = party.bitcoin
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("could not connect to lnd of %s: %w", party.name, err)
	}
	party.lightning = client
	return nil
}

// Fund gives alice the bitcoin and bob the beta asset of the swap, plus
// ether for gas to both.
func (env *environment) Fund(ctx context.Context, amounts scenario.Amounts) error {
	bitcoinAmount := new(big.Int).Mul(amounts.Bitcoin, big.NewInt(2))
	if err := env.alice.bitcoin.Fund(ctx, ledger.AssetBitcoin, bitcoinAmount); err != nil {
		return err
	}

	bobEther := new(big.Int).Set(gas)
	if amounts.Token == "" {
		bobEther.Add(bobEther, amounts.Beta)
	} else if err := env.bob.ethereum.Fund(ctx, ledger.Erc20(amounts.Token), amounts.Beta); err != nil {
		return err
	}
	if err := env.bob.ethereum.Fund(ctx, ledger.AssetEther, bobEther); err != nil {
		return err
	}
	return env.alice.ethereum.Fund(ctx, ledger.AssetEther, gas)
}

func (env *environment) Parties() scenario.Parties {
	return scenario.Parties{
		Alice: env.alice.actor,
		Bob:   env.bob.actor,
		Peer:  env.peer,
		MineBlock: func(ctx context.Context) error {
			return env.bob.bitcoin.MineBlocks(ctx, 1)
		},
	}
}

// Close disconnects from lnd, stops spawned instances and the bitcoind clients.
func (env *environment) Close() error {
	var result *multierror.Error
	var instances []*lnd.Instance
	for _, member := range []*party{env.alice, env.bob} {
		if member.lightning != nil {
			if err := member.lightning.Disconnect(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if member.instance != nil {
			instances = append(instances, member.instance)
		}
		if member.bitcoin != nil {
			member.bitcoin.Shutdown()
		}
	}
	if err := lnd.StopAll(instances...); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
