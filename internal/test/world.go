package test

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
)

const Network = "regtest"

// BitcoinFee is burned on every bitcoin payment made by a fake wallet.
const BitcoinFee = 1000

// Event is a single wallet operation observed by the World.
type Event struct {
	Type        ledger.ActionType
	Ledger      ledger.Ledger
	From        string
	To          string
	Amount      *big.Int
	Data        []byte
	Transaction *wire.MsgTx
	TxId        string
	Hash        string
}

// Listener reacts to wallet operations. An error fails the operation.
type Listener func(event Event) error

// World is a simulated set of ledgers shared by fake wallets. It keeps
// balances per identity and asset and lets listeners react to operations.
type World struct {
	lock      sync.Mutex
	clock     *Clock
	balances  map[string]map[string]*big.Int
	events    []Event
	listeners []Listener
	counter   uint64
	Blocks    int
}

func NewWorld(clock *Clock) *World {
	if clock == nil {
		clock = NewClock()
	}
	return &World{clock: clock, balances: make(map[string]map[string]*big.Int)}
}

func assetKey(asset ledger.Asset) string {
	return asset.String()
}

func (world *World) Subscribe(listener Listener) {
	world.lock.Lock()
	defer world.lock.Unlock()
	world.listeners = append(world.listeners, listener)
}

func (world *World) Events() []Event {
	world.lock.Lock()
	defer world.lock.Unlock()
	return append([]Event(nil), world.events...)
}

func (world *World) Balance(identity string, asset ledger.Asset) *big.Int {
	world.lock.Lock()
	defer world.lock.Unlock()
	return world.balance(identity, asset)
}

func (world *World) balance(identity string, asset ledger.Asset) *big.Int {
	if balance, ok := world.balances[identity][assetKey(asset)]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

func (world *World) Mint(identity string, asset ledger.Asset, amount *big.Int) {
	world.lock.Lock()
	defer world.lock.Unlock()
	world.credit(identity, asset, amount)
}

// Transfer moves amount and fails if from can not cover it.
func (world *World) Transfer(from string, to string, asset ledger.Asset, amount *big.Int) error {
	world.lock.Lock()
	defer world.lock.Unlock()
	return world.transfer(from, to, asset, amount)
}

func (world *World) transfer(from string, to string, asset ledger.Asset, amount *big.Int) error {
	if world.balance(from, asset).Cmp(amount) < 0 {
		return fmt.Errorf("insufficient %s balance of %s", asset, from)
	}
	world.credit(from, asset, new(big.Int).Neg(amount))
	world.credit(to, asset, amount)
	return nil
}

func (world *World) credit(identity string, asset ledger.Asset, amount *big.Int) {
	if world.balances[identity] == nil {
		world.balances[identity] = make(map[string]*big.Int)
	}
	key := assetKey(asset)
	current, ok := world.balances[identity][key]
	if !ok {
		current = new(big.Int)
	}
	world.balances[identity][key] = new(big.Int).Add(current, amount)
}

func (world *World) Now() time.Time {
	return world.clock.Now()
}

func (world *World) MineBlock() {
	world.lock.Lock()
	defer world.lock.Unlock()
	world.Blocks++
}

// nextHash returns a unique fake transaction id.
func (world *World) nextHash() chainhash.Hash {
	world.lock.Lock()
	defer world.lock.Unlock()
	world.counter++
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], world.counter)
	return chainhash.Hash(sha256.Sum256(raw[:]))
}

func (world *World) NextAddress() common.Address {
	hash := world.nextHash()
	return common.BytesToAddress(hash[:20])
}

// emit records event and runs the listeners outside of the lock so they can
// move balances.
func (world *World) emit(event Event) error {
	world.lock.Lock()
	world.events = append(world.events, event)
	listeners := append([]Listener(nil), world.listeners...)
	world.lock.Unlock()

	for _, listener := range listeners {
		if err := listener(event); err != nil {
			return err
		}
	}
	return nil
}
