// Package actor is one party of a swap: a cnd instance plus the wallets
// which execute the ledger actions it hands out.
package actor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/poll"
	"github.com/comit-network/swapharness/pkg/cnd"
	"github.com/comit-network/swapharness/pkg/siren"
)

const DefaultFeePerByte = 20

type Actor struct {
	name       string
	api        *cnd.Api
	wallets    ledger.Wallets
	dispatcher *ledger.Dispatcher
	poller     *poll.Poller
	log        *logger.Prefixed

	feePerByte uint64
	overrides  cnd.FieldValues
	alpha      ledger.Ledger
	beta       ledger.Ledger
}

type Option func(actor *Actor)

func WithPoller(poller *poll.Poller) Option {
	return func(actor *Actor) {
		actor.poller = poller
	}
}

func WithFeePerByte(fee uint64) Option {
	return func(actor *Actor) {
		actor.feePerByte = fee
	}
}

// WithFieldValues fills action fields by name, before any other resolution.
func WithFieldValues(values cnd.FieldValues) Option {
	return func(actor *Actor) {
		for name, value := range values {
			actor.overrides[name] = value
		}
	}
}

// WithLedgers tells the actor which ledgers alpha_ledger_* and beta_ledger_*
// fields refer to.
func WithLedgers(alpha ledger.Ledger, beta ledger.Ledger) Option {
	return func(actor *Actor) {
		actor.alpha = alpha
		actor.beta = beta
	}
}

// New makes no network calls.
func New(name string, api *cnd.Api, wallets ledger.Wallets, options ...Option) *Actor {
	actor := &Actor{
		name:       name,
		api:        api,
		wallets:    wallets,
		dispatcher: ledger.NewDispatcher(wallets),
		poller:     poll.DefaultPoller(),
		log:        logger.WithPrefix(name),
		feePerByte: DefaultFeePerByte,
		overrides:  make(cnd.FieldValues),
	}
	for _, option := range options {
		option(actor)
	}
	return actor
}

func (actor *Actor) Name() string {
	return actor.name
}

func (actor *Actor) Api() *cnd.Api {
	return actor.api
}

func (actor *Actor) Wallets() ledger.Wallets {
	return actor.wallets
}

func (actor *Actor) Poller() *poll.Poller {
	return actor.poller
}

func (actor *Actor) Log() *logger.Prefixed {
	return actor.log
}

// Identity of the wallet for ledger, empty if there is none.
func (actor *Actor) Identity(ledgerName ledger.Ledger) string {
	wallet, ok := actor.wallets.Get(ledgerName)
	if !ok {
		return ""
	}
	return wallet.Identity()
}

func (actor *Actor) Fetch(ctx context.Context, href string) (*siren.Entity, error) {
	return actor.api.Get(ctx, href)
}

// PollUntil fetches href until predicate holds for its representation.
func (actor *Actor) PollUntil(ctx context.Context, href string, predicate func(entity *siren.Entity) bool, timeout time.Duration) (*siren.Entity, error) {
	fetch := func(ctx context.Context) (*siren.Entity, error) {
		return actor.api.Get(ctx, href)
	}
	return poll.Until(ctx, actor.poller, fetch, predicate, timeout)
}

// PollForAction waits until href offers an action of kind and returns it.
func (actor *Actor) PollForAction(ctx context.Context, href string, kind siren.ActionKind, timeout time.Duration) (*siren.Action, *siren.Entity, error) {
	actor.log.Debugf("Waiting for action %s on %s", kind, href)
	entity, err := actor.PollUntil(ctx, href, func(entity *siren.Entity) bool {
		return entity.HasAction(kind)
	}, timeout)
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return nil, entity, fmt.Errorf("%w: %s: %w", siren.ErrActionNotOffered, kind, err)
		}
		return nil, entity, err
	}
	action, err := entity.FindAction(kind)
	return action, entity, err
}

// ResolveFields fills the fields of action from the wallets of the actor.
// Fields which can not be resolved are left out.
func (actor *Actor) ResolveFields(action *siren.Action) cnd.FieldValues {
	values := make(cnd.FieldValues)
	for _, field := range action.Fields {
		if value, ok := actor.overrides[field.Name]; ok {
			values[field.Name] = value
			continue
		}
		if value, ok := actor.resolveField(field); ok {
			values[field.Name] = value
			continue
		}
		actor.log.Warnf("Could not resolve field %s of action %s", field.Name, action.Name)
	}
	return values
}

func (actor *Actor) resolveField(field siren.Field) (any, bool) {
	for _, ledgerName := range []ledger.Ledger{ledger.Bitcoin, ledger.Ethereum, ledger.Lightning} {
		if field.HasClass(string(ledgerName)) && (field.HasClass("address") || field.HasClass("identity")) {
			identity := actor.Identity(ledgerName)
			return identity, identity != ""
		}
	}

	switch {
	case field.Name == "fee_per_byte" || field.Name == "fee_per_wu" || field.HasClass("feePerByte") || field.HasClass("feePerWU"):
		return actor.feePerByte, true
	case field.Name == "address":
		identity := actor.Identity(ledger.Bitcoin)
		return identity, identity != ""
	case strings.HasPrefix(field.Name, "alpha_ledger_") && strings.HasSuffix(field.Name, "_identity") && actor.alpha != "":
		identity := actor.Identity(actor.alpha)
		return identity, identity != ""
	case strings.HasPrefix(field.Name, "beta_ledger_") && strings.HasSuffix(field.Name, "_identity") && actor.beta != "":
		identity := actor.Identity(actor.beta)
		return identity, identity != ""
	}
	return nil, false
}

// Execute sends the request described by action without interpreting the response.
func (actor *Actor) Execute(ctx context.Context, action *siren.Action) (*cnd.Response, error) {
	values := actor.ResolveFields(action)
	actor.log.Debugf("Executing %s: %s %s", action.Name, action.HttpMethod(), action.Href)
	return actor.api.Execute(ctx, action, values)
}

// Dispatch executes the ledger action carried by response, if any.
func (actor *Actor) Dispatch(ctx context.Context, response *cnd.Response) (*ledger.Outcome, error) {
	outcome, err := actor.dispatcher.DispatchBody(ctx, response.Body)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		actor.log.Infof("Executed ledger action %s", outcome)
	}
	return outcome, nil
}

// DoAction executes action, checks the response with check (ExpectSuccess if
// nil) and dispatches the ledger action in the response.
func (actor *Actor) DoAction(ctx context.Context, action *siren.Action, check cnd.ResponseCheck) (*cnd.Response, *ledger.Outcome, error) {
	if check == nil {
		check = cnd.ExpectSuccess
	}
	response, err := actor.Execute(ctx, action)
	if err != nil {
		return nil, nil, err
	}
	if err := check(response); err != nil {
		return response, nil, err
	}
	outcome, err := actor.Dispatch(ctx, response)
	return response, outcome, err
}

// CreateSwap posts request to path and expects 201 Created with a Location.
func (actor *Actor) CreateSwap(ctx context.Context, path string, request any) (string, *cnd.Response, error) {
	response, err := actor.api.CreateSwap(ctx, path, request)
	if err != nil {
		return "", nil, err
	}
	if err := cnd.ExpectStatus(http.StatusCreated)(response); err != nil {
		return "", response, err
	}
	location := response.Location()
	if location == "" {
		return "", response, fmt.Errorf("%w: swap was created without a Location header", cnd.ErrUnexpectedStatus)
	}
	actor.log.Infof("Created swap %s", location)
	return location, response, nil
}

// DiscoverSwap waits until the swap list is not empty and returns its first
// entry together with the self link of it.
func (actor *Actor) DiscoverSwap(ctx context.Context, timeout time.Duration) (string, *siren.SubEntity, *siren.Entity, error) {
	list, err := actor.PollUntil(ctx, cnd.SwapsPath, func(entity *siren.Entity) bool {
		return len(entity.Entities) > 0
	}, timeout)
	if err != nil {
		return "", nil, list, err
	}
	swap := list.Entities[0]
	href, ok := swap.SelfLink()
	if !ok {
		return "", &swap, list, errors.New("discovered swap has no self link")
	}
	actor.log.Infof("Discovered swap %s", href)
	return href, &swap, list, nil
}
