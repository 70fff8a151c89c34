// Package scenario drives two actors through a swap step by step and checks
// that both reach the expected state after every step.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comit-network/swapharness/internal/actor"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/pkg/cnd"
	"github.com/comit-network/swapharness/pkg/siren"
)

type Timeouts struct {
	Discovery       time.Duration `long:"timeouts.discovery" description:"How long the responder waits for the swap to show up" toml:"discovery"`
	ActionDiscovery time.Duration `long:"timeouts.action" description:"How long to wait for an action to be offered" toml:"action"`
	Execute         time.Duration `long:"timeouts.execute" description:"How long executing an action and its ledger action may take" toml:"execute"`
	Refund          time.Duration `long:"timeouts.refund" description:"How long executing a refund may take" toml:"refund"`
	Wait            time.Duration `long:"timeouts.wait" description:"How long to wait for a state predicate" toml:"wait"`
	Test            time.Duration `long:"timeouts.test" description:"How long a test callback may take" toml:"test"`
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Discovery:       10 * time.Second,
		ActionDiscovery: 5 * time.Second,
		Execute:         5 * time.Second,
		Refund:          30 * time.Second,
		Wait:            10 * time.Second,
		Test:            10 * time.Second,
	}
}

func (timeouts Timeouts) withDefaults() Timeouts {
	defaults := DefaultTimeouts()
	set := func(value *time.Duration, fallback time.Duration) {
		if *value <= 0 {
			*value = fallback
		}
	}
	set(&timeouts.Discovery, defaults.Discovery)
	set(&timeouts.ActionDiscovery, defaults.ActionDiscovery)
	set(&timeouts.Execute, defaults.Execute)
	set(&timeouts.Refund, defaults.Refund)
	set(&timeouts.Wait, defaults.Wait)
	set(&timeouts.Test, defaults.Test)
	return timeouts
}

type Action struct {
	Kind siren.ActionKind
	// Check asserts the status of the action response; cnd.ExpectSuccess if nil.
	Check cnd.ResponseCheck
	// Outcome inspects the result of the ledger action, if there was one.
	Outcome func(outcome *ledger.Outcome) error
	// AfterAction runs once the ledger action completed, e.g. to mine a block.
	AfterAction func(ctx context.Context) error
}

// Step is executed in the order action, wait, test. Every part is optional.
type Step struct {
	Actor     *actor.Actor
	Action    *Action
	WaitUntil func(state siren.State) bool
	Test      func(ctx context.Context, entity *siren.Entity) error
}

type Creation struct {
	Actor   *actor.Actor
	Path    string
	Request any
}

type Discovery struct {
	Actor *actor.Actor
	// Protocol and Status are checked on the discovered swap if set.
	Protocol string
	Status   string
}

type Scenario struct {
	Name     string
	Create   Creation
	Discover Discovery
	Steps    []Step
	Timeouts Timeouts
}

type runner struct {
	scenario  *Scenario
	timeouts  Timeouts
	locations *Locations
}

// Run executes the scenario and stops at the first failure, which is always
// a *StepError. Nothing is rolled back.
func (scenario *Scenario) Run(ctx context.Context) (*Locations, error) {
	run := &runner{
		scenario:  scenario,
		timeouts:  scenario.Timeouts.withDefaults(),
		locations: NewLocations(),
	}

	logger.Infof("Running scenario %s", scenario.Name)
	if err := run.create(ctx); err != nil {
		return run.locations, err
	}
	if err := run.discover(ctx); err != nil {
		return run.locations, err
	}
	for index := range scenario.Steps {
		if err := run.step(ctx, index); err != nil {
			logger.Errorf("Scenario %s failed: %v", scenario.Name, err)
			return run.locations, err
		}
	}
	logger.Infof("Scenario %s passed", scenario.Name)
	return run.locations, nil
}

func stepError(index int, actorName string, phase Phase, err error) *StepError {
	stepErr := &StepError{Index: index, Actor: actorName, Phase: phase, Kind: Classify(err), Err: err}
	var statusErr *cnd.UnexpectedStatusError
	if errors.As(err, &statusErr) {
		stepErr.Response = statusErr.Response
	}
	return stepErr
}

func (run *runner) create(ctx context.Context) error {
	creation := run.scenario.Create
	location, response, err := creation.Actor.CreateSwap(ctx, creation.Path, creation.Request)
	if err != nil {
		stepErr := stepError(-1, creation.Actor.Name(), PhaseCreate, err)
		stepErr.Response = response
		return stepErr
	}
	if err := run.locations.Set(creation.Actor.Name(), location); err != nil {
		return stepError(-1, creation.Actor.Name(), PhaseCreate, err)
	}
	return nil
}

func (run *runner) discover(ctx context.Context) error {
	discovery := run.scenario.Discover
	name := discovery.Actor.Name()

	href, swap, list, err := discovery.Actor.DiscoverSwap(ctx, run.timeouts.Discovery)
	if err != nil {
		stepErr := stepError(-1, name, PhaseDiscover, err)
		stepErr.Last = list
		return stepErr
	}

	if discovery.Protocol != "" || discovery.Status != "" {
		// list entries are either embedded representations or links
		entity := &siren.Entity{Class: swap.Class, Properties: swap.Properties, Links: swap.Links}
		if swap.IsLink() {
			entity, err = discovery.Actor.Fetch(ctx, href)
			if err != nil {
				return stepError(-1, name, PhaseDiscover, err)
			}
		}
		for _, check := range [][2]string{{"protocol", discovery.Protocol}, {"status", discovery.Status}} {
			if err := checkProperty(entity, check[0], check[1]); err != nil {
				stepErr := stepError(-1, name, PhaseDiscover, err)
				stepErr.Last = list
				return stepErr
			}
		}
	}

	if err := run.locations.Set(name, href); err != nil {
		return stepError(-1, name, PhaseDiscover, err)
	}
	return nil
}

func checkProperty(entity *siren.Entity, name string, expected string) error {
	if expected == "" {
		return nil
	}
	if actual := entity.Properties.String(name); actual != expected {
		return fmt.Errorf("%w: expected %s %s, got %q", ErrAssertion, name, expected, actual)
	}
	return nil
}

func (run *runner) step(ctx context.Context, index int) error {
	step := run.scenario.Steps[index]
	name := step.Actor.Name()

	href, ok := run.locations.Get(name)
	if !ok {
		return stepError(index, name, PhaseAction, fmt.Errorf("%s has no swap location", name))
	}

	if step.Action != nil {
		if err := run.action(ctx, index, step, href); err != nil {
			return err
		}
	}

	if step.WaitUntil != nil {
		step.Actor.Log().Debugf("Step %d: waiting for state", index)
		entity, err := step.Actor.PollUntil(ctx, href, func(entity *siren.Entity) bool {
			return step.WaitUntil(entity.State())
		}, run.timeouts.Wait)
		if err != nil {
			stepErr := stepError(index, name, PhaseWait, err)
			stepErr.Last = entity
			return stepErr
		}
	}

	if step.Test != nil {
		testCtx, cancel := context.WithTimeout(ctx, run.timeouts.Test)
		defer cancel()

		entity, err := step.Actor.Fetch(testCtx, href)
		if err != nil {
			return stepError(index, name, PhaseTest, err)
		}
		if err := step.Test(testCtx, entity); err != nil {
			if Classify(err) == KindOther {
				err = fmt.Errorf("%w: %w", ErrAssertion, err)
			}
			stepErr := stepError(index, name, PhaseTest, err)
			stepErr.Last = entity
			return stepErr
		}
	}

	return nil
}

func (run *runner) action(ctx context.Context, index int, step Step, href string) error {
	kind := step.Action.Kind
	name := step.Actor.Name()

	action, entity, err := step.Actor.PollForAction(ctx, href, kind, run.timeouts.ActionDiscovery)
	if err != nil {
		stepErr := stepError(index, name, PhaseAction, err)
		stepErr.Last = entity
		return stepErr
	}

	timeout := run.timeouts.Execute
	if kind == siren.Refund {
		timeout = run.timeouts.Refund
	}
	executeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	step.Actor.Log().Infof("Step %d: %s", index, kind)
	response, outcome, err := step.Actor.DoAction(executeCtx, action, step.Action.Check)
	if err != nil {
		stepErr := stepError(index, name, PhaseAction, err)
		stepErr.Last = entity
		if stepErr.Response == nil {
			stepErr.Response = response
		}
		return stepErr
	}

	if step.Action.Outcome != nil {
		if err := step.Action.Outcome(outcome); err != nil {
			stepErr := stepError(index, name, PhaseAction, fmt.Errorf("%w: ledger action outcome: %w", ErrAssertion, err))
			stepErr.Response = response
			return stepErr
		}
	}

	if step.Action.AfterAction != nil {
		if err := step.Action.AfterAction(executeCtx); err != nil {
			return stepError(index, name, PhaseAction, err)
		}
	}
	return nil
}
