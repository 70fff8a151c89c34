package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/poll"
	"github.com/comit-network/swapharness/pkg/cnd"
	"github.com/comit-network/swapharness/pkg/siren"
)

var ErrAssertion = errors.New("scenario assertion failed")

type ErrorKind string

const (
	KindTimeout                  ErrorKind = "Timeout"
	KindTransportError           ErrorKind = "TransportError"
	KindActionNotOffered         ErrorKind = "ActionNotOffered"
	KindUnexpectedStatus         ErrorKind = "UnexpectedStatus"
	KindMalformedLedgerAction    ErrorKind = "MalformedLedgerAction"
	KindUnrecognizedLedgerAction ErrorKind = "UnrecognizedLedgerAction"
	KindAssertionFailure         ErrorKind = "ScenarioAssertionFailure"
	KindProtocolViolation        ErrorKind = "ProtocolViolation"
	KindOther                    ErrorKind = "Other"
)

// Classify maps err to the most specific kind. A timeout while waiting for
// an action is reported as ActionNotOffered.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, siren.ErrActionNotOffered):
		return KindActionNotOffered
	case errors.Is(err, siren.ErrDuplicateAction):
		return KindProtocolViolation
	case errors.Is(err, cnd.ErrUnexpectedStatus):
		return KindUnexpectedStatus
	case errors.Is(err, ledger.ErrMalformedLedgerAction):
		return KindMalformedLedgerAction
	case errors.Is(err, ledger.ErrUnrecognizedLedgerAction):
		return KindUnrecognizedLedgerAction
	case errors.Is(err, ErrAssertion):
		return KindAssertionFailure
	case errors.Is(err, poll.ErrTransport), errors.Is(err, cnd.ErrTransport):
		return KindTransportError
	case errors.Is(err, poll.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindOther
}

type Phase string

const (
	PhaseCreate   Phase = "create"
	PhaseDiscover Phase = "discover"
	PhaseAction   Phase = "action"
	PhaseWait     Phase = "wait"
	PhaseTest     Phase = "test"
)

// StepError is the single failure of a scenario run. Index is -1 for the
// create and discover phases.
type StepError struct {
	Index    int
	Actor    string
	Phase    Phase
	Kind     ErrorKind
	Err      error
	Last     *siren.Entity
	Response *cnd.Response
}

func (e *StepError) Error() string {
	step := "setup"
	if e.Index >= 0 {
		step = fmt.Sprintf("step %d", e.Index)
	}
	message := fmt.Sprintf("%s failed for %s in %s phase (%s): %v", step, e.Actor, e.Phase, e.Kind, e.Err)
	if e.Last != nil {
		message += "\nlast representation: " + e.Last.String()
	}
	if e.Response != nil {
		message += "\nlast response: " + e.Response.String()
	}
	return message
}

func (e *StepError) Unwrap() error {
	return e.Err
}
