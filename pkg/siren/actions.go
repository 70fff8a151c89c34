package siren

import (
	"errors"
	"fmt"
)

// ActionKind is the protocol defined name of an action a party may perform.
type ActionKind string

const (
	Accept  ActionKind = "accept"
	Decline ActionKind = "decline"
	Deploy  ActionKind = "deploy"
	Fund    ActionKind = "fund"
	Redeem  ActionKind = "redeem"
	Refund  ActionKind = "refund"
)

var (
	ErrActionNotOffered = errors.New("action not offered")
	// ErrDuplicateAction means the daemon broke the contract that action names are unique.
	ErrDuplicateAction = errors.New("action offered more than once")
)

func (entity *Entity) HasAction(kind ActionKind) bool {
	for _, action := range entity.Actions {
		if action.Name == string(kind) {
			return true
		}
	}
	return false
}

// FindAction returns the action named kind. It does not poll; callers
// wait for the action to be offered before looking it up.
func (entity *Entity) FindAction(kind ActionKind) (*Action, error) {
	var found *Action
	count := 0
	for i := range entity.Actions {
		if entity.Actions[i].Name != string(kind) {
			continue
		}
		count++
		if found == nil {
			found = &entity.Actions[i]
		}
	}
	switch {
	case found == nil:
		return nil, fmt.Errorf("%w: %s (offered: %v)", ErrActionNotOffered, kind, entity.ActionNames())
	case count > 1:
		return nil, fmt.Errorf("%w: %s offered %d times", ErrDuplicateAction, kind, count)
	}
	action := *found
	return &action, nil
}
