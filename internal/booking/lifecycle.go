package booking

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("booking cannot move to the requested status")

// Action is a lifecycle operation requested by a user.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionAccept:   {from: []Status{StatusRequested}, to: StatusAccepted},
	ActionReject:   {from: []Status{StatusRequested}, to: StatusRejected},
	ActionCancel:   {from: []Status{StatusRequested, StatusAccepted}, to: StatusCancelled},
	ActionComplete: {from: []Status{StatusAccepted}, to: StatusCompleted},
}

// Next returns the status a booking in from moves to when action is applied.
// Terminal statuses have no way out.
func Next(from Status, action Action) (Status, error) {
	t, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	return "", fmt.Errorf("%w: cannot %s a %s booking", ErrInvalidTransition, action, from)
}
