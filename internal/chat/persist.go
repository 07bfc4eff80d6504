package chat

import (
	"context"
	"time"
)

type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// PersistPolicy decides which turns of a finished stream get stored.
type PersistPolicy interface {
	Turns(outcome Outcome, input, reply string) []Turn
}

// CompleteOnly stores the exchange only when the stream finished.
type CompleteOnly struct{}

func (CompleteOnly) Turns(outcome Outcome, input, reply string) []Turn {
	if outcome != OutcomeComplete {
		return nil
	}
	return []Turn{{Role: RoleUser, Content: input}, {Role: RoleAssistant, Content: reply}}
}

// SavePartial also keeps the user turn and whatever text arrived before a
// cancellation. Provider failures still store nothing.
type SavePartial struct{}

func (SavePartial) Turns(outcome Outcome, input, reply string) []Turn {
	switch outcome {
	case OutcomeComplete:
		return []Turn{{Role: RoleUser, Content: input}, {Role: RoleAssistant, Content: reply}}
	case OutcomeCancelled:
		turns := []Turn{{Role: RoleUser, Content: input}}
		if reply != "" {
			turns = append(turns, Turn{Role: RoleAssistant, Content: reply})
		}
		return turns
	default:
		return nil
	}
}

func PolicyFor(savePartial bool) PersistPolicy {
	if savePartial {
		return SavePartial{}
	}
	return CompleteOnly{}
}

// RetrySink takes turns that could not be stored so they can be applied
// later. at is the time the exchange was first written.
type RetrySink interface {
	EnqueuePersist(ctx context.Context, sessionID string, at time.Time, turns []Turn) error
}
