package feed

import (
	"context"
	"encoding/json"
)

// State of a feed subscription.
type State string

const (
	StatePending    State = "pending"
	StateSubscribed State = "subscribed"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// Handler receives one raw ChangeEvent payload. Deliveries of one subscription are sequential.
type Handler func(ctx context.Context, raw []byte) error

// StateFunc observes subscription lifecycle transitions. err is set only with StateError.
type StateFunc func(state State, err error)

type Subscription interface {
	// Unsubscribe is idempotent.
	Unsubscribe()
	// Alive reports whether the underlying transport is still connected.
	Alive() bool
}

// Feed is a remote change feed keyed by table name.
type Feed interface {
	Subscribe(ctx context.Context, tables []string, onEvent Handler, onState StateFunc) (Subscription, error)
}

// tableOf peeks the table of a payload; ok is false when the payload cannot be read.
func tableOf(raw []byte) (string, bool) {
	var head struct {
		Table string `json:"table"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", false
	}
	return head.Table, true
}

func watches(tables []string, table string) bool {
	for _, t := range tables {
		if t == table {
			return true
		}
	}
	return false
}
