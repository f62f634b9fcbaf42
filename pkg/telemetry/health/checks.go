package health

import (
	"context"
	"errors"
	"fmt"
)

// RuleSetSource is the part of the policy manager readiness depends on.
type RuleSetSource interface {
	Ready() bool
	LastLoadError() error
}

// RuleSetCheck passes once a rule set generation is live. A failed reload
// after that does not fail the check, since the previous generation keeps
// serving.
func RuleSetCheck(src RuleSetSource) CheckFunc {
	return func(context.Context) error {
		if src.Ready() {
			return nil
		}
		if err := src.LastLoadError(); err != nil {
			return fmt.Errorf("no rule set loaded: %w", err)
		}
		return errors.New("no rule set loaded")
	}
}

// Pinger is anything that can verify its backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger, such as an evidence store.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}
