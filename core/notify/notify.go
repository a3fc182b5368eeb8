// Package notify defines the push notification contract. Delivery is best
// effort: the engine logs failures and never propagates them.
package notify

import (
	"context"

	"github.com/chargeq/chargeq/core/model"
)

// Notifier delivers a push notification to a user.
type Notifier interface {
	Notify(ctx context.Context, user model.User, title, body string) error
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(context.Context, model.User, string, string) error { return nil }
