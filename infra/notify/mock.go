package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/chargeq/chargeq/core/model"
)

// Delivery is one recorded notification.
type Delivery struct {
	Username string
	Title    string
	Body     string
}

// MockNotifier records notifications for tests. Usernames listed in Fail
// produce a delivery error.
type MockNotifier struct {
	mu         sync.Mutex
	Deliveries []Delivery
	Fail       map[string]bool
}

// NewMockNotifier creates an empty MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Fail: make(map[string]bool)}
}

func (m *MockNotifier) Notify(_ context.Context, user model.User, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail[user.Username] {
		return fmt.Errorf("delivery to %s failed", user.Username)
	}
	m.Deliveries = append(m.Deliveries, Delivery{Username: user.Username, Title: title, Body: body})
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (m *MockNotifier) Sent() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.Deliveries...)
}
