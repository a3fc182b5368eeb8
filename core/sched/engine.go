// Package sched implements the queue/charger scheduling engine: the user and
// charger state machines, the session lifecycle and the queue tick that
// assigns newly free chargers to waiting users.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chargeq/chargeq/core/model"
	"github.com/chargeq/chargeq/core/notify"
	"github.com/chargeq/chargeq/core/store"
	"github.com/chargeq/chargeq/infra/logger"
	"github.com/chargeq/chargeq/internal/eventbus"
)

// SessionRecorder receives session lifecycle points for long-term analytics.
// Recording is best effort; errors are logged, never propagated.
type SessionRecorder interface {
	RecordSessionStart(s model.Session) error
	RecordSessionEnd(s model.Session) error
}

// Engine owns the scheduling state machines for every location. It is safe
// for concurrent use: queue mutations are serialized per location and charger
// mutations per charger. Notification delivery happens off-lock and is fire
// and forget.
type Engine struct {
	store         store.Store
	notifier      notify.Notifier
	log           logger.Logger
	opTimeout     time.Duration
	notifyTimeout time.Duration
	now           func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	bus      eventbus.EventBus
	recorder SessionRecorder

	notifyWG sync.WaitGroup
}

// New creates an Engine. All three parameters are required; optional
// collaborators are attached with the Set methods.
func New(st store.Store, n notify.Notifier, log logger.Logger) (*Engine, error) {
	if st == nil || n == nil || log == nil {
		return nil, fmt.Errorf("sched: nil parameter provided to New")
	}
	return &Engine{
		store:         st,
		notifier:      n,
		log:           log,
		opTimeout:     5 * time.Second,
		notifyTimeout: 5 * time.Second,
		now:           time.Now,
		locks:         make(map[string]*sync.Mutex),
	}, nil
}

// SetEventBus configures the bus on which engine events are published.
func (e *Engine) SetEventBus(bus eventbus.EventBus) {
	e.mu.Lock()
	e.bus = bus
	e.mu.Unlock()
}

// SetSessionRecorder configures the analytics recorder for session points.
func (e *Engine) SetSessionRecorder(r SessionRecorder) {
	e.mu.Lock()
	e.recorder = r
	e.mu.Unlock()
}

// SetOperationTimeout bounds every persistence call made by the engine.
func (e *Engine) SetOperationTimeout(d time.Duration) {
	if d > 0 {
		e.opTimeout = d
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Close waits for in-flight notification deliveries to finish.
func (e *Engine) Close() error {
	e.notifyWG.Wait()
	return nil
}

// locationLock returns the mutex guarding a location's queue and charger
// assignment decisions.
func (e *Engine) locationLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// opCtx derives a bounded context for a persistence call.
func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opTimeout)
}

func (e *Engine) publish(ev eventbus.Event) {
	e.mu.Lock()
	bus := e.bus
	e.mu.Unlock()
	if bus != nil {
		bus.Publish(ev)
	}
}

func (e *Engine) sessionRecorder() SessionRecorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder
}
