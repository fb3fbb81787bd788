package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
)

// Store persists the last committed state.
type Store interface {
	// Load returns the persisted state, or found=false when none exists.
	Load(ctx context.Context) (state State, found bool, err error)
	Save(ctx context.Context, state State, actor string) error
}

// Change describes one observed state change.
type Change struct {
	From     State     `json:"from"`
	To       State     `json:"to"`
	Actor    string    `json:"actor,omitempty"`
	Override bool      `json:"override,omitempty"`
	At       time.Time `json:"at"`
}

// Observer is called after every state change, including transit states
// and reverts. It runs with the actuation lock held and must not block.
type Observer func(Change)

// Machine is the gate state machine. Create one per physical gate.
type Machine struct {
	actMu sync.Mutex

	stateMu sync.RWMutex
	state   State

	store  Store
	logger *logging.Logger
	now    func() time.Time

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObsID int
}

// NewMachine restores or assumes the initial state according to initial
// (config.InitialStateClosed or config.InitialStateRestore). store may be
// nil for an in-memory machine.
func NewMachine(ctx context.Context, store Store, initial string, logger *logging.Logger) (*Machine, error) {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Machine{
		state:     Closed,
		store:     store,
		logger:    logger.With("component", "gate"),
		now:       time.Now,
		observers: make(map[int]Observer),
	}

	if store == nil {
		return m, nil
	}

	persisted, found, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading persisted gate state: %w", err)
	}

	switch initial {
	case config.InitialStateRestore:
		if found {
			m.state = persisted
		}
		m.logger.Info("gate state restored", "state", m.state, "persisted", found)
	case config.InitialStateClosed, "":
		if found && persisted != Closed {
			m.logger.Warn("assuming gate closed but last committed state differs; use the override if the gate is open",
				"persisted", persisted)
		}
	default:
		return nil, fmt.Errorf("unknown initial state mode %q", initial)
	}

	return m, nil
}

// State returns the current logical state without waiting for a pulse.
func (m *Machine) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Toggle runs read-state, pulse, commit under the actuation lock. The
// transit state is visible while pulse runs. When pulse fails the previous
// state is restored and the pulse error is returned unchanged.
//
// The returned Change spans the whole toggle: From is the settled state the
// pulse started from and To is the committed state. On error To equals From.
//
// pulse receives ctx as given; callers that must not cut a pulse short
// pass a context detached from the request.
func (m *Machine) Toggle(ctx context.Context, actor string, pulse func(context.Context) error) (Action, Change, error) {
	m.actMu.Lock()
	defer m.actMu.Unlock()

	from := m.State()
	result := Change{From: from, To: from, Actor: actor}
	next, action, actuate, err := Apply(from, CommandToggle)
	if err != nil {
		result.At = m.now().UTC()
		return "", result, err
	}

	prev := from
	if actuate {
		transit := transitTo(next)
		m.set(Change{From: from, To: transit, Actor: actor})

		if err := pulse(ctx); err != nil {
			reverted := m.set(Change{From: transit, To: from, Actor: actor})
			m.logger.Warn("pulse failed, state unchanged", "state", from, "actor", actor, "error", err)
			result.At = reverted.At
			return "", result, err
		}
		prev = transit
	}

	committed := m.set(Change{From: prev, To: next, Actor: actor})
	m.persist(ctx, next, actor)
	m.logger.Info("gate toggled", "action", action, "state", next, "actor", actor)
	result.To, result.At = next, committed.At
	return action, result, nil
}

// SetState records desired without pulsing the relay. Only Open and
// Closed are accepted.
func (m *Machine) SetState(ctx context.Context, actor string, desired State) (Change, error) {
	if !desired.Settled() {
		return Change{}, fmt.Errorf("%w: %s", ErrInvalidState, desired)
	}

	m.actMu.Lock()
	defer m.actMu.Unlock()
	return m.override(ctx, actor, desired), nil
}

// FlipState records the opposite of the current state without pulsing.
func (m *Machine) FlipState(ctx context.Context, actor string) (Change, error) {
	m.actMu.Lock()
	defer m.actMu.Unlock()

	desired := Open
	if m.State() == Open {
		desired = Closed
	}
	return m.override(ctx, actor, desired), nil
}

// override commits desired. Callers hold actMu.
func (m *Machine) override(ctx context.Context, actor string, desired State) Change {
	change := Change{From: m.State(), To: desired, Actor: actor, Override: true}
	change = m.set(change)
	m.persist(ctx, desired, actor)
	m.logger.Info("gate state overridden", "from", change.From, "to", change.To, "actor", actor)
	return change
}

// Subscribe registers fn for every change and returns a function that
// removes it.
func (m *Machine) Subscribe(fn Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Machine) set(change Change) Change {
	change.At = m.now().UTC()

	m.stateMu.Lock()
	m.state = change.To
	m.stateMu.Unlock()

	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, fn := range m.observers {
		fn(change)
	}
	return change
}

// persist saves a committed state. A failure is logged only: the relay has
// already moved, so the logical state must follow it.
func (m *Machine) persist(ctx context.Context, state State, actor string) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, state, actor); err != nil {
		m.logger.Error("persisting gate state failed", "state", state, "error", err)
	}
}
