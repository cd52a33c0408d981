package state

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tagforge/plugman/internal/plugerr"
)

// State is a plugin lifecycle state
type State string

const (
	Discovered State = "DISCOVERED"
	Loaded     State = "LOADED"
	Enabled    State = "ENABLED"
	Disabled   State = "DISABLED"
	Error      State = "ERROR"
)

// Machine tracks one plugin's lifecycle state and enforces the legal
// transition edges. Every transition is logged with old and new state.
type Machine struct {
	id  string
	log *zap.Logger

	mu     sync.Mutex
	state  State
	reason string
}

// New creates a machine in the Discovered state
func New(id string, logger *zap.Logger) *Machine {
	return &Machine{id: id, log: logger, state: Discovered}
}

// Current returns the current state
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailureReason returns why the plugin entered Error, if it did
func (m *Machine) FailureReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// MarkLoaded records a successful load. Valid from Discovered, Disabled
// (no-op semantics aside, a reload re-validates) and Error (reload is the
// only way out of Error).
func (m *Machine) MarkLoaded() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Discovered, Disabled, Error, Loaded:
		m.transition(Loaded, "load")
		m.reason = ""
		return nil
	default:
		return &plugerr.StateError{ID: m.id, From: string(m.state), Event: "load",
			Message: "cannot reload while enabled"}
	}
}

// Enable moves Loaded or Disabled to Enabled. Double enable is rejected,
// not ignored, so callers notice their bookkeeping is off.
func (m *Machine) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Loaded, Disabled:
		m.transition(Enabled, "enable")
		return nil
	case Enabled:
		return &plugerr.StateError{ID: m.id, From: string(m.state), Event: "enable",
			Message: "already enabled"}
	case Error:
		return &plugerr.StateError{ID: m.id, From: string(m.state), Event: "enable",
			Message: "in error state, reload first: " + m.reason}
	default:
		return &plugerr.StateError{ID: m.id, From: string(m.state), Event: "enable",
			Message: "not loaded"}
	}
}

// Disable moves Enabled to Disabled; anything else is a rejection
func (m *Machine) Disable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Enabled {
		return &plugerr.StateError{ID: m.id, From: string(m.state), Event: "disable",
			Message: "not enabled"}
	}

	m.transition(Disabled, "disable")
	return nil
}

// Fail moves to Error from any state, recording the reason. Entered when
// manifest validation, API compatibility or module initialization fails.
func (m *Machine) Fail(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reason = reason
	m.transition(Error, "fail")
}

func (m *Machine) transition(to State, event string) {
	from := m.state
	m.state = to
	m.log.Info("plugin state transition",
		zap.String("plugin", m.id),
		zap.String("event", event),
		zap.String("old_state", string(from)),
		zap.String("new_state", string(to)),
	)
}
