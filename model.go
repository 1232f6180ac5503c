package transitions

import (
	"encoding/json"
	"sync/atomic"
)

// Model is a bindable unit of identity. Each model carries its own current
// state pointer and its own guard, so triggers on different models never
// contend while triggers on the same model are strictly serialized.
//
// The zero value is ready to bind. A bound model must not be copied; use
// Clone or a JSON round-trip to duplicate one.
type Model struct {
	current atomic.Pointer[State]
	guard   modelGuard

	// pending holds a state path restored by UnmarshalJSON or Clone before
	// the model is bound. Bind resolves it against the machine's tree.
	pending string
}

// NewModel returns an unbound model.
func NewModel() *Model { return &Model{} }

// State returns the canonical path of the model's current state. Unbound
// models report the restored path when one exists, otherwise "".
func (m *Model) State() string {
	if st := m.current.Load(); st != nil {
		return st.Path()
	}
	return m.pending
}

type modelSnapshot struct {
	State string `json:"state"`
}

// MarshalJSON serializes only the state path. The guard never travels: a
// deserialized model starts with a fresh, unheld lock regardless of what the
// source model was doing.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelSnapshot{State: m.State()})
}

// UnmarshalJSON restores the state path into an unbound model. Binding the
// model validates the path and installs the live state pointer.
func (m *Model) UnmarshalJSON(data []byte) error {
	var snap modelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	m.pending = normalizeName(snap.State)
	return nil
}

// Clone returns an unbound duplicate carrying the same state path, a fresh
// guard, and no scope registrations.
func (m *Model) Clone() *Model {
	return &Model{pending: m.State()}
}
