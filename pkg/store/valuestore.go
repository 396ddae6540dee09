package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/canview/canview/pkg/schema"
)

var ErrUnknownMessage = errors.New("message not declared in any tracked database")
var ErrUnknownSignal = errors.New("signal not declared on message")

type messageKey struct {
	database string
	message  string
}

// ValueStore holds the last known value set for every declared
// message. All signals of one message share one map so that a
// partial edit preserves the other signals' values when encoding.
// Values are seeded with schema derived sound defaults.
//
// Accesses are serialized with a coarse lock : RX decode updates,
// user edits and periodic sender snapshots all go through it,
// contention is negligible at typical message update rates.
type ValueStore struct {
	mu     sync.Mutex
	store  *schema.Store
	values map[messageKey]schema.ValueMap
}

func NewValueStore(s *schema.Store) *ValueStore {
	v := &ValueStore{
		store:  s,
		values: make(map[messageKey]schema.ValueMap),
	}
	for _, provider := range s.Providers() {
		for _, message := range provider.Messages() {
			key := messageKey{database: provider.Name(), message: message.Name}
			v.values[key] = message.DefaultValues()
		}
	}
	return v
}

// Update mutates the stored value for a given signal. The rest of
// the message's value map is left untouched.
func (v *ValueStore) Update(id SignalID, value schema.Value) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	values, ok := v.values[messageKey{database: id.Database, message: id.Message}]
	if !ok {
		return fmt.Errorf("%w : %v/%v", ErrUnknownMessage, id.Database, id.Message)
	}
	if _, ok := values[id.Signal]; !ok {
		return fmt.Errorf("%w : %v", ErrUnknownSignal, id)
	}
	values[id.Signal] = value
	return nil
}

// Apply merges a decoded value set into the message's stored values,
// used on the RX path. Unknown messages are ignored silently, a
// decode for an undeclared message cannot happen on this side.
func (v *ValueStore) Apply(database string, message string, decoded schema.ValueMap) {
	v.mu.Lock()
	defer v.mu.Unlock()
	values, ok := v.values[messageKey{database: database, message: message}]
	if !ok {
		return
	}
	for name, value := range decoded {
		values[name] = value
	}
}

// Values returns a snapshot copy of the message's current value map.
func (v *ValueStore) Values(database string, message string) (schema.ValueMap, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	values, ok := v.values[messageKey{database: database, message: message}]
	if !ok {
		return nil, false
	}
	return values.Clone(), true
}

// Signal returns the current value of a single signal.
func (v *ValueStore) Signal(id SignalID) (schema.Value, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	values, ok := v.values[messageKey{database: id.Database, message: id.Message}]
	if !ok {
		return nil, false
	}
	value, ok := values[id.Signal]
	return value, ok
}
