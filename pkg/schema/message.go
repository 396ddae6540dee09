package schema

import (
	"errors"
	"fmt"
	"time"
)

var ErrPayloadTooShort = errors.New("payload too short")
var ErrDuplicateSignal = errors.New("duplicate signal")
var ErrUnknownSelector = errors.New("multiplex selector not declared")

// A multiplex group descriptor. Groups live in a flat arena on the
// message, parents always precede their children.
type MuxGroup struct {
	Selector string // name of the signal selecting this group
	Parent   int    // arena index of the enclosing group, -1 at top level
}

// A Message is one declared frame layout : identifier, payload size
// and the signal tree including multiplex groups.
type Message struct {
	Name      string
	FrameID   uint32
	Length    uint8 // payload size in bytes
	Extended  bool
	CycleTime time.Duration // zero when the message is not periodic
	Senders   []string

	Signals   []*Signal
	MuxGroups []MuxGroup

	byName     map[string]*Signal
	groupIndex map[string]int
}

func NewMessage(name string, frameId uint32, length uint8) *Message {
	return &Message{
		Name:       name,
		FrameID:    frameId,
		Length:     length,
		byName:     make(map[string]*Signal),
		groupIndex: make(map[string]int),
	}
}

// AddSignal appends a signal to the message layout.
// A multiplexed signal must be added after the selector signal
// it references, this keeps the group arena ordered parents first.
func (m *Message) AddSignal(signal *Signal) error {
	if _, ok := m.byName[signal.Name]; ok {
		return fmt.Errorf("%w : %v in message %v", ErrDuplicateSignal, signal.Name, m.Name)
	}
	if signal.Scale == 0 {
		signal.Scale = 1
	}
	parent := -1
	if signal.MuxSelector != "" {
		idx, ok := m.groupIndex[signal.MuxSelector]
		if !ok {
			return fmt.Errorf("%w : %v referenced by %v", ErrUnknownSelector, signal.MuxSelector, signal.Name)
		}
		parent = idx
	}
	if signal.Muxer {
		m.MuxGroups = append(m.MuxGroups, MuxGroup{Selector: signal.Name, Parent: parent})
		m.groupIndex[signal.Name] = len(m.MuxGroups) - 1
	}
	m.Signals = append(m.Signals, signal)
	m.byName[signal.Name] = signal
	return nil
}

// Signal returns the declared signal with the given name.
func (m *Message) Signal(name string) (*Signal, bool) {
	signal, ok := m.byName[name]
	return signal, ok
}

// Reports whether the signal is present given the raw selector
// values gathered so far. Non multiplexed signals are always active.
func (m *Message) signalActive(signal *Signal, raw map[string]uint64) bool {
	if signal.MuxSelector == "" {
		return true
	}
	selectorRaw, ok := raw[signal.MuxSelector]
	if !ok {
		// Selector itself belongs to an inactive group
		return false
	}
	for _, v := range signal.MuxValues {
		if int64(selectorRaw) == v {
			return true
		}
	}
	return false
}

// Decode unpacks a payload into physical signal values.
// Multiplexed signals are only present when their selector chain
// activates them. A payload shorter than the declared length is a
// decode error, not an unknown message.
func (m *Message) Decode(data []byte) (ValueMap, error) {
	if len(data) < int(m.Length) {
		return nil, fmt.Errorf("decoding %v : %w, expected %v bytes got %v",
			m.Name, ErrPayloadTooShort, m.Length, len(data))
	}
	values := make(ValueMap, len(m.Signals))
	raw := make(map[string]uint64)
	for _, signal := range m.Signals {
		if !m.signalActive(signal, raw) {
			continue
		}
		bits := extractBits(data, signal.Start, signal.Length, signal.ByteOrder)
		raw[signal.Name] = bits
		values[signal.Name] = signal.physical(bits)
	}
	return values, nil
}

// Encode packs physical signal values into a payload of the declared
// length. Signals missing from the map keep their zero bits, inactive
// multiplexed signals are skipped.
func (m *Message) Encode(values ValueMap) ([]byte, error) {
	data := make([]byte, m.Length)
	raw := make(map[string]uint64)
	for _, signal := range m.Signals {
		if !m.signalActive(signal, raw) {
			continue
		}
		value, ok := values[signal.Name]
		if !ok {
			continue
		}
		bits, err := signal.raw(value)
		if err != nil {
			return nil, fmt.Errorf("encoding %v : %w", m.Name, err)
		}
		raw[signal.Name] = bits
		insertBits(data, signal.Start, signal.Length, signal.ByteOrder, bits)
	}
	return data, nil
}

// DefaultValues returns a value map with every signal set to its
// sound default.
func (m *Message) DefaultValues() ValueMap {
	values := make(ValueMap, len(m.Signals))
	for _, signal := range m.Signals {
		values[signal.Name] = signal.SoundDefault()
	}
	return values
}
