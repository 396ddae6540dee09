package monitor

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/canview/canview/internal/ring"
	can "github.com/canview/canview/pkg/can"
	"github.com/canview/canview/pkg/filter"
	"github.com/canview/canview/pkg/schema"
)

const defaultQueueSize = 256

// Monitor watches a bus and decodes received frames when possible.
// It implements can.FrameListener, classification results are
// buffered in a bounded queue so that bus reception never blocks,
// the oldest results are dropped when consumers fall behind.
type Monitor struct {
	mu      sync.Mutex
	store   *schema.Store
	mask    uint32
	pattern filter.Matcher
	queue   *ring.Ring[Result]
	notify  chan struct{}
	logger  *log.Logger
}

type Option func(*Monitor)

// WithMask sets the identifier mask applied before schema lookup.
func WithMask(mask uint32) Option {
	return func(m *Monitor) { m.mask = mask }
}

// WithPattern installs an acceptance pattern, frames whose raw
// identifier does not match are dropped silently before decoding.
func WithPattern(pattern filter.Matcher) Option {
	return func(m *Monitor) { m.pattern = pattern }
}

func WithQueueSize(size int) Option {
	return func(m *Monitor) { m.queue = ring.New[Result](size) }
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

func NewMonitor(store *schema.Store, options ...Option) *Monitor {
	m := &Monitor{
		store:  store,
		mask:   0xFFFFFFFF,
		queue:  ring.New[Result](defaultQueueSize),
		notify: make(chan struct{}, 1),
		logger: log.StandardLogger(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Attach subscribes the monitor to all frames received on the bus.
func (m *Monitor) Attach(bus can.Bus) error {
	return bus.Subscribe(m)
}

// Handle implements can.FrameListener, main callback on frame
// reception. Attempts decoding the received data and queues the
// result.
func (m *Monitor) Handle(frame can.Frame) {
	if m.pattern != nil && !m.pattern.Match(frame.ID) {
		return
	}
	result, err := m.Classify(frame)
	if err != nil {
		// A malformed payload for a known id, surfaced and not
		// reinterpreted as an unknown frame
		m.logger.Errorf("[MONITOR] %v", err)
		return
	}
	m.mu.Lock()
	dropped := m.queue.Push(result)
	m.mu.Unlock()
	if dropped {
		m.logger.Warnf("[MONITOR] result queue full, dropped oldest entry")
	}
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a classification result is available or the
// context is cancelled.
func (m *Monitor) Next(ctx context.Context) (Result, error) {
	for {
		m.mu.Lock()
		result, ok := m.queue.Pop()
		m.mu.Unlock()
		if ok {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-m.notify:
		}
	}
}

// Pending returns the number of buffered classification results.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// Classify looks for a matching message in the list of tracked
// databases, in registration order, and decodes the frame against
// the first match. Frames without a match classify as unknown, keyed
// by their masked identifier. Decode failures on a matched
// identifier are returned as errors and never retried against the
// remaining databases.
func (m *Monitor) Classify(frame can.Frame) (Result, error) {
	candidateId := frame.ID & m.mask
	message, provider, ok := m.store.MessageByID(candidateId)
	if !ok {
		return Result{Unknown: &UnknownMessage{CanID: candidateId, Frame: frame}}, nil
	}
	values, err := message.Decode(frame.Payload())
	if err != nil {
		return Result{}, fmt.Errorf("frame %03x : %w", candidateId, err)
	}
	decoded := &DecodedMessage{
		CanID:        candidateId,
		Timestamp:    frame.Timestamp,
		FrameName:    message.Name,
		Binary:       append([]byte(nil), frame.Payload()...),
		Data:         values,
		MuxSelectors: muxSelectorValues(message, values),
		Database:     provider.Name(),
	}
	return Result{Decoded: decoded}, nil
}

// Resolves the active multiplex selector chain by scanning the flat
// set of named groups declared on the message : a group is active
// exactly when the decoded value set contains its selector signal.
func muxSelectorValues(message *schema.Message, values schema.ValueMap) []MuxSelectorValue {
	var selectors []MuxSelectorValue
	for _, group := range message.MuxGroups {
		if value, ok := values[group.Selector]; ok {
			selectors = append(selectors, MuxSelectorValue{Name: group.Selector, Value: value})
		}
	}
	return selectors
}
