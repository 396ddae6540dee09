package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	can "github.com/canview/canview/pkg/can"
	"github.com/canview/canview/pkg/schema"
)

var ErrNoInterval = errors.New("cannot send periodically without an interval")

type senderTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// PeriodicSender runs one independent transmission task per periodic
// message. Each task reads the current value snapshot from the value
// store, encodes and sends at the configured interval. Send failures
// are logged and the loop continues.
type PeriodicSender struct {
	mu     sync.Mutex
	bus    can.Bus
	store  *schema.Store
	values *ValueStore
	tasks  map[messageKey]*senderTask
	logger *log.Logger
}

func NewPeriodicSender(bus can.Bus, store *schema.Store, values *ValueStore, logger *log.Logger) *PeriodicSender {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &PeriodicSender{
		bus:    bus,
		store:  store,
		values: values,
		tasks:  make(map[messageKey]*senderTask),
		logger: logger,
	}
}

// Start spawns the periodic task for a message. An interval of zero
// selects the message's declared cycle time. At most one task is
// active per message : starting while already active stops the prior
// task first, so two senders never race on the bus.
func (p *PeriodicSender) Start(database string, message string, interval time.Duration) error {
	m, provider, ok := p.lookup(database, message)
	if !ok {
		return fmt.Errorf("%w : %v/%v", ErrUnknownMessage, database, message)
	}
	if interval == 0 {
		interval = m.CycleTime
	}
	if interval == 0 {
		return fmt.Errorf("%w : %v", ErrNoInterval, message)
	}
	key := messageKey{database: provider.Name(), message: m.Name}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked(key)
	ctx, cancel := context.WithCancel(context.Background())
	task := &senderTask{cancel: cancel, done: make(chan struct{})}
	p.tasks[key] = task
	go p.run(ctx, task, provider.Name(), m, interval)
	p.logger.Infof("[SENDER] started periodic task for %v every %v", m.Name, interval)
	return nil
}

// Stop cancels the message's periodic task and waits for it to
// finish. Returns false when no task was active.
func (p *PeriodicSender) Stop(database string, message string) bool {
	key := messageKey{database: database, message: message}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked(key)
}

// Restart changes the transmission interval by stopping the current
// task and starting a new one. Sub interval precision is not
// preserved across the restart.
func (p *PeriodicSender) Restart(database string, message string, interval time.Duration) error {
	return p.Start(database, message, interval)
}

// StartAll spawns a task for every message declaring a cycle time.
func (p *PeriodicSender) StartAll() {
	for _, pm := range p.store.PeriodicMessages() {
		if err := p.Start(pm.Provider.Name(), pm.Message.Name, 0); err != nil {
			p.logger.Warnf("[SENDER] %v", err)
		}
	}
}

// StopAll cancels every active task.
func (p *PeriodicSender) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.tasks {
		p.stopLocked(key)
	}
}

// Active reports whether a periodic task is running for the message.
func (p *PeriodicSender) Active(database string, message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[messageKey{database: database, message: message}]
	return ok
}

// SendOnce encodes the current value snapshot and sends it
// immediately. Unlike periodic sends, failures are returned.
func (p *PeriodicSender) SendOnce(database string, message string) error {
	m, provider, ok := p.lookup(database, message)
	if !ok {
		return fmt.Errorf("%w : %v/%v", ErrUnknownMessage, database, message)
	}
	frame, err := p.encodeFrame(provider.Name(), m)
	if err != nil {
		return err
	}
	return p.bus.Send(frame)
}

func (p *PeriodicSender) lookup(database string, message string) (*schema.Message, schema.Provider, bool) {
	for _, provider := range p.store.Providers() {
		if database != "" && provider.Name() != database {
			continue
		}
		if m, ok := provider.MessageByName(message); ok {
			return m, provider, true
		}
	}
	return nil, nil, false
}

func (p *PeriodicSender) encodeFrame(database string, m *schema.Message) (can.Frame, error) {
	values, ok := p.values.Values(database, m.Name)
	if !ok {
		return can.Frame{}, fmt.Errorf("%w : %v/%v", ErrUnknownMessage, database, m.Name)
	}
	data, err := m.Encode(values)
	if err != nil {
		return can.Frame{}, err
	}
	var flags uint8
	if m.Extended {
		flags |= can.FrameFlagExtended
	}
	frame := can.NewFrame(m.FrameID, flags, m.Length)
	frame.SetData(data)
	return frame, nil
}

// Caller must hold p.mu. Cancellation is observable at the task's
// next scheduling point, a send already in flight completes.
func (p *PeriodicSender) stopLocked(key messageKey) bool {
	task, ok := p.tasks[key]
	if !ok {
		return false
	}
	task.cancel()
	<-task.done
	delete(p.tasks, key)
	p.logger.Infof("[SENDER] stopped periodic task for %v", key.message)
	return true
}

func (p *PeriodicSender) run(ctx context.Context, task *senderTask, database string, m *schema.Message, interval time.Duration) {
	defer close(task.done)
	for {
		frame, err := p.encodeFrame(database, m)
		if err != nil {
			// Periodic failures are not fatal to the loop
			p.logger.Errorf("[SENDER] encoding %v : %v", m.Name, err)
		} else if err := p.bus.Send(frame); err != nil {
			p.logger.Warnf("[SENDER] sending %v : %v", m.Name, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
