package virtual

import (
	"errors"
	"sync"

	can "github.com/canview/canview/pkg/can"
)

// Virtual CAN bus implementation primarily used for testing.
// All buses attached to the same channel name within the process
// see each other's frames, like nodes on a shared segment.

func init() {
	can.RegisterInterface("virtual", NewVirtualCanBus)
	can.RegisterInterface("virtualcan", NewVirtualCanBus)
}

var ErrNotConnected = errors.New("no active connection, abort send")

// One broker per channel name, shared by every bus in the process
type broker struct {
	mu      sync.Mutex
	clients map[*VirtualCanBus]struct{}
}

var brokersMu sync.Mutex
var brokers = make(map[string]*broker)

func getBroker(channel string) *broker {
	brokersMu.Lock()
	defer brokersMu.Unlock()
	b, ok := brokers[channel]
	if !ok {
		b = &broker{clients: make(map[*VirtualCanBus]struct{})}
		brokers[channel] = b
	}
	return b
}

type VirtualCanBus struct {
	mu           sync.Mutex
	channel      string
	broker       *broker
	receiveOwn   bool
	framehandler can.FrameListener
}

func NewVirtualCanBus(channel string) (can.Bus, error) {
	return &VirtualCanBus{channel: channel}, nil
}

// "Connect" implementation of Bus interface
func (b *VirtualCanBus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broker != nil {
		return nil
	}
	br := getBroker(b.channel)
	br.mu.Lock()
	br.clients[b] = struct{}{}
	br.mu.Unlock()
	b.broker = br
	return nil
}

// "Disconnect" implementation of Bus interface
func (b *VirtualCanBus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broker == nil {
		return nil
	}
	b.broker.mu.Lock()
	delete(b.broker.clients, b)
	b.broker.mu.Unlock()
	b.broker = nil
	return nil
}

// "Send" implementation of Bus interface
// Frames are dispatched synchronously to all other connected buses
func (b *VirtualCanBus) Send(frame can.Frame) error {
	b.mu.Lock()
	br := b.broker
	receiveOwn := b.receiveOwn
	b.mu.Unlock()
	if br == nil {
		return ErrNotConnected
	}
	br.mu.Lock()
	clients := make([]*VirtualCanBus, 0, len(br.clients))
	for client := range br.clients {
		clients = append(clients, client)
	}
	br.mu.Unlock()
	for _, client := range clients {
		if client == b && !receiveOwn {
			continue
		}
		client.mu.Lock()
		handler := client.framehandler
		client.mu.Unlock()
		if handler != nil {
			handler.Handle(frame)
		}
	}
	return nil
}

// "Subscribe" implementation of Bus interface
func (b *VirtualCanBus) Subscribe(framehandler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.framehandler = framehandler
	return nil
}

// When enabled, sent frames are also delivered to this bus's own subscriber
func (b *VirtualCanBus) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveOwn = receiveOwn
}
