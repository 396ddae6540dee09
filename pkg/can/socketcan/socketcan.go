package socketcan

import (
	sockcan "github.com/brutella/can"

	can "github.com/canview/canview/pkg/can"
)

// Basic wrapper for socketcan it uses the implementation
// that can be found here : https://github.com/brutella/can
// Classic CAN only, payloads are capped at 8 bytes.

func init() {
	can.RegisterInterface("socketcan", NewSocketCanBus)
}

type SocketcanBus struct {
	bus        *sockcan.Bus
	rxCallback can.FrameListener
}

func NewSocketCanBus(name string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &SocketcanBus{bus: bus}, nil
}

// "Connect" implementation of Bus interface
func (socketcan *SocketcanBus) Connect(...any) error {
	go func() {
		err := socketcan.bus.ConnectAndPublish()
		if err != nil {
			return
		}
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (socketcan *SocketcanBus) Disconnect() error {
	return socketcan.bus.Disconnect()
}

// "Send" implementation of Bus interface
func (socketcan *SocketcanBus) Send(frame can.Frame) error {
	id := frame.ID
	if frame.Flags&can.FrameFlagExtended != 0 {
		id |= 0x80000000
	}
	length := frame.DLC
	if length > 8 {
		length = 8
	}
	txFrame := sockcan.Frame{ID: id, Length: length}
	copy(txFrame.Data[:], frame.Data[:length])
	return socketcan.bus.Publish(txFrame)
}

// "Subscribe" implementation of Bus interface
func (socketcan *SocketcanBus) Subscribe(framehandler can.FrameListener) error {
	socketcan.rxCallback = framehandler
	// brutella/can defines a "Handle" interface for handling received CAN frames
	socketcan.bus.Subscribe(socketcan)
	return nil
}

// brutella/can specific "Handle" implementation
// Converts brutella frames to the local frame format before
// passing them to the subscribed handler
func (socketcan *SocketcanBus) Handle(frame sockcan.Frame) {
	rxFrame := can.NewFrame(frame.ID&can.CanEffMask, 0, frame.Length)
	if frame.ID&0x80000000 != 0 {
		rxFrame.Flags |= can.FrameFlagExtended
	}
	copy(rxFrame.Data[:], frame.Data[:])
	socketcan.rxCallback.Handle(rxFrame)
}
