package can

import (
	"fmt"
	"time"
)

const CanRtrFlag uint32 = 0x40000000
const CanSffMask uint32 = 0x000007FF
const CanEffMask uint32 = 0x1FFFFFFF

// Frame flags
const (
	FrameFlagExtended uint8 = 1 << 0 // 29 bit identifier
	FrameFlagFd       uint8 = 1 << 1 // CAN FD frame
)

// Maximum payload size, CAN FD frames can carry up to 64 bytes
const MaxFrameLength = 64

// A CAN frame. DLC holds the actual payload length (0..64),
// Data is sized for CAN FD.
type Frame struct {
	ID        uint32
	Flags     uint8
	DLC       uint8
	Data      [MaxFrameLength]byte
	Timestamp time.Time
}

func NewFrame(id uint32, flags uint8, dlc uint8) Frame {
	return Frame{ID: id, Flags: flags, DLC: dlc, Timestamp: time.Now()}
}

// Payload returns the valid portion of Data.
func (f *Frame) Payload() []byte {
	return f.Data[:f.DLC]
}

// SetData copies data into the frame and updates DLC.
// Data longer than MaxFrameLength is truncated.
func (f *Frame) SetData(data []byte) {
	n := copy(f.Data[:], data)
	f.DLC = uint8(n)
}

// Interface for handling a received CAN frame
type FrameListener interface {
	Handle(frame Frame)
}

// A CAN Bus interface
type Bus interface {
	Connect(...any) error                   // Connect to the CAN bus
	Disconnect() error                      // Disconnect from CAN bus
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received CAN frames
}

// Register a new CAN bus interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// Create a new CAN bus with given interface
// Currently supported : socketcan, virtual
func NewBus(canInterface string, channel string, bitrate int) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("unsupported interface : %v", canInterface)
	}
	return createInterface(channel)
}
