package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	can "github.com/canview/canview/pkg/can"
	"github.com/canview/canview/pkg/can/virtual"
	"github.com/canview/canview/pkg/filter"
	"github.com/canview/canview/pkg/schema"
)

func createBusTest(t *testing.T) *virtual.VirtualCanBus {
	canBus, err := can.NewBus("virtual", t.Name(), 0)
	assert.Nil(t, err)
	bus := canBus.(*virtual.VirtualCanBus)
	bus.SetReceiveOwn(true)
	assert.Nil(t, bus.Connect())
	t.Cleanup(func() { bus.Disconnect() })
	return bus
}

func engineFrame() can.Frame {
	frame := can.NewFrame(0x100, 0, 8)
	frame.SetData([]byte{0xA0, 0x0F, 0x3C, 0x01, 0, 0, 0, 0})
	return frame
}

func TestClassify(t *testing.T) {
	mon := NewMonitor(schema.NewStore(schema.Default()))

	t.Run("known", func(t *testing.T) {
		result, err := mon.Classify(engineFrame())
		assert.Nil(t, err)
		assert.True(t, result.Ok())
		assert.Equal(t, uint32(0x100), result.CanID())
		assert.Equal(t, "EngineStatus", result.Decoded.Name())
		assert.Equal(t, "default", result.Decoded.Database)
		assert.Equal(t, 1000.0, result.Decoded.Data["Rpm"])
		assert.Equal(t, []byte{0xA0, 0x0F, 0x3C, 0x01, 0, 0, 0, 0}, result.Decoded.Binary)
	})
	t.Run("unknown", func(t *testing.T) {
		result, err := mon.Classify(can.NewFrame(0x7FF, 0, 0))
		assert.Nil(t, err)
		assert.False(t, result.Ok())
		assert.Equal(t, uint32(0x7FF), result.Unknown.CanID)
		assert.Contains(t, result.Unknown.Error(), "000007ff")
	})
	t.Run("short payload is an error, not unknown", func(t *testing.T) {
		frame := can.NewFrame(0x100, 0, 2)
		frame.SetData([]byte{0xA0, 0x0F})
		_, err := mon.Classify(frame)
		assert.ErrorIs(t, err, schema.ErrPayloadTooShort)
	})
}

func TestClassifyMask(t *testing.T) {
	mon := NewMonitor(schema.NewStore(schema.Default()), WithMask(0x00000FFF))
	// High bits are stripped before lookup and the result is keyed by
	// the masked identifier
	frame := engineFrame()
	frame.ID = 0x18000100
	result, err := mon.Classify(frame)
	assert.Nil(t, err)
	assert.True(t, result.Ok())
	assert.Equal(t, uint32(0x100), result.Decoded.CanID)
	assert.Equal(t, "EngineStatus", result.Decoded.FrameName)

	// Two raw identifiers colliding under the mask classify as the
	// same unknown entry when undeclared
	first, err := mon.Classify(can.NewFrame(0x18000654, 0, 0))
	assert.Nil(t, err)
	second, err := mon.Classify(can.NewFrame(0x04000654, 0, 0))
	assert.Nil(t, err)
	assert.False(t, first.Ok())
	assert.Equal(t, first.Unknown.CanID, second.Unknown.CanID)
	assert.Equal(t, uint32(0x654), first.CanID())
}

func TestClassifyMuxName(t *testing.T) {
	mon := NewMonitor(schema.NewStore(schema.Default()))
	frame := can.NewFrame(0x300, 0, 8)
	frame.SetData([]byte{0x01, 0x32, 0x00, 0, 0, 0, 0, 0})
	result, err := mon.Classify(frame)
	assert.Nil(t, err)
	assert.True(t, result.Ok())
	assert.Equal(t, "MultiplexedSensor", result.Decoded.FrameName)
	assert.Equal(t, "MultiplexedSensor[SensorIndex=1]", result.Decoded.Name())
	assert.Len(t, result.Decoded.MuxSelectors, 1)
}

func TestClassifyNestedMuxName(t *testing.T) {
	db := schema.NewDatabase("plant")
	m := schema.NewMessage("Gateway", 0x400, 4)
	assert.Nil(t, m.AddSignal(&schema.Signal{Name: "Channel", Start: 0, Length: 8, Muxer: true}))
	assert.Nil(t, m.AddSignal(&schema.Signal{Name: "SensorIndex", Start: 8, Length: 8, Muxer: true,
		MuxSelector: "Channel", MuxValues: []int64{0}}))
	assert.Nil(t, m.AddSignal(&schema.Signal{Name: "Pressure", Start: 16, Length: 16, Scale: 0.1,
		MuxSelector: "SensorIndex", MuxValues: []int64{1}}))
	assert.Nil(t, db.AddMessage(m))
	mon := NewMonitor(schema.NewStore(db))

	t.Run("both layers render in order", func(t *testing.T) {
		frame := can.NewFrame(0x400, 0, 4)
		frame.SetData([]byte{0x00, 0x01, 0x64, 0x00})
		result, err := mon.Classify(frame)
		assert.Nil(t, err)
		assert.Equal(t, "Gateway[Channel=0][SensorIndex=1]", result.Decoded.Name())
		assert.Equal(t, []MuxSelectorValue{
			{Name: "Channel", Value: int64(0)},
			{Name: "SensorIndex", Value: int64(1)},
		}, result.Decoded.MuxSelectors)
	})
	t.Run("suppressed inner layer is not rendered", func(t *testing.T) {
		frame := can.NewFrame(0x400, 0, 4)
		frame.SetData([]byte{0x01, 0x00, 0x00, 0x00})
		result, err := mon.Classify(frame)
		assert.Nil(t, err)
		assert.Equal(t, "Gateway[Channel=1]", result.Decoded.Name())
		assert.Len(t, result.Decoded.MuxSelectors, 1)
	})
}

func TestRegistrationOrderCollision(t *testing.T) {
	first := schema.NewDatabase("first")
	m := schema.NewMessage("FromFirst", 0x100, 1)
	m.AddSignal(&schema.Signal{Name: "A", Length: 8})
	assert.Nil(t, first.AddMessage(m))

	mon := NewMonitor(schema.NewStore(first, schema.Default()))
	frame := can.NewFrame(0x100, 0, 1)
	frame.SetData([]byte{0x05})
	result, err := mon.Classify(frame)
	assert.Nil(t, err)
	assert.Equal(t, "FromFirst", result.Decoded.FrameName)
	assert.Equal(t, "first", result.Decoded.Database)
}

func TestHandleNext(t *testing.T) {
	bus := createBusTest(t)
	mon := NewMonitor(schema.NewStore(schema.Default()))
	assert.Nil(t, mon.Attach(bus))

	assert.Nil(t, bus.Send(engineFrame()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := mon.Next(ctx)
	assert.Nil(t, err)
	assert.True(t, result.Ok())
	assert.Equal(t, "EngineStatus", result.Decoded.FrameName)
	assert.Equal(t, 0, mon.Pending())
}

func TestNextCancelled(t *testing.T) {
	mon := NewMonitor(schema.NewStore(schema.Default()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mon.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandlePattern(t *testing.T) {
	pattern, err := filter.Compile("1*")
	assert.Nil(t, err)
	mon := NewMonitor(schema.NewStore(schema.Default()), WithPattern(pattern))

	// 0x100 does not start with nibble 1 at the top of 32 bits
	mon.Handle(engineFrame())
	assert.Equal(t, 0, mon.Pending())

	frame := engineFrame()
	frame.ID = 0x10000100
	mon.Handle(frame)
	assert.Equal(t, 1, mon.Pending())
}

func TestQueueOverflow(t *testing.T) {
	mon := NewMonitor(schema.NewStore(schema.Default()), WithQueueSize(2))
	for i := 0; i < 5; i++ {
		mon.Handle(engineFrame())
	}
	assert.Equal(t, 2, mon.Pending())
}
