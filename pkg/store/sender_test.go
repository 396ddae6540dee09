package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	can "github.com/canview/canview/pkg/can"
	_ "github.com/canview/canview/pkg/can/virtual"
	"github.com/canview/canview/pkg/schema"
)

type frameCounter struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (c *frameCounter) Handle(frame can.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *frameCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *frameCounter) last() (can.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return can.Frame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

func createSenderTest(t *testing.T) (*PeriodicSender, *frameCounter) {
	sendBus, err := can.NewBus("virtual", t.Name(), 0)
	assert.Nil(t, err)
	assert.Nil(t, sendBus.Connect())
	recvBus, err := can.NewBus("virtual", t.Name(), 0)
	assert.Nil(t, err)
	assert.Nil(t, recvBus.Connect())
	counter := &frameCounter{}
	assert.Nil(t, recvBus.Subscribe(counter))
	t.Cleanup(func() {
		sendBus.Disconnect()
		recvBus.Disconnect()
	})

	s := schema.NewStore(schema.Default())
	sender := NewPeriodicSender(sendBus, s, NewValueStore(s), nil)
	t.Cleanup(sender.StopAll)
	return sender, counter
}

func TestSendOnce(t *testing.T) {
	sender, counter := createSenderTest(t)
	assert.Nil(t, sender.SendOnce("default", "Dashboard"))
	assert.Equal(t, 1, counter.count())
	frame, ok := counter.last()
	assert.True(t, ok)
	assert.Equal(t, uint32(0x200), frame.ID)
	assert.Equal(t, uint8(8), frame.DLC)

	err := sender.SendOnce("default", "Nope")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestSendOnceAnyDatabase(t *testing.T) {
	sender, counter := createSenderTest(t)
	// An empty database name matches the first provider declaring
	// the message
	assert.Nil(t, sender.SendOnce("", "EngineStatus"))
	frame, _ := counter.last()
	assert.Equal(t, uint32(0x100), frame.ID)
}

func TestPeriodic(t *testing.T) {
	sender, counter := createSenderTest(t)
	assert.Nil(t, sender.Start("default", "Dashboard", 10*time.Millisecond))
	assert.True(t, sender.Active("default", "Dashboard"))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, sender.Stop("default", "Dashboard"))
	assert.False(t, sender.Active("default", "Dashboard"))

	// 100ms at a 10ms interval, allow generous scheduling slack
	sent := counter.count()
	assert.GreaterOrEqual(t, sent, 3)
	// No more sends after Stop
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sent, counter.count())
}

func TestPeriodicNoInterval(t *testing.T) {
	sender, _ := createSenderTest(t)
	// Dashboard declares no cycle time
	err := sender.Start("default", "Dashboard", 0)
	assert.ErrorIs(t, err, ErrNoInterval)
	// EngineStatus declares 100ms
	assert.Nil(t, sender.Start("default", "EngineStatus", 0))
}

func TestStartTwice(t *testing.T) {
	sender, _ := createSenderTest(t)
	assert.Nil(t, sender.Start("default", "Dashboard", 20*time.Millisecond))
	// Restarting replaces the task instead of doubling the rate
	assert.Nil(t, sender.Start("default", "Dashboard", 50*time.Millisecond))
	assert.True(t, sender.Active("default", "Dashboard"))
	assert.True(t, sender.Stop("default", "Dashboard"))
	assert.False(t, sender.Stop("default", "Dashboard"))
}

func TestStartStopAll(t *testing.T) {
	sender, counter := createSenderTest(t)
	sender.StartAll()
	// Only EngineStatus declares a cycle time
	assert.True(t, sender.Active("default", "EngineStatus"))
	assert.False(t, sender.Active("default", "Dashboard"))
	sender.StopAll()
	assert.False(t, sender.Active("default", "EngineStatus"))

	// The first iteration sends immediately
	assert.GreaterOrEqual(t, counter.count(), 1)
}
