package player

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	can "github.com/canview/canview/pkg/can"
	_ "github.com/canview/canview/pkg/can/virtual"
)

const logDump = `(100.000000) vcan0 123#DEADBEEF
(100.250000) vcan0 456#0102
(100.500000) vcan1 123#FF
`

const stdoutDump = `(100.000000)  vcan0  123   [4]  DE AD BE EF
(100.250000)  vcan0  456   [2]  01 02
`

func TestParseLogFormat(t *testing.T) {
	messages, err := ParseCandump(strings.NewReader(logDump), false)
	assert.Nil(t, err)
	assert.Len(t, messages, 3)

	assert.Equal(t, uint32(0x123), messages[0].CanID)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, messages[0].Data)
	assert.Equal(t, "vcan0", messages[0].Channel)
	// Timing is relative to the first entry
	assert.Equal(t, time.Duration(0), messages[0].RelativeTime)
	assert.Equal(t, 250*time.Millisecond, messages[1].RelativeTime)
	assert.Equal(t, 500*time.Millisecond, messages[2].RelativeTime)
	assert.Equal(t, "vcan1", messages[2].Channel)
}

func TestParseStdoutFormat(t *testing.T) {
	messages, err := ParseCandump(strings.NewReader(stdoutDump), true)
	assert.Nil(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, uint32(0x123), messages[0].CanID)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, messages[0].Data)
	assert.Equal(t, uint32(0x456), messages[1].CanID)
	assert.Equal(t, 250*time.Millisecond, messages[1].RelativeTime)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name     string
		line     string
		isStdout bool
		expected error
	}{
		{"too few fields", "(100.0) vcan0", false, ErrFieldCount},
		{"missing separator", "(100.0) vcan0 123DEAD", false, ErrDumpParse},
		{"bad id", "(100.0) vcan0 XYZ#DEAD", false, ErrNumericConversion},
		{"bad timestamp", "(abc) vcan0 123#DEAD", false, ErrNumericConversion},
		{"odd hex payload", "(100.0) vcan0 123#DEA", false, ErrNumericConversion},
		{"too few stdout fields", "(100.0) vcan0 123", true, ErrFieldCount},
		{"dlc mismatch", "(100.0) vcan0 123 [3] DE AD", true, ErrDumpParse},
		{"bad dlc", "(100.0) vcan0 123 [x] DE", true, ErrNumericConversion},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCandump(strings.NewReader(tc.line), tc.isStdout)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestParseSkipsBlankLines(t *testing.T) {
	messages, err := ParseCandump(strings.NewReader("\n(1.0) vcan0 123#01\n\n"), false)
	assert.Nil(t, err)
	assert.Len(t, messages, 1)
}

type frameSink struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (s *frameSink) Handle(frame can.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
}

func TestReplay(t *testing.T) {
	sendBus, err := can.NewBus("virtual", t.Name(), 0)
	assert.Nil(t, err)
	assert.Nil(t, sendBus.Connect())
	recvBus, err := can.NewBus("virtual", t.Name(), 0)
	assert.Nil(t, err)
	assert.Nil(t, recvBus.Connect())
	sink := &frameSink{}
	assert.Nil(t, recvBus.Subscribe(sink))
	defer sendBus.Disconnect()
	defer recvBus.Disconnect()

	messages := []ReplayableMessage{
		{CanID: 0x123, Data: []byte{0x01}, Channel: "vcan0"},
		{CanID: 0x456, Data: []byte{0x02}, RelativeTime: 10 * time.Millisecond, Channel: "vcan0"},
		{CanID: 0x789, Data: []byte{0x03}, Channel: "vcan1"},
	}

	start := time.Now()
	// Restricting to vcan0 drops the third message
	assert.Nil(t, Replay(context.Background(), sendBus, messages, "vcan0"))
	elapsed := time.Since(start)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.frames, 2)
	assert.Equal(t, uint32(0x123), sink.frames[0].ID)
	assert.Equal(t, uint32(0x456), sink.frames[1].ID)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestReplayCancelled(t *testing.T) {
	sendBus, err := can.NewBus("virtual", t.Name(), 0)
	assert.Nil(t, err)
	assert.Nil(t, sendBus.Connect())
	defer sendBus.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	messages := []ReplayableMessage{
		{CanID: 0x123, Data: []byte{0x01}, RelativeTime: time.Hour},
	}
	err = Replay(ctx, sendBus, messages, "")
	assert.ErrorIs(t, err, context.Canceled)
}
