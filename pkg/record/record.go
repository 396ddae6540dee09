package record

import (
	"errors"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"

	can "github.com/canview/canview/pkg/can"
	"github.com/canview/canview/pkg/player"
)

// Binary frame captures : a capture file is a plain concatenation of
// CBOR encoded entries, one per frame, newest last.

// One captured frame.
type Entry struct {
	ID   uint32    `cbor:"1,keyasint"`
	Data []byte    `cbor:"2,keyasint"`
	Time time.Time `cbor:"3,keyasint"`
}

// Recorder appends received frames to a capture stream.
// It implements can.FrameListener so it can subscribe to a bus
// directly.
type Recorder struct {
	encoder *cbor.Encoder
	logger  *log.Logger
}

func NewRecorder(w io.Writer, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Recorder{encoder: cbor.NewEncoder(w), logger: logger}
}

// Record appends one frame to the capture.
func (r *Recorder) Record(frame can.Frame) error {
	entry := Entry{
		ID:   frame.ID,
		Data: append([]byte(nil), frame.Payload()...),
		Time: frame.Timestamp,
	}
	return r.encoder.Encode(entry)
}

// Handle implements can.FrameListener. Capture failures cannot be
// reported through the listener interface, they are logged so lost
// frames leave a trace.
func (r *Recorder) Handle(frame can.Frame) {
	if err := r.Record(frame); err != nil {
		r.logger.Warnf("[RECORD] frame %03x lost : %v", frame.ID, err)
	}
}

// ReadAll loads a whole capture stream.
func ReadAll(reader io.Reader) ([]Entry, error) {
	var entries []Entry
	decoder := cbor.NewDecoder(reader)
	for {
		var entry Entry
		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
}

// Replayable converts capture entries to replayable messages with
// timing relative to the first entry.
func Replayable(entries []Entry) []player.ReplayableMessage {
	messages := make([]player.ReplayableMessage, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, player.ReplayableMessage{
			CanID:        entry.ID,
			Data:         entry.Data,
			RelativeTime: entry.Time.Sub(entries[0].Time),
		})
	}
	return messages
}
