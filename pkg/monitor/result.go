package monitor

import (
	"fmt"
	"strings"
	"time"

	can "github.com/canview/canview/pkg/can"
	"github.com/canview/canview/pkg/schema"
)

// A resolved multiplex selector : the selector signal name together
// with the value it carried in this frame instance.
type MuxSelectorValue struct {
	Name  string
	Value schema.Value
}

// Simple container for a decoded message, keeps track of the
// original CAN ID and message name as stated in the schema.
type DecodedMessage struct {
	CanID        uint32 // identifier after mask application
	Timestamp    time.Time
	FrameName    string
	Binary       []byte
	Data         schema.ValueMap
	MuxSelectors []MuxSelectorValue
	Database     string
}

// Name returns the effective message name, combining the frame name
// and the active mux selector values. Two decodes of the same frame
// id with different selector paths are distinct entities.
func (d *DecodedMessage) Name() string {
	if len(d.MuxSelectors) == 0 {
		return d.FrameName
	}
	var b strings.Builder
	b.WriteString(d.FrameName)
	for _, mux := range d.MuxSelectors {
		fmt.Fprintf(&b, "[%s=%v]", mux.Name, mux.Value)
	}
	return b.String()
}

// Emitted when a frame is not registered in any of the tracked
// databases. This is a normal classification outcome, not a failure,
// but it implements error for diagnostic reporting.
type UnknownMessage struct {
	CanID uint32 // identifier after mask application
	Frame can.Frame
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("CAN ID %08x is not registered in any of the tracked databases", u.CanID)
}

// Result is the tagged outcome of classifying one frame :
// exactly one of Decoded or Unknown is set.
type Result struct {
	Decoded *DecodedMessage
	Unknown *UnknownMessage
}

// Ok reports whether the frame decoded against a known schema.
func (r Result) Ok() bool {
	return r.Decoded != nil
}

// CanID returns the classification key regardless of outcome.
func (r Result) CanID() uint32 {
	if r.Decoded != nil {
		return r.Decoded.CanID
	}
	return r.Unknown.CanID
}
