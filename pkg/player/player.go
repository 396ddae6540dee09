package player

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	can "github.com/canview/canview/pkg/can"
)

// Parsing errors, all wrap ErrDumpParse
var ErrDumpParse = errors.New("candump parse error")
var ErrFieldCount = fmt.Errorf("%w : unexpected field count", ErrDumpParse)
var ErrNumericConversion = fmt.Errorf("%w : invalid numeric value", ErrDumpParse)

// Data required to replay a given message.
type ReplayableMessage struct {
	CanID        uint32
	Data         []byte
	RelativeTime time.Duration
	Channel      string
}

// Frame converts the replayable message to a bus frame.
func (r ReplayableMessage) Frame() can.Frame {
	frame := can.NewFrame(r.CanID, 0, 0)
	frame.SetData(r.Data)
	return frame
}

// ParseCandump parses a candump log. isStdout selects the format
// candump uses when emitting to standard output, as opposed to the
// one used with its file logging option. Use it when the dump was
// produced by piping stdout to a file.
func ParseCandump(reader io.Reader, isStdout bool) ([]ReplayableMessage, error) {
	var messages []ReplayableMessage
	var startTime time.Duration
	haveStart := false
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var message ReplayableMessage
		var timestamp time.Duration
		var err error
		if isStdout {
			message, timestamp, err = parseStdoutLine(line)
		} else {
			message, timestamp, err = parseLogLine(line)
		}
		if err != nil {
			return nil, err
		}
		if !haveStart {
			startTime = timestamp
			haveStart = true
		}
		message.RelativeTime = timestamp - startTime
		messages = append(messages, message)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// File logging format : "(169.224776) vcan0 123#DEADBEEF"
func parseLogLine(line string) (ReplayableMessage, time.Duration, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : expected 3, got %v", ErrFieldCount, len(fields))
	}
	timestamp, err := parseTimestamp(fields[0])
	if err != nil {
		return ReplayableMessage{}, 0, err
	}
	idAndData := strings.SplitN(fields[2], "#", 2)
	if len(idAndData) != 2 {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : missing # separator", ErrDumpParse)
	}
	id, err := strconv.ParseUint(idAndData[0], 16, 32)
	if err != nil {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : %q", ErrNumericConversion, idAndData[0])
	}
	data, err := hex.DecodeString(idAndData[1])
	if err != nil {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : %q", ErrNumericConversion, idAndData[1])
	}
	return ReplayableMessage{CanID: uint32(id), Data: data, Channel: fields[1]}, timestamp, nil
}

// Stdout format : "(169.224776)  vcan0  123   [4]  DE AD BE EF"
func parseStdoutLine(line string) (ReplayableMessage, time.Duration, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : expected at least 4, got %v", ErrFieldCount, len(fields))
	}
	timestamp, err := parseTimestamp(fields[0])
	if err != nil {
		return ReplayableMessage{}, 0, err
	}
	id, err := strconv.ParseUint(fields[2], 16, 32)
	if err != nil {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : %q", ErrNumericConversion, fields[2])
	}
	dlcField := strings.Trim(fields[3], "[]")
	dlc, err := strconv.Atoi(dlcField)
	if err != nil {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : %q", ErrNumericConversion, fields[3])
	}
	data, err := hex.DecodeString(strings.Join(fields[4:], ""))
	if err != nil {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : payload of %03x", ErrNumericConversion, id)
	}
	if len(data) != dlc {
		return ReplayableMessage{}, 0, fmt.Errorf("%w : dlc %v but %v payload bytes", ErrDumpParse, dlc, len(data))
	}
	return ReplayableMessage{CanID: uint32(id), Data: data, Channel: fields[1]}, timestamp, nil
}

// Timestamps are printed in parentheses as fractional seconds
func parseTimestamp(field string) (time.Duration, error) {
	trimmed := strings.Trim(field, "()")
	seconds, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w : %q", ErrNumericConversion, field)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Replay sends the messages on the bus honoring their original
// relative timing. If srcChannel is given only the messages from
// that channel are replayed.
func Replay(ctx context.Context, bus can.Bus, messages []ReplayableMessage, srcChannel string) error {
	start := time.Now()
	for _, message := range messages {
		if srcChannel != "" && message.Channel != srcChannel {
			continue
		}
		delay := time.Until(start.Add(message.RelativeTime))
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := bus.Send(message.Frame()); err != nil {
			return err
		}
	}
	return nil
}
