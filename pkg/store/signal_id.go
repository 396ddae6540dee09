package store

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBadSignalID = errors.New("malformed signal identifier")

// SignalID identifies one signal by its database, message and signal
// name combination. All signals of one message share a single value
// map, the id selects the entry inside it.
type SignalID struct {
	Database string
	Message  string
	Signal   string
}

func (id SignalID) String() string {
	return fmt.Sprintf("%s-%s-%s", id.Database, id.Message, id.Signal)
}

// ParseSignalID parses a database-message-signal identifier string.
func ParseSignalID(identifier string) (SignalID, error) {
	fields := strings.SplitN(identifier, "-", 3)
	if len(fields) != 3 {
		return SignalID{}, fmt.Errorf("%w : %q", ErrBadSignalID, identifier)
	}
	return SignalID{Database: fields[0], Message: fields[1], Signal: fields[2]}, nil
}
