package mirror

import (
	"fmt"

	"github.com/fsnotify/fsnotify"

	can "github.com/canview/canview/pkg/can"
)

// Called with the message name and the failure when a watch
// triggered send cannot complete.
type ErrorCallback func(messageName string, err error)

// StartWatch begins watching the working directory for external
// modifications. Documents of messages received on the bus are
// excluded automatically. When a non excluded document is modified,
// its current values are encoded and sent on the given bus.
//
// Encode or send failures are reported through onError. Without a
// callback a failure terminates the watch loop. The loop runs on a
// dedicated goroutine because directory notification is a blocking
// wait, it only communicates outward through the bus send and the
// callback.
func (m *Mirror) StartWatch(bus can.Bus, onError ErrorCallback) error {
	dir, err := m.Dir()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher
	m.watchWg.Add(1)
	go m.runWatcher(watcher, bus, onError)
	m.logger.Infof("[MIRROR] watching %v for document modifications", dir)
	return nil
}

func (m *Mirror) runWatcher(watcher *fsnotify.Watcher, bus can.Bus, onError ErrorCallback) {
	defer m.watchWg.Done()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			messageName, ok := messageNameFromPath(event.Name)
			if !ok {
				continue
			}
			if m.isReceived(messageName) {
				m.logger.Debugf("[MIRROR] ignoring modifications on %v as this is an RX message", messageName)
				continue
			}
			if err := m.sendDocument(bus, messageName); err != nil {
				if onError == nil {
					m.logger.Errorf("[MIRROR] %v : %v, stopping watch", messageName, err)
					return
				}
				onError(messageName, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warnf("[MIRROR] watch error : %v", err)
		}
	}
}

func (m *Mirror) sendDocument(bus can.Bus, messageName string) error {
	message, ok := m.db.MessageByName(messageName)
	if !ok {
		return fmt.Errorf("%w : %v", ErrUnknownMessage, messageName)
	}
	values, err := m.Values(messageName)
	if err != nil {
		return err
	}
	delete(values, timestampField)
	data, err := message.Encode(values)
	if err != nil {
		return err
	}
	extended := message.Extended
	if m.config.ForceExtendedID != nil {
		extended = *m.config.ForceExtendedID
	}
	var flags uint8
	if extended {
		flags |= can.FrameFlagExtended
	}
	frame := can.NewFrame(message.FrameID, flags, message.Length)
	frame.SetData(data)
	m.logger.Infof("[MIRROR] %v.json modified, sending %v with values %v", messageName, messageName, values)
	return bus.Send(frame)
}
