package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	can "github.com/canview/canview/pkg/can"
	"github.com/canview/canview/pkg/schema"
)

// Synthetic field added to written documents when timestamping is
// enabled. It never reaches the encode path.
const timestampField = "LAST_RECEIVED"

var ErrNotOpen = errors.New("mirror has not been opened yet")
var ErrTampered = errors.New("mirror document tampered externally")
var ErrUnknownMessage = errors.New("message not declared in mirrored database")

// Config controls how the mirror behaves.
type Config struct {
	// Accumulate keeps stacking message values as a JSON list
	// instead of overwriting a single object (the most recent one).
	Accumulate bool
	// TargetDir is where the working directory gets created,
	// the system temp dir is used when empty.
	TargetDir string
	// PreserveFiles keeps the working directory and its documents
	// on Close instead of deleting them.
	PreserveFiles bool
	// EnableTimestamping adds a LAST_RECEIVED field to documents
	// written on reception.
	EnableTimestamping bool
	// ForceExtendedID overrides the schema declared frame format
	// for watch triggered sends.
	ForceExtendedID *bool
}

// Mirror represents a schema database on the filesystem with one
// JSON document per message, bidirectionally synchronized with the
// bus : received frames are decoded into their documents, external
// document edits are encoded and sent.
type Mirror struct {
	mu     sync.Mutex
	db     schema.Provider
	config Config
	dir    string
	logger *log.Logger

	// Names written by the RX path. The watch loop consults this
	// set and never sends for a name present in it, otherwise the
	// mirror's own writes would bounce back onto the bus. This is
	// a one way latch for the lifetime of the mirror.
	ignoreMu  sync.Mutex
	ignoreSet map[string]struct{}

	watcher *fsnotify.Watcher
	watchWg sync.WaitGroup
}

func New(db schema.Provider, config *Config, logger *log.Logger) *Mirror {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Mirror{
		db:        db,
		config:    *config,
		logger:    logger,
		ignoreSet: make(map[string]struct{}),
	}
}

// Open creates the working directory containing one JSON document
// per declared message, all signal values defaulted. The directory
// lives until Close.
func (m *Mirror) Open() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dir != "" {
		return m.dir, nil
	}
	base := m.config.TargetDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "canview-"+xid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for _, message := range m.db.Messages() {
		document := make(map[string]any, len(message.Signals))
		for _, signal := range message.Signals {
			document[signal.Name] = signal.SoundDefault()
		}
		if err := writeDocument(documentPath(dir, message.Name), document); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	m.dir = dir
	m.logger.Infof("[MIRROR] opened %v with %v documents", dir, len(m.db.Messages()))
	return dir, nil
}

// Close stops the watch loop and deletes the working directory
// unless file preservation was requested.
func (m *Mirror) Close() error {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if watcher != nil {
		// Closing the watcher ends the watch loop, in flight
		// sends complete before Wait returns
		watcher.Close()
		m.watchWg.Wait()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dir == "" {
		return nil
	}
	dir := m.dir
	m.dir = ""
	if m.config.PreserveFiles {
		return nil
	}
	return os.RemoveAll(dir)
}

// Dir returns the working directory in which the documents live.
func (m *Mirror) Dir() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dir == "" {
		return "", ErrNotOpen
	}
	return m.dir, nil
}

func documentPath(dir string, messageName string) string {
	return filepath.Join(dir, messageName+".json")
}

// DocumentPath formats the document path used for a message.
func (m *Mirror) DocumentPath(messageName string) (string, error) {
	dir, err := m.Dir()
	if err != nil {
		return "", err
	}
	return documentPath(dir, messageName), nil
}

// Update decodes a frame received on the bus against the mirrored
// database and writes the values into the message's document.
// Unknown identifiers are ignored.
func (m *Mirror) Update(frame can.Frame) error {
	message, ok := m.db.MessageByID(frame.ID)
	if !ok {
		m.logger.Debugf("[MIRROR] ignoring %08x as it is not a known ID in our database", frame.ID)
		return nil
	}
	values, err := message.Decode(frame.Payload())
	if err != nil {
		return err
	}
	if m.config.EnableTimestamping {
		values[timestampField] = frame.Timestamp.Format(time.DateTime)
	}
	return m.WriteValues(message.Name, values)
}

// WriteValues updates the document of a message with freshly
// received values. The message is latched into the ignore set before
// the write so the watch loop never reinterprets it as a user edit.
// In accumulate mode the values are appended to the document list,
// otherwise they are merged into the single document object.
func (m *Mirror) WriteValues(messageName string, values schema.ValueMap) error {
	path, err := m.DocumentPath(messageName)
	if err != nil {
		return err
	}
	m.markReceived(messageName)
	previous, err := readDocument(path)
	if err != nil {
		return err
	}
	var document any
	if m.config.Accumulate {
		list, ok := previous.([]any)
		if !ok {
			// Only the placeholder object created on Open may be
			// discarded by the first real append, any other shape is
			// external tampering
			if _, isObject := previous.(map[string]any); !isObject {
				return fmt.Errorf("%w : accumulate is enabled yet %v.json holds neither list nor object", ErrTampered, messageName)
			}
			list = nil
		}
		document = append(list, map[string]any(values.Clone()))
	} else {
		object, ok := previous.(map[string]any)
		if !ok {
			return fmt.Errorf("%w : accumulate is disabled yet %v.json holds a list", ErrTampered, messageName)
		}
		for name, value := range values {
			object[name] = value
		}
		document = object
	}
	return writeDocument(path, document)
}

// Values returns the current signal values for a message : the last
// entry in accumulate mode, the document object otherwise.
func (m *Mirror) Values(messageName string) (schema.ValueMap, error) {
	path, err := m.DocumentPath(messageName)
	if err != nil {
		return nil, err
	}
	document, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	switch doc := document.(type) {
	case []any:
		if len(doc) == 0 {
			return nil, fmt.Errorf("%w : %v.json holds an empty list", ErrTampered, messageName)
		}
		object, ok := doc[len(doc)-1].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w : %v.json list entry is not an object", ErrTampered, messageName)
		}
		return schema.ValueMap(object), nil
	case map[string]any:
		return schema.ValueMap(doc), nil
	default:
		return nil, fmt.Errorf("%w : %v.json is neither object nor list", ErrTampered, messageName)
	}
}

// Encode packs the message's current document values into a payload.
func (m *Mirror) Encode(messageName string) ([]byte, error) {
	values, err := m.Values(messageName)
	if err != nil {
		return nil, err
	}
	message, ok := m.db.MessageByName(messageName)
	if !ok {
		return nil, fmt.Errorf("%w : %v", ErrUnknownMessage, messageName)
	}
	delete(values, timestampField)
	return message.Encode(values)
}

func (m *Mirror) markReceived(messageName string) {
	m.ignoreMu.Lock()
	defer m.ignoreMu.Unlock()
	m.ignoreSet[messageName] = struct{}{}
}

func (m *Mirror) isReceived(messageName string) bool {
	m.ignoreMu.Lock()
	defer m.ignoreMu.Unlock()
	_, ok := m.ignoreSet[messageName]
	return ok
}

func readDocument(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("%w : %v", ErrTampered, err)
	}
	return document, nil
}

func writeDocument(path string, document any) error {
	raw, err := json.MarshalIndent(document, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func messageNameFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	return strings.TrimSuffix(base, ".json"), true
}
