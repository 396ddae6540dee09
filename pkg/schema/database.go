package schema

import (
	"errors"
	"fmt"
)

var ErrDuplicateMessage = errors.New("duplicate message")

// Provider is the read only schema lookup surface consumed by the
// classifier, the value store and the filesystem mirror.
type Provider interface {
	Name() string
	Messages() []*Message
	MessageByID(id uint32) (*Message, bool)
	MessageByName(name string) (*Message, bool)
}

// A Database is a named collection of message definitions.
type Database struct {
	name     string
	messages []*Message
	byID     map[uint32]*Message
	byName   map[string]*Message
}

func NewDatabase(name string) *Database {
	return &Database{
		name:   name,
		byID:   make(map[uint32]*Message),
		byName: make(map[string]*Message),
	}
}

func (d *Database) Name() string {
	return d.name
}

// AddMessage registers a message definition, frame identifiers and
// names must be unique within one database.
func (d *Database) AddMessage(message *Message) error {
	if _, ok := d.byID[message.FrameID]; ok {
		return fmt.Errorf("%w : id %03x already declared in %v", ErrDuplicateMessage, message.FrameID, d.name)
	}
	if _, ok := d.byName[message.Name]; ok {
		return fmt.Errorf("%w : name %v already declared in %v", ErrDuplicateMessage, message.Name, d.name)
	}
	d.messages = append(d.messages, message)
	d.byID[message.FrameID] = message
	d.byName[message.Name] = message
	return nil
}

// Messages returns all declared messages in declaration order.
func (d *Database) Messages() []*Message {
	return d.messages
}

func (d *Database) MessageByID(id uint32) (*Message, bool) {
	message, ok := d.byID[id]
	return message, ok
}

func (d *Database) MessageByName(name string) (*Message, bool) {
	message, ok := d.byName[name]
	return message, ok
}

// A Store tracks multiple schema providers in registration order.
type Store struct {
	providers []Provider
}

func NewStore(providers ...Provider) *Store {
	return &Store{providers: providers}
}

// Add registers an additional provider. Registration order matters,
// lookups return the earliest match.
func (s *Store) Add(provider Provider) {
	s.providers = append(s.providers, provider)
}

func (s *Store) Providers() []Provider {
	return s.providers
}

// MessageByID returns the first provider declaring the identifier, in
// registration order. Duplicate identifiers across providers resolve
// to the earliest registration, genuine collisions are not rejected.
func (s *Store) MessageByID(id uint32) (*Message, Provider, bool) {
	for _, provider := range s.providers {
		if message, ok := provider.MessageByID(id); ok {
			return message, provider, true
		}
	}
	return nil, nil, false
}

// MessageByName returns the first provider declaring the name, in
// registration order.
func (s *Store) MessageByName(name string) (*Message, Provider, bool) {
	for _, provider := range s.providers {
		if message, ok := provider.MessageByName(name); ok {
			return message, provider, true
		}
	}
	return nil, nil, false
}

// PeriodicMessages yields every message declaring a cycle time,
// together with the provider it came from.
func (s *Store) PeriodicMessages() []ProviderMessage {
	var periodic []ProviderMessage
	for _, provider := range s.providers {
		for _, message := range provider.Messages() {
			if message.CycleTime > 0 {
				periodic = append(periodic, ProviderMessage{Provider: provider, Message: message})
			}
		}
	}
	return periodic
}

// A message together with the provider declaring it.
type ProviderMessage struct {
	Provider Provider
	Message  *Message
}
