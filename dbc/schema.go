package dbc

import (
	"fmt"
)

// Schema is the immutable catalog of messages known to a node.
// Only the signal values inside its messages change after it is built.
type Schema struct {
	messages []*Message
	byName   map[string]*Message
	rx       map[Key]*Message
	tx       map[Key]*Message
}

// NewSchema builds and validates every message. Message names must be unique
// and ids must be unique per direction.
func NewSchema(defs []MessageDef) (*Schema, error) {
	s := &Schema{
		messages: make([]*Message, 0, len(defs)),
		byName:   make(map[string]*Message, len(defs)),
		rx:       make(map[Key]*Message),
		tx:       make(map[Key]*Message),
	}

	for _, def := range defs {
		msg, err := NewMessage(def)
		if err != nil {
			return nil, err
		}

		if err := s.add(msg); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Schema) add(msg *Message) error {
	if _, ok := s.byName[msg.name]; ok {
		return newSchemaError(msg.name, "", ErrDuplicateName)
	}

	index := s.rx
	if msg.direction == DirectionTX {
		index = s.tx
	}

	if other, ok := index[msg.key]; ok {
		return newSchemaError(msg.name, "",
			fmt.Errorf("%w: %s %s already used by %s", ErrDuplicateID, msg.direction, msg.key, other.name))
	}

	index[msg.key] = msg
	s.byName[msg.name] = msg
	s.messages = append(s.messages, msg)

	return nil
}

// Messages returns every message in declaration order.
// The returned slice must not be modified.
func (s *Schema) Messages() []*Message {
	return s.messages
}

// NumSignals returns the total number of signals across all messages.
func (s *Schema) NumSignals() int {
	count := 0
	for _, msg := range s.messages {
		count += msg.NumSignals()
	}
	return count
}

// Message returns the message with the given name.
func (s *Schema) Message(name string) (*Message, bool) {
	msg, ok := s.byName[name]
	return msg, ok
}

// Lookup returns the message registered with the key for the direction.
func (s *Schema) Lookup(dir Direction, key Key) (*Message, bool) {
	var msg *Message
	var ok bool

	switch dir {
	case DirectionRX:
		msg, ok = s.rx[key]
	case DirectionTX:
		msg, ok = s.tx[key]
	}

	return msg, ok
}

// Find returns the message with the given key, looking in rx first.
func (s *Schema) Find(key Key) (*Message, bool) {
	if msg, ok := s.rx[key]; ok {
		return msg, true
	}
	msg, ok := s.tx[key]
	return msg, ok
}

// MessageName returns the name of the message with the given standard id.
func (s *Schema) MessageName(id uint32) (string, bool) {
	msg, ok := s.Find(Key{ID: id})
	if !ok {
		return "", false
	}
	return msg.name, true
}

// SignalName returns the name of the signal at index idx of the message
// with the given standard id.
func (s *Schema) SignalName(id uint32, idx int) (string, error) {
	msg, ok := s.Find(Key{ID: id})
	if !ok {
		return "", fmt.Errorf("message 0x%03X: %w", id, ErrUnknownMessage)
	}

	sig, err := msg.SignalAt(idx)
	if err != nil {
		return "", err
	}

	return sig.Name(), nil
}
