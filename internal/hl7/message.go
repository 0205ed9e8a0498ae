// Package hl7 implements a minimal pipe-delimited HL7 v2.x reader and ACK
// builder. Fields are split on | with no escape-sequence handling, which is
// enough for the upstream systems this talks to but is not a conformant HL7
// stack.
package hl7

import (
	"errors"
	"strings"
)

const (
	fieldSeparator   = "|"
	segmentSeparator = "\r"
)

var (
	ErrEmptyMessage = errors.New("hl7: empty message")
	ErrNoHeader     = errors.New("hl7: message does not start with MSH")
)

type Segment struct {
	Name   string
	Fields []string
}

// Field returns the 1-based HL7 field. For MSH the field separator itself
// counts as MSH-1, so MSH-9 is the message type and MSH-10 the control ID.
func (s Segment) Field(index int) string {
	offset := index
	if s.Name == "MSH" {
		if index == 1 {
			return fieldSeparator
		}
		offset = index - 1
	}
	if offset < 1 || offset >= len(s.Fields) {
		return ""
	}
	return s.Fields[offset]
}

type Message struct {
	Segments []Segment
}

// Parse splits a raw HL7 message into segments and fields. Segment breaks on
// \r per the standard, tolerating \n and \r\n from lenient senders.
func Parse(raw string) (Message, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", segmentSeparator))
	raw = strings.ReplaceAll(raw, "\n", segmentSeparator)
	if raw == "" {
		return Message{}, ErrEmptyMessage
	}

	var msg Message
	for _, line := range strings.Split(raw, segmentSeparator) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, fieldSeparator)
		msg.Segments = append(msg.Segments, Segment{Name: fields[0], Fields: fields})
	}
	if len(msg.Segments) == 0 {
		return Message{}, ErrEmptyMessage
	}
	if msg.Segments[0].Name != "MSH" {
		return Message{}, ErrNoHeader
	}
	return msg, nil
}

// Segment returns the first segment with the given name.
func (m Message) Segment(name string) (Segment, bool) {
	for _, segment := range m.Segments {
		if segment.Name == name {
			return segment, true
		}
	}
	return Segment{}, false
}

// AllSegments returns every segment with the given name, in order. OBX
// repeats, so result consumers need all of them.
func (m Message) AllSegments(name string) []Segment {
	var out []Segment
	for _, segment := range m.Segments {
		if segment.Name == name {
			out = append(out, segment)
		}
	}
	return out
}

func (m Message) header() Segment {
	segment, _ := m.Segment("MSH")
	return segment
}

func (m Message) SendingApp() string        { return m.header().Field(3) }
func (m Message) SendingFacility() string   { return m.header().Field(4) }
func (m Message) ReceivingApp() string      { return m.header().Field(5) }
func (m Message) ReceivingFacility() string { return m.header().Field(6) }
func (m Message) Timestamp() string         { return m.header().Field(7) }
func (m Message) ControlID() string         { return m.header().Field(10) }
func (m Message) Version() string           { return m.header().Field(12) }

// MessageType returns MSH-9, e.g. "ORU^R01".
func (m Message) MessageType() string { return m.header().Field(9) }

// Component splits a field on ^ and returns the 1-based component.
func Component(field string, index int) string {
	parts := strings.Split(field, "^")
	if index < 1 || index > len(parts) {
		return ""
	}
	return parts[index-1]
}
