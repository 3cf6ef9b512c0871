// Package protocol implements the chat wire format: outgoing raw text and
// incoming UTF-16 JSON envelopes of the form {"type": ..., "data": {...}}.
package protocol

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// Envelope types known to the chat server.
const (
	TypeMessage = "message"
	TypeHistory = "history"
	TypeColor   = "color"
)

// Envelope is one decoded protocol unit.
type Envelope struct {
	// Type is the discriminator. Decode never yields an empty Type.
	Type string

	// Data is the "data" member when it is a JSON object, nil otherwise.
	Data *structpb.Struct

	// Raw is the whole decoded object, kept so handlers for newer envelope
	// types can read members this package does not know about.
	Raw *structpb.Struct
}

// ChatMessage is the payload of a "message" envelope.
type ChatMessage struct {
	Author string
	Text   string
}

// NewEnvelope builds an envelope from Go values. data must be convertible
// by structpb.NewValue; a nil data omits the member.
func NewEnvelope(typ string, data any) (Envelope, error) {
	fields := map[string]any{"type": typ}
	if data != nil {
		fields["data"] = data
	}
	raw, err := structpb.NewStruct(fields)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to build envelope: %w", err)
	}
	return fromStruct(raw)
}

// Field returns the string member key of Data.
// ok is false when Data is absent, the key is missing, or the value is not a string.
func (e Envelope) Field(key string) (s string, ok bool) {
	if e.Data == nil {
		return "", false
	}
	v, found := e.Data.GetFields()[key]
	if !found {
		return "", false
	}
	sv, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", false
	}
	return sv.StringValue, true
}

// ChatMessage extracts the payload of a "message" envelope.
// Both author and text must be strings and author must not be blank.
func (e Envelope) ChatMessage() (ChatMessage, error) {
	if e.Type != TypeMessage {
		return ChatMessage{}, fmt.Errorf("%w: envelope type %q is not %q", ErrMalformedInput, e.Type, TypeMessage)
	}
	author, ok := e.Field("author")
	if !ok {
		return ChatMessage{}, fmt.Errorf("%w: message without string author", ErrMalformedInput)
	}
	if strings.TrimSpace(author) == "" {
		return ChatMessage{}, fmt.Errorf("%w: message with blank author", ErrMalformedInput)
	}
	text, ok := e.Field("text")
	if !ok {
		return ChatMessage{}, fmt.Errorf("%w: message without string text", ErrMalformedInput)
	}
	return ChatMessage{Author: author, Text: text}, nil
}

func fromStruct(raw *structpb.Struct) (Envelope, error) {
	fields := raw.GetFields()
	tv, ok := fields["type"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedInput)
	}
	typ, ok := tv.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: type is not a string", ErrMalformedInput)
	}
	if typ.StringValue == "" {
		return Envelope{}, fmt.Errorf("%w: empty type", ErrMalformedInput)
	}
	return Envelope{
		Type: typ.StringValue,
		Data: fields["data"].GetStructValue(),
		Raw:  raw,
	}, nil
}
