package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformedInput is wrapped by every decoding failure.
var ErrMalformedInput = errors.New("malformed input")

// Encode converts outgoing chat text into its wire form.
// The server expects the raw text, not an envelope.
func Encode(text string) []byte {
	return []byte(text)
}

// Decode decodes a UTF-16 encoded JSON envelope.
func Decode(data []byte) (Envelope, error) {
	text, err := decodeUTF16(data)
	if err != nil {
		return Envelope{}, err
	}
	return DecodeText(text)
}

// DecodeText decodes a JSON envelope that has already been converted to a
// Go string, as happens for websocket text frames.
func DecodeText(text string) (Envelope, error) {
	raw := &structpb.Struct{}
	if err := protojson.Unmarshal([]byte(text), raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return fromStruct(raw)
}

// EncodeEnvelope renders env as UTF-16LE JSON with a byte order mark,
// the form servers use for inbound chat frames.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	raw := env.Raw
	if raw == nil {
		var err error
		raw, err = structpb.NewStruct(map[string]any{"type": env.Type})
		if err != nil {
			return nil, fmt.Errorf("failed to encode envelope: %w", err)
		}
		if env.Data != nil {
			raw.Fields["data"] = structpb.NewStructValue(env.Data)
		}
	}
	text, err := protojson.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return encodeUTF16(text)
}
