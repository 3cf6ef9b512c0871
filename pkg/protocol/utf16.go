package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var (
	bomBigEndian    = []byte{0xFE, 0xFF}
	bomLittleEndian = []byte{0xFF, 0xFE}
)

// decodeUTF16 converts UTF-16 bytes to a Go string. A leading byte order
// mark selects the endianness; without one the input is big-endian.
// The x/text decoder substitutes U+FFFD for broken sequences, so the code
// units are validated first.
func decodeUTF16(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", fmt.Errorf("%w: odd UTF-16 length %d", ErrMalformedInput, len(data))
	}

	endianness := unicode.BigEndian
	var order binary.ByteOrder = binary.BigEndian
	switch {
	case bytes.HasPrefix(data, bomBigEndian):
		data = data[2:]
	case bytes.HasPrefix(data, bomLittleEndian):
		endianness = unicode.LittleEndian
		order = binary.LittleEndian
		data = data[2:]
	}

	if err := validateSurrogates(data, order); err != nil {
		return "", err
	}

	decoded, err := unicode.UTF16(endianness, unicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return string(decoded), nil
}

func validateSurrogates(data []byte, order binary.ByteOrder) error {
	for i := 0; i < len(data); i += 2 {
		u := order.Uint16(data[i:])
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+4 > len(data) {
				return fmt.Errorf("%w: unpaired high surrogate at byte %d", ErrMalformedInput, i)
			}
			next := order.Uint16(data[i+2:])
			if next < 0xDC00 || next >= 0xE000 {
				return fmt.Errorf("%w: unpaired high surrogate at byte %d", ErrMalformedInput, i)
			}
			i += 2
		case u >= 0xDC00 && u < 0xE000:
			return fmt.Errorf("%w: unpaired low surrogate at byte %d", ErrMalformedInput, i)
		}
	}
	return nil
}

func encodeUTF16(text []byte) ([]byte, error) {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes(text)
	if err != nil {
		return nil, fmt.Errorf("failed to encode UTF-16: %w", err)
	}
	return encoded, nil
}
