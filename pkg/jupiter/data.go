package jupiter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// DecodeInstructionData normalizes an instruction payload to raw bytes. The
// payload may be a base64 string, an array of byte values, a serialized
// Buffer ({"type":"Buffer","data":[...]}) or an object keyed by byte index.
func DecodeInstructionData(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.Wrap(ErrMalformedInstruction, "instruction data missing")
	}

	switch trimmed[0] {
	case '"':
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, errors.Wrap(ErrMalformedInstruction, err.Error())
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedInstruction, "invalid base64 instruction data")
		}
		return decoded, nil
	case '[':
		return decodeByteArray(trimmed)
	case '{':
		var buffer struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &buffer); err == nil && buffer.Type == "Buffer" {
			return decodeByteArray(buffer.Data)
		}
		return decodeIndexedObject(trimmed)
	default:
		return nil, errors.Wrapf(ErrMalformedInstruction, "unsupported instruction data encoding: %q", trimmed[0])
	}
}

func decodeByteArray(raw json.RawMessage) ([]byte, error) {
	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(ErrMalformedInstruction, err.Error())
	}

	decoded := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, errors.Wrapf(ErrMalformedInstruction, "byte value %d out of range at index %d", v, i)
		}
		decoded[i] = byte(v)
	}
	return decoded, nil
}

// decodeIndexedObject handles typed arrays serialized as {"0":1,"1":2,...}.
// Indices must be contiguous from zero.
func decodeIndexedObject(raw json.RawMessage) ([]byte, error) {
	var values map[string]int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(ErrMalformedInstruction, err.Error())
	}

	decoded := make([]byte, len(values))
	for key, v := range values {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= len(values) {
			return nil, errors.Wrapf(ErrMalformedInstruction, "invalid byte index %q", key)
		}
		if v < 0 || v > 255 {
			return nil, errors.Wrapf(ErrMalformedInstruction, "byte value %d out of range at index %d", v, index)
		}
		decoded[index] = byte(v)
	}
	return decoded, nil
}
