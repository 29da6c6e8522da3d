// Package connect provides Connect RPC service implementations.
package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// codecName replaces connect's protobuf JSON codec for plain Go messages.
const codecName = "json"

// JSONCodec marshals plain Go structs with encoding/json.
type JSONCodec struct{}

// Name returns the codec name used in content types.
func (JSONCodec) Name() string {
	return codecName
}

// Marshal encodes a message.
func (JSONCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return data, nil
}

// Unmarshal decodes a message. An empty body leaves msg zero.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return nil
}
