// Package msgpack provides MessagePack encoding/decoding for Flight tickets
// and persisted grid state snapshots.
//
// Struct fields are named by their json tags when no msgpack tag is present,
// so grid types keep the same field names in both encodings.
package msgpack

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrEmpty is returned when decoding empty input.
var ErrEmpty = errors.New("empty MessagePack data")

// Decode deserializes MessagePack data into a Go value.
// The v parameter should be a pointer to the target structure.
//
// Example:
//
//	type Ticket struct {
//	    Dataset string `msgpack:"dataset"`
//	    Query   string `msgpack:"query"`
//	}
//
//	var t Ticket
//	err := msgpack.Decode(data, &t)
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmpty
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode MessagePack: %w", err)
	}

	return nil
}

// Encode serializes a Go value into MessagePack format.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}

	return buf.Bytes(), nil
}
