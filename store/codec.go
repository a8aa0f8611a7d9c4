package store

import (
	"fmt"

	"github.com/hugr-lab/pagefetch/grid"
	"github.com/hugr-lab/pagefetch/internal/msgpack"
	"github.com/hugr-lab/pagefetch/internal/serialize"
)

// Codec converts grid state to and from stored bytes.
// Implementations MUST be goroutine-safe.
type Codec interface {
	Encode(state grid.State) ([]byte, error)
	Decode(data []byte) (*grid.State, error)
}

// JSONCodec stores state in the grid's JSON format.
type JSONCodec struct{}

// Encode implements Codec.
func (JSONCodec) Encode(state grid.State) ([]byte, error) {
	return state.Marshal()
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (*grid.State, error) {
	return grid.Parse(data)
}

// MsgpackCodec stores state as MessagePack, optionally ZStandard-compressed.
// Decode accepts both compressed and uncompressed values.
type MsgpackCodec struct {
	compressor   *serialize.Compressor
	decompressor *serialize.Decompressor
}

// NewMsgpackCodec creates a MessagePack codec. With compress set, encoded
// values are ZStandard frames.
func NewMsgpackCodec(compress bool) (*MsgpackCodec, error) {
	c := &MsgpackCodec{}
	if compress {
		comp, err := serialize.NewCompressor()
		if err != nil {
			return nil, err
		}
		c.compressor = comp
	}
	dec, err := serialize.NewDecompressor()
	if err != nil {
		if c.compressor != nil {
			c.compressor.Close()
		}
		return nil, err
	}
	c.decompressor = dec
	return c, nil
}

// Encode implements Codec.
func (c *MsgpackCodec) Encode(state grid.State) ([]byte, error) {
	data, err := msgpack.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("store: failed to encode state: %w", err)
	}
	if c.compressor == nil {
		return data, nil
	}
	return c.compressor.Compress(data)
}

// Decode implements Codec.
func (c *MsgpackCodec) Decode(data []byte) (*grid.State, error) {
	if len(data) == 0 {
		return &grid.State{}, nil
	}
	if serialize.IsCompressed(data) {
		raw, err := c.decompressor.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("store: failed to decompress state: %w", err)
		}
		data = raw
	}

	var s grid.State
	if err := msgpack.Decode(data, &s); err != nil {
		return nil, fmt.Errorf("store: failed to decode state: %w", err)
	}
	return &s, nil
}

// Close releases compression resources.
func (c *MsgpackCodec) Close() error {
	if c.decompressor != nil {
		c.decompressor.Close()
	}
	if c.compressor != nil {
		return c.compressor.Close()
	}
	return nil
}
