// Package codec handles the compressed on-disk encoding of object
// payloads. Payloads are zstd-compressed unless compression does not
// shrink them, in which case the raw bytes are stored; a stored payload
// whose length equals the recorded uncompressed size is raw by
// definition, so no extra framing is needed.
package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrCorrupt is returned when a stored payload fails to decode or does
// not decompress to the recorded size.
var ErrCorrupt = errors.New("corrupt object data")

// Codec encodes and decodes object payloads. It is stateless apart from
// the reusable zstd encoder and decoder, and safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// encoderLevel maps the configured level to a zstd level: 1 fastest,
// 2 default, 3 better compression. Anything else falls back to the
// default.
func encoderLevel(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

// New creates a codec with the given compression level.
func New(level int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Codec{enc: enc, dec: dec}, nil
}

// Encode compresses data and returns the payload to store along with
// the uncompressed size. Incompressible data is returned as-is, so
// len(payload) == size marks a raw payload.
func (c *Codec) Encode(data []byte) (payload []byte, size int) {
	size = len(data)
	compressed := c.enc.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= size {
		return data, size
	}
	return compressed, size
}

// Decode reverses Encode. size is the recorded uncompressed size from
// the object record; it both selects the raw-vs-compressed path and
// validates the result. Any decode failure or length mismatch reports
// ErrCorrupt rather than returning wrong bytes.
func (c *Codec) Decode(payload []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrCorrupt, size)
	}

	if len(payload) == size {
		// Stored raw. Copy so the caller never aliases index-owned
		// memory.
		out := make([]byte, size)
		copy(out, payload)
		return out, nil
	}

	if len(payload) > size {
		// A compressed payload is always smaller than its source.
		return nil, fmt.Errorf("%w: payload length %d exceeds size %d", ErrCorrupt, len(payload), size)
	}

	out, err := c.dec.DecodeAll(payload, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: decompressed to %d bytes, want %d", ErrCorrupt, len(out), size)
	}
	return out, nil
}

// Close releases the encoder and decoder.
func (c *Codec) Close() error {
	if c.enc != nil {
		c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
	return nil
}
