package scan

import (
	"bytes"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the chunk compression algorithm applied after framing.
type Codec uint8

const (
	// CodecNone sends the frame uncompressed; the default when the client
	// did not request compression.
	CodecNone Codec = iota
	// CodecS2 compresses with klauspost/compress's s2. The codec is always
	// the caller's explicit choice; nothing in this package selects S2 (or
	// any codec) as a default.
	CodecS2
	CodecSnappy
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecS2:
		return "s2"
	case CodecSnappy:
		return "snappy"
	case CodecLZ4:
		return "lz4"
	}
	return "none"
}

// compressChunk compresses payload with the requested codec. It is called
// once per outbound frame by the connection-bound base, never per record.
func compressChunk(codec Codec, payload []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecS2:
		return s2.Encode(nil, payload), nil
	case CodecSnappy:
		return snappy.Encode(nil, payload), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("scan: unknown codec %d", codec)
}

// decompressChunk reverses compressChunk; used only by tests asserting
// that encoding a record response then decoding it yields the same bytes.
func decompressChunk(codec Codec, payload []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecS2:
		return s2.Decode(nil, payload)
	case CodecSnappy:
		return snappy.Decode(nil, payload)
	case CodecLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("scan: unknown codec %d", codec)
}
