package scan

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)

	for _, codec := range []Codec{CodecNone, CodecS2, CodecSnappy, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := compressChunk(codec, payload)
			if err != nil {
				t.Fatalf("compressChunk(%v) error = %v", codec, err)
			}
			decompressed, err := decompressChunk(codec, compressed)
			if err != nil {
				t.Fatalf("decompressChunk(%v) error = %v", codec, err)
			}
			if !bytes.Equal(decompressed, payload) {
				t.Fatalf("round trip mismatch for codec %v", codec)
			}
		})
	}
}

func TestCompressNoneIsIdentity(t *testing.T) {
	payload := []byte("unchanged")
	out, err := compressChunk(CodecNone, payload)
	if err != nil {
		t.Fatalf("compressChunk error = %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("CodecNone should return the payload unchanged")
	}
}

func TestCompressUnknownCodecErrors(t *testing.T) {
	if _, err := compressChunk(Codec(99), []byte("x")); err == nil {
		t.Fatal("expected error for unknown codec")
	}
	if _, err := decompressChunk(Codec(99), []byte("x")); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestCodecString(t *testing.T) {
	cases := map[Codec]string{
		CodecNone:   "none",
		CodecS2:     "s2",
		CodecSnappy: "snappy",
		CodecLZ4:    "lz4",
	}
	for codec, want := range cases {
		if got := codec.String(); got != want {
			t.Errorf("Codec(%d).String() = %q, want %q", codec, got, want)
		}
	}
}
