package scan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Wire framing for scan responses. Every response chunk sent on the
// client connection is a single frame:
//
//	{version byte, type byte, size uint64 big-endian, payload []byte}
//
// A frame's payload is a sequence of tagged entries: record responses,
// value responses, partition-done markers, each self-delimiting. The fin
// marker is always its own frame.
//
// The real wire protocol encoder, compressor negotiation, and socket
// transport are out of scope; this is the minimal concrete
// encoding needed to drive and test the job algorithms above it.

const (
	wireVersion    byte = 2
	frameTypeAsMsg byte = 1
	frameHeaderLen      = 1 + 1 + 8 // version + type + size
)

type entryTag byte

const (
	entryRecord entryTag = iota
	entryValue
	entryPartitionDone
	entryFin
)

// PartitionStatus is the status carried by a partition-done marker.
type PartitionStatus uint8

const (
	PartitionOK PartitionStatus = iota
	PartitionUnavailable
)

// RecordMeta is the metadata half of a record response.
type RecordMeta struct {
	Digest     Digest
	SetID      uint16
	Generation uint32
	ExpireAt   uint32
}

// Bin is a single named value within a record.
type Bin struct {
	Name  string
	Value []byte
}

// beginFrame reserves frameHeaderLen bytes at the end of buf and returns
// the offset to patch once the payload is known.
func beginFrame(buf *bytes.Buffer) int {
	offset := buf.Len()
	buf.Write(make([]byte, frameHeaderLen))
	return offset
}

// endFrame patches the header written by beginFrame now that the payload
// length is known.
func endFrame(buf *bytes.Buffer, offset int) {
	b := buf.Bytes()
	payloadLen := len(b) - offset - frameHeaderLen
	b[offset] = wireVersion
	b[offset+1] = frameTypeAsMsg
	binary.BigEndian.PutUint64(b[offset+2:offset+frameHeaderLen], uint64(payloadLen))
}

// frameHeaderSize reports the size of the frame header beginFrame reserves
// (used by callers deciding whether a flush would send an empty frame).
func frameHeaderSize() int { return frameHeaderLen }

// appendRecord serializes a record response entry: metadata, and either
// nothing more (no_bin_data) or a bin count followed by each bin.
func appendRecord(buf *bytes.Buffer, meta RecordMeta, bins []Bin, metaOnly bool) {
	buf.WriteByte(byte(entryRecord))
	buf.Write(meta.Digest[:])
	writeU16(buf, meta.SetID)
	writeU32(buf, meta.Generation)
	writeU32(buf, meta.ExpireAt)
	if metaOnly {
		buf.WriteByte(0)
		return
	}
	if len(bins) > RecordMaxBins {
		panic("scan: record exceeds the maximum bin count")
	}
	buf.WriteByte(1)
	writeU16(buf, uint16(len(bins)))
	for _, b := range bins {
		if len(b.Name) > 255 {
			panic("scan: bin name too long to encode")
		}
		buf.WriteByte(byte(len(b.Name)))
		buf.WriteString(b.Name)
		writeU32(buf, uint32(len(b.Value)))
		buf.Write(b.Value)
	}
}

// appendValue serializes an aggregation value response: either a
// successful emitted value or a formatted failure string.
func appendValue(buf *bytes.Buffer, value []byte, isErr bool) {
	buf.WriteByte(byte(entryValue))
	if isErr {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeU32(buf, uint32(len(value)))
	buf.Write(value)
}

// appendPartitionDone serializes a partition-done marker: emitted
// only when the client supplied an explicit partition list.
func appendPartitionDone(buf *bytes.Buffer, pid uint16, status PartitionStatus) {
	buf.WriteByte(byte(entryPartitionDone))
	writeU16(buf, pid)
	buf.WriteByte(byte(status))
}

// encodeFin builds the standalone terminal fin frame carrying the
// abandonment reason (or ReasonNone on success).
func encodeFin(reason Reason) []byte {
	var buf bytes.Buffer
	off := beginFrame(&buf)
	buf.WriteByte(byte(entryFin))
	buf.WriteByte(byte(reason))
	endFrame(&buf, off)
	return buf.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// DecodedFrame is the parsed form of one wire frame, used by tests to
// assert on what was sent without reimplementing the encoder.
type DecodedFrame struct {
	Version byte
	Type    byte
	Records []DecodedRecord
	Values  []DecodedValue
	Done    []DecodedPartitionDone
	Fin     *Reason
}

type DecodedRecord struct {
	Meta     RecordMeta
	Bins     []Bin
	MetaOnly bool
}

type DecodedValue struct {
	Value []byte
	IsErr bool
}

type DecodedPartitionDone struct {
	PartitionID uint16
	Status      PartitionStatus
}

// DecodeFrame parses a single frame (as produced by beginFrame/endFrame)
// out of r's remaining bytes.
func DecodeFrame(r *bytes.Reader) (*DecodedFrame, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint64(hdr[2:frameHeaderLen])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	pr := bytes.NewReader(payload)
	df := &DecodedFrame{Version: hdr[0], Type: hdr[1]}
	for pr.Len() > 0 {
		tagByte, err := pr.ReadByte()
		if err != nil {
			return nil, err
		}
		switch entryTag(tagByte) {
		case entryRecord:
			rec, err := decodeRecord(pr)
			if err != nil {
				return nil, err
			}
			df.Records = append(df.Records, *rec)
		case entryValue:
			val, err := decodeValue(pr)
			if err != nil {
				return nil, err
			}
			df.Values = append(df.Values, *val)
		case entryPartitionDone:
			pd, err := decodePartitionDone(pr)
			if err != nil {
				return nil, err
			}
			df.Done = append(df.Done, *pd)
		case entryFin:
			rb, err := pr.ReadByte()
			if err != nil {
				return nil, err
			}
			r := Reason(rb)
			df.Fin = &r
		default:
			return nil, fmt.Errorf("scan: unknown wire entry tag %d", tagByte)
		}
	}
	return df, nil
}

func decodeRecord(pr *bytes.Reader) (*DecodedRecord, error) {
	var meta RecordMeta
	if _, err := io.ReadFull(pr, meta.Digest[:]); err != nil {
		return nil, err
	}
	setID, err := readU16(pr)
	if err != nil {
		return nil, err
	}
	meta.SetID = setID
	gen, err := readU32(pr)
	if err != nil {
		return nil, err
	}
	meta.Generation = gen
	exp, err := readU32(pr)
	if err != nil {
		return nil, err
	}
	meta.ExpireAt = exp
	hasBins, err := pr.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasBins == 0 {
		return &DecodedRecord{Meta: meta, MetaOnly: true}, nil
	}
	n, err := readU16(pr)
	if err != nil {
		return nil, err
	}
	bins := make([]Bin, 0, n)
	for i := 0; i < int(n); i++ {
		nameLen, err := pr.ReadByte()
		if err != nil {
			return nil, err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(pr, nameBuf); err != nil {
			return nil, err
		}
		valLen, err := readU32(pr)
		if err != nil {
			return nil, err
		}
		val := make([]byte, valLen)
		if _, err := io.ReadFull(pr, val); err != nil {
			return nil, err
		}
		bins = append(bins, Bin{Name: string(nameBuf), Value: val})
	}
	return &DecodedRecord{Meta: meta, Bins: bins}, nil
}

func decodeValue(pr *bytes.Reader) (*DecodedValue, error) {
	isErrByte, err := pr.ReadByte()
	if err != nil {
		return nil, err
	}
	n, err := readU32(pr)
	if err != nil {
		return nil, err
	}
	val := make([]byte, n)
	if _, err := io.ReadFull(pr, val); err != nil {
		return nil, err
	}
	return &DecodedValue{Value: val, IsErr: isErrByte != 0}, nil
}

func decodePartitionDone(pr *bytes.Reader) (*DecodedPartitionDone, error) {
	pid, err := readU16(pr)
	if err != nil {
		return nil, err
	}
	statusByte, err := pr.ReadByte()
	if err != nil {
		return nil, err
	}
	return &DecodedPartitionDone{PartitionID: pid, Status: PartitionStatus(statusByte)}, nil
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
