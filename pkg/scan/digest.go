package scan

import (
	"encoding/binary"

	"golang.org/x/crypto/ripemd160"
)

// DigestSize is the fixed width of a record digest.
const DigestSize = 20

// Digest is a record's namespace-unique identity, derived from its set and
// user key. It is also how a partition id is derived.
type Digest [DigestSize]byte

// ComputeDigest derives the digest of a record from its set name and the raw
// key bytes, the same construction a real key-value digest uses: hash
// set||0x00||key with RIPEMD-160 and take the 20-byte result directly.
func ComputeDigest(set string, key []byte) Digest {
	h := ripemd160.New()
	h.Write([]byte(set))
	h.Write([]byte{0})
	h.Write(key)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// PartitionID returns the partition a digest belongs to, given the
// cluster's fixed partition count: the first two bytes of the digest read
// as a little-endian partition index, modulo nPartitions so the count need
// not be a power of two.
func (d Digest) PartitionID(nPartitions int) int {
	raw := binary.LittleEndian.Uint16(d[0:2])
	return int(raw) % nPartitions
}

// Less orders digests lexicographically; used to order records within the
// in-memory index (index.go).
func (d Digest) Less(other Digest) bool {
	for i := range d {
		if d[i] != other[i] {
			return d[i] < other[i]
		}
	}
	return false
}
