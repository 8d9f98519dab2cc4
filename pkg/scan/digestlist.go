package scan

// digestChunkSize is the fixed array size of each DigestList node.
const digestChunkSize = 512

type digestChunk struct {
	buf  [digestChunkSize]Digest
	n    int
	next *digestChunk
}

// DigestList is an append-only linked list of fixed-size digest arrays,
// used by the aggregation job to collect a slice's surviving digests
// before handing them to the aggregation runtime.
type DigestList struct {
	head *digestChunk
	tail *digestChunk
	len  int
}

// NewDigestList returns an empty list.
func NewDigestList() *DigestList { return &DigestList{} }

// Append adds one digest, allocating a new chunk node when the tail array
// is full.
func (l *DigestList) Append(d Digest) {
	if l.tail == nil || l.tail.n == digestChunkSize {
		node := &digestChunk{}
		if l.tail == nil {
			l.head = node
		} else {
			l.tail.next = node
		}
		l.tail = node
	}
	l.tail.buf[l.tail.n] = d
	l.tail.n++
	l.len++
}

// Len reports the total number of digests appended.
func (l *DigestList) Len() int { return l.len }

// Empty reports whether no digest was ever appended, gating whether the
// aggregation runtime is invoked at all.
func (l *DigestList) Empty() bool { return l.len == 0 }

// Flatten copies every digest into a single slice, in append order. Used
// by FuncRuntime and by tests; the real runtime would walk chunks directly
// to avoid the copy.
func (l *DigestList) Flatten() []Digest {
	out := make([]Digest, 0, l.len)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.buf[:n.n]...)
	}
	return out
}
