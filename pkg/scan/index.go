package scan

import (
	"sort"
	"sync"
)

// RecordRef is what the out-of-scope partition index hands the job
// algorithms for each visited record: enough metadata to apply the
// set/doomed filter and the predicate's metadata phase without opening
// storage.
type RecordRef struct {
	Digest     Digest
	SetID      uint16
	Live       bool
	Doomed     bool
	Generation uint32
	ExpireAt   uint32
}

// Reservation is the out-of-scope "partition reservation / index
// iteration" contract: a short-lived hold on one partition's
// index tree. IterateLive walks reduce_live-style (live records only,
// optionally resuming from a digest); IterateAll walks reduce_from-style
// (every record including tombstones, pre-filter, bounded by limit).
//
// Both iterators stop as soon as visit returns false.
type Reservation interface {
	Partition() int
	HasTree() bool
	Size() int
	IterateLive(from *Digest, visit func(RecordRef) bool)
	IterateAll(from *Digest, limit int, visit func(RecordRef) bool)
}

// StoredRecord is the out-of-scope storage record handle.
type StoredRecord interface {
	Bins() []Bin
	Close()
}

// Store opens storage records by digest.
type Store interface {
	Open(d Digest) (StoredRecord, bool)
}

// --- in-memory reference implementation, used by tests and cmd/scanbench ---

// partitionTree is one partition's ordered record index. Records are kept
// in a digest-sorted slice, the records the real record-index tree would
// hand back to reduce_live/reduce_from in key order.
type partitionTree struct {
	mu      sync.Mutex
	pid     int
	nodes   []RecordRef
	nilTree bool // simulates rsv.tree == nil
}

func newPartitionTree(pid int) *partitionTree {
	return &partitionTree{pid: pid}
}

func (p *partitionTree) Partition() int { return p.pid }
func (p *partitionTree) HasTree() bool  { return !p.nilTree }
func (p *partitionTree) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes)
}

// insert keeps p.nodes sorted by digest, overwriting an existing entry
// for the same digest rather than appending a duplicate.
func (p *partitionTree) insert(ref RecordRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.nodes), func(i int) bool {
		return !p.nodes[i].Digest.Less(ref.Digest)
	})
	if i < len(p.nodes) && p.nodes[i].Digest == ref.Digest {
		p.nodes[i] = ref
		return
	}
	p.nodes = append(p.nodes, RecordRef{})
	copy(p.nodes[i+1:], p.nodes[i:])
	p.nodes[i] = ref
}

// sorted returns a stable snapshot of the partition's records in digest
// order, starting at from if given. Locking only protects the snapshot
// copy; iteration itself runs lock-free, with record locks held only
// around storage open/close.
func (p *partitionTree) sorted(from *Digest) []RecordRef {
	p.mu.Lock()
	refs := make([]RecordRef, len(p.nodes))
	copy(refs, p.nodes)
	p.mu.Unlock()

	if from == nil {
		return refs
	}
	start := 0
	for i, r := range refs {
		if !r.Digest.Less(*from) {
			start = i
			break
		}
		start = i + 1
	}
	return refs[start:]
}

func (p *partitionTree) IterateLive(from *Digest, visit func(RecordRef) bool) {
	for _, r := range p.sorted(from) {
		if !r.Live || r.Doomed {
			continue
		}
		if !visit(r) {
			return
		}
	}
}

func (p *partitionTree) IterateAll(from *Digest, limit int, visit func(RecordRef) bool) {
	visited := 0
	for _, r := range p.sorted(from) {
		if limit > 0 && visited >= limit {
			return
		}
		visited++
		if !visit(r) {
			return
		}
	}
}

// MemIndex is a whole-namespace in-memory fake for the record index and
// storage layer, sized for tests, not production.
type MemIndex struct {
	nPartitions int
	partitions  []*partitionTree

	mu   sync.Mutex
	bins map[Digest][]Bin
}

// NewMemIndex builds an empty index with the given partition count.
func NewMemIndex(nPartitions int) *MemIndex {
	m := &MemIndex{
		nPartitions: nPartitions,
		partitions:  make([]*partitionTree, nPartitions),
		bins:        make(map[Digest][]Bin),
	}
	for i := range m.partitions {
		m.partitions[i] = newPartitionTree(i)
	}
	return m
}

// Put inserts or overwrites a record.
func (m *MemIndex) Put(set string, key []byte, setID uint16, bins []Bin, live, doomed bool, generation, expireAt uint32) Digest {
	d := ComputeDigest(set, key)
	pid := d.PartitionID(m.nPartitions)

	m.mu.Lock()
	m.bins[d] = bins
	m.mu.Unlock()

	m.partitions[pid].insert(RecordRef{
		Digest:     d,
		SetID:      setID,
		Live:       live,
		Doomed:     doomed,
		Generation: generation,
		ExpireAt:   expireAt,
	})
	return d
}

// Reservation returns the Reservation for a partition id.
func (m *MemIndex) Reservation(pid int) Reservation { return m.partitions[pid] }

// MarkTreeNil simulates a partition whose reservation has no tree.
func (m *MemIndex) MarkTreeNil(pid int) { m.partitions[pid].nilTree = true }

// Open implements Store.
func (m *MemIndex) Open(d Digest) (StoredRecord, bool) {
	m.mu.Lock()
	bins, ok := m.bins[d]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return &memRecord{bins: bins}, true
}

type memRecord struct{ bins []Bin }

func (r *memRecord) Bins() []Bin { return r.bins }
func (r *memRecord) Close()      {}
