package scan

import (
	"encoding/binary"
)

// BinNameMaxLen bounds a single bin name.
const BinNameMaxLen = 15

// UDFOpField distinguishes the three udf_op values the message-type table
// dispatches on.
type UDFOpField uint8

const (
	UDFOpNone UDFOpField = iota
	UDFOpAggregate
	UDFOpBackground
)

// OpField is one client-supplied wire op.
type OpField struct {
	BinName string
	IsRead  bool
}

// RawRequest is the decoded-but-unvalidated form of everything the client
// message can carry. Each field is present-or-absent independently,
// mirrored here with pointers/nil-slices for "absent."
type RawRequest struct {
	Trid     uint64
	ClientID string

	IsUDF         bool
	UDFOp         UDFOpField
	InfoWrite     bool // info2.WRITE bit
	DurableDelete bool
	ReplaceOnly   bool

	Set []byte // nil/empty => whole namespace

	HasScanOptions   bool
	ScanOptionsByte0 byte
	ScanOptionsByte1 byte

	PartitionIDs []uint16 // nil if field absent
	Digests      [][DigestSize]byte

	HasSampleMax bool
	SampleMax    uint64

	HasRPS bool
	RPS    uint32

	HasSocketTimeout bool
	SocketTimeoutMs  uint32

	PredicateExpr []byte // nil if absent

	UDFDef *UDFDef
	Ops    []OpField
}

// ParsedRequest is the validated, job-ready result of parsing a RawRequest.
// No job is allocated until parsing succeeds.
type ParsedRequest struct {
	Trid     uint64
	ClientID string

	SetName string
	SetID   uint16 // InvalidSetID for whole namespace

	Partitions []PartitionRequest // nil if the client gave no list

	Options ScanOptions
	RPS     uint32

	SocketTimeoutMs uint32 // 0 == infinite, parser convention

	Predicate Predicate

	SampleMax uint64

	BinNames []string // deduplicated; nil means "all bins"

	DurableDelete bool
	ReplaceOnly   bool
	UDFDef        *UDFDef
	Ops           []OpField
}

// SetLookup resolves a set name to its id; ok is false for an unknown set.
type SetLookup func(name string) (id uint16, ok bool)

// ParseRequest validates and decodes a RawRequest against a namespace's
// partition count. Failure returns the canonical Reason and never
// allocates a job.
func ParseRequest(raw *RawRequest, cfg *NamespaceConfig, lookup SetLookup) (*ParsedRequest, error) {
	if len(raw.Set) > 63 {
		return nil, newError(ReasonParameter, "set name too long")
	}

	partitions, err := parsePartitions(raw, cfg.NPartitions)
	if err != nil {
		return nil, err
	}

	setID := InvalidSetID
	setName := string(raw.Set)
	if setName != "" {
		id, ok := lookup(setName)
		if ok {
			setID = id
		} else if partitions == nil {
			// Unknown set with no explicit partition list: the legacy
			// whole-namespace path rejects this outright.
			return nil, newError(ReasonNotFound, "unknown set: "+setName)
		}
		// Unknown set tolerated only in partition-list mode; the
		// job will simply never find a record to match this set.
	}

	opts := ScanOptions{Priority: 0, SamplePct: 100}
	if raw.HasScanOptions {
		opts.Priority = int(raw.ScanOptionsByte0 & 0x0f)
		opts.FailOnClusterChange = raw.ScanOptionsByte0&0x10 != 0
		if raw.ScanOptionsByte1 > 100 {
			return nil, newError(ReasonParameter, "sample percent out of range")
		}
		opts.SamplePct = int(raw.ScanOptionsByte1)
	}

	rps := raw.RPS
	if !raw.HasRPS {
		rps = 0
	}
	if rps == 0 && opts.Priority == 1 {
		// Legacy priority==1 with no explicit rps implies the low-priority default.
		rps = LowPriorityRPS
	}

	socketTimeout := uint32(0)
	if raw.HasSocketTimeout {
		socketTimeout = raw.SocketTimeoutMs
	}

	var predicate Predicate
	if len(raw.PredicateExpr) > 0 {
		p, err := CompilePredicate(raw.PredicateExpr)
		if err != nil {
			return nil, err
		}
		predicate = p
	}

	binNames, err := parseBinNames(raw.Ops)
	if err != nil {
		return nil, err
	}

	sampleMax := uint64(0)
	if raw.HasSampleMax {
		sampleMax = raw.SampleMax
	}

	return &ParsedRequest{
		Trid:            raw.Trid,
		ClientID:        raw.ClientID,
		SetName:         setName,
		SetID:           setID,
		Partitions:      partitions,
		Options:         opts,
		RPS:             rps,
		SocketTimeoutMs: socketTimeout,
		Predicate:       predicate,
		SampleMax:       sampleMax,
		BinNames:        binNames,
		DurableDelete:   raw.DurableDelete,
		ReplaceOnly:     raw.ReplaceOnly,
		UDFDef:          raw.UDFDef,
		Ops:             raw.Ops,
	}, nil
}

// parsePartitions merges the partition-id list and digest list into one
// fixed-size PartitionRequest array.
func parsePartitions(raw *RawRequest, nPartitions int) ([]PartitionRequest, error) {
	if raw.PartitionIDs == nil && raw.Digests == nil {
		return nil, nil
	}

	out := make([]PartitionRequest, nPartitions)
	seen := make(map[uint16]bool)

	for _, pid := range raw.PartitionIDs {
		if int(pid) >= nPartitions {
			return nil, newError(ReasonParameter, "partition id out of range")
		}
		if seen[pid] {
			return nil, newError(ReasonParameter, "duplicate partition id")
		}
		seen[pid] = true
		out[pid].Requested = true
	}

	for _, raw20 := range raw.Digests {
		var d Digest
		copy(d[:], raw20[:])
		pid := uint16(d.PartitionID(nPartitions))
		if seen[pid] && out[pid].HasDigest {
			return nil, newError(ReasonParameter, "duplicate digest across partitions")
		}
		seen[pid] = true
		out[pid].Requested = true
		out[pid].HasDigest = true
		out[pid].Keyd = d
	}

	return out, nil
}

// parseBinNames derives and validates the bin-name filter from a client
// op list, deduplicating and enforcing BinNameMaxLen.
func parseBinNames(ops []OpField) ([]string, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(ops))
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		if len(op.BinName) > BinNameMaxLen {
			return nil, newError(ReasonBinName, "bin name exceeds limit: "+op.BinName)
		}
		if seen[op.BinName] {
			continue
		}
		seen[op.BinName] = true
		names = append(names, op.BinName)
	}
	return names, nil
}

// decodeU16LE reads a little-endian uint16, matching the wire encoding of
// the partition-id list.
func decodeU16LE(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
