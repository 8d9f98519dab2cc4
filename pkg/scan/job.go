package scan

import "sync/atomic"

// Job is the capability set every scan variant implements: a tagged
// variant behind a capability set rather than a physical base-struct
// prefix. The scan manager only ever talks to jobs through this interface.
type Job interface {
	// Slice drives one partition's worth of record iteration against rsv.
	// Called concurrently, once per requested partition, by manager-owned
	// slice goroutines; never called twice concurrently for the same
	// partition.
	Slice(rsv Reservation) error

	// Finish is called by the manager exactly once, after every Slice call
	// for this job has returned. It must not return, for background jobs,
	// until all in-flight sub-transactions have drained.
	Finish()

	// Destroy releases owned resources (predicate, bin-name set, origin
	// template). Called by the manager after Finish returns.
	Destroy()

	// Info reports a point-in-time snapshot for monitoring/enumeration.
	Info() JobStat
}

// JobKind tags which of the four scan flavors a JobCore belongs to, purely
// for Info() reporting and logging; dispatch itself goes through the Job
// interface, never a type switch on Kind.
type JobKind uint8

const (
	KindBasic JobKind = iota
	KindAggregation
	KindUDFBackground
	KindOpsBackground
)

func (k JobKind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindAggregation:
		return "aggregation"
	case KindUDFBackground:
		return "udf-bg"
	case KindOpsBackground:
		return "ops-bg"
	}
	return "unknown"
}

// PartitionRequest is one entry of a client-supplied partition list.
// When HasDigest is set, iteration within that partition resumes from Keyd
// rather than the partition's first key.
type PartitionRequest struct {
	Requested bool
	HasDigest bool
	Keyd      Digest
}

// ScanOptions carries the legacy two-byte scan-options field.
type ScanOptions struct {
	Priority            int
	FailOnClusterChange bool
	SamplePct           int // [0,100]; field default is 100
}

// JobCore holds the fields common to every scan flavor. Concrete jobs
// embed JobCore by composition, not by physical prefix layout.
type JobCore struct {
	Trid      uint64
	Namespace string
	SetName   string
	SetID     uint16 // InvalidSetID means "whole namespace"
	Handle    Handle // stable back-reference for async completion callbacks

	Partitions []PartitionRequest // nil when no explicit partition list was given
	RPS        uint32
	ClientID   string

	logger Logger

	abandoned int32 // atomic Reason; 0 == ReasonNone == running

	succeeded    int64
	failed       int64
	filteredMeta int64
	filteredBins int64
}

// NewJobCore builds the common portion of every job; constructors call this
// then layer on flavor-specific state. A nil logger defaults to a silent
// no-op so call sites never need a nil check.
func NewJobCore(trid uint64, namespace, setName string, setID uint16, partitions []PartitionRequest, rps uint32, clientID string, logger Logger) JobCore {
	if logger == nil {
		logger = nopLogger{}
	}
	return JobCore{
		Trid:       trid,
		Namespace:  namespace,
		SetName:    setName,
		SetID:      setID,
		Partitions: partitions,
		RPS:        rps,
		ClientID:   clientID,
		logger:     logger,
	}
}

// WholeNamespace reports whether this job scans every set.
func (c *JobCore) WholeNamespace() bool {
	return c.SetID == InvalidSetID && c.SetName == ""
}

// partitionListMode reports whether the client supplied an explicit
// partition/digest list, vs. "all partitions."
func (c *JobCore) partitionListMode() bool { return c.Partitions != nil }

// Abandon sets the terminal reason exactly once, written by whoever first
// detects a terminal condition; later callers are no-ops.
func (c *JobCore) Abandon(reason Reason) {
	if atomic.CompareAndSwapInt32(&c.abandoned, int32(ReasonNone), int32(reason)) {
		c.logger.Log(LevelInfo, "job abandoned", "trid", c.Trid, "namespace", c.Namespace, "reason", reason.String())
	}
}

// Abandoned reports the current terminal reason (ReasonNone if still
// running). All callers use a relaxed atomic load.
func (c *JobCore) Abandoned() Reason {
	return Reason(atomic.LoadInt32(&c.abandoned))
}

func (c *JobCore) addSucceeded(n int64)    { atomic.AddInt64(&c.succeeded, n) }
func (c *JobCore) addFailed(n int64)       { atomic.AddInt64(&c.failed, n) }
func (c *JobCore) addFilteredMeta(n int64) { atomic.AddInt64(&c.filteredMeta, n) }
func (c *JobCore) addFilteredBins(n int64) { atomic.AddInt64(&c.filteredBins, n) }

// Counters is a point-in-time read of the four per-job tallies.
type Counters struct {
	Succeeded    int64
	Failed       int64
	FilteredMeta int64
	FilteredBins int64
}

func (c *JobCore) counters() Counters {
	return Counters{
		Succeeded:    atomic.LoadInt64(&c.succeeded),
		Failed:       atomic.LoadInt64(&c.failed),
		FilteredMeta: atomic.LoadInt64(&c.filteredMeta),
		FilteredBins: atomic.LoadInt64(&c.filteredBins),
	}
}

// JobStat is the snapshot returned by Job.Info and enumerated by
// get_all_jobs.
type JobStat struct {
	Trid        uint64
	Kind        JobKind
	Namespace   string
	SetName     string
	ClientID    string
	Abandoned   Reason
	Counters    Counters
	NetIOBytes  uint64
	NActiveTxns int64
}

// recordVisible reports whether a record belongs to the requested set and
// is not doomed; shared by the basic job's per-record filter and the
// background core's identical check.
func recordVisible(core *JobCore, ref RecordRef) bool {
	if ref.Doomed {
		return false
	}
	if core.WholeNamespace() {
		return true
	}
	return ref.SetID == core.SetID
}
