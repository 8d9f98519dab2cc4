package scan

import (
	"math"
	"sync/atomic"
)

// BasicJob is the L2a basic scan job: per-partition iteration emitting
// record responses (full bins, a bin-name subset, or metadata only) with
// optional predicate filtering and sampling.
type BasicJob struct {
	JobCore

	conn  *ConnJobState
	store Store

	clusterKeyAtStart   uint64
	clusterKeyFn        func() uint64
	failOnClusterChange bool

	noBinData bool

	samplePct       int
	sampleMax       uint64
	sampleCount     int64 // atomic, only meaningful in sample-max mode
	maxPerPartition int

	predicate     Predicate
	binNameFilter map[string]bool // nil means "all bins"

	throttle throttler
	metrics  *Metrics
}

// BasicJobParams bundles everything StartBasicJob needs beyond the
// namespace config: the parsed request and the collaborators the manager
// wires in (connection, storage, codec). The cluster-key observer comes
// from the namespace config's ClusterKey.
type BasicJobParams struct {
	Req   *ParsedRequest
	Conn  Conn
	Store Store
	Codec Codec
}

// StartBasicJob constructs a BasicJob from an already-parsed request; it
// performs no validation of its own and always returns a nil error. It
// never opens storage or touches the index; that happens per-record during
// Slice.
func StartBasicJob(p BasicJobParams, cfg *NamespaceConfig) (*BasicJob, error) {
	req := p.Req

	nPids := estimateNPids(req.Partitions, cfg.ClusterSize, cfg.NPartitions)

	maxPerPartition := 0
	if req.SampleMax > 0 {
		// Sample-max split policy: ceil(sample_max/n_pids) + margin.
		maxPerPartition = int(math.Ceil(float64(req.SampleMax)/float64(nPids))) + SampleMargin
	}

	var binFilter map[string]bool
	if len(req.BinNames) > 0 {
		binFilter = make(map[string]bool, len(req.BinNames))
		for _, n := range req.BinNames {
			binFilter[n] = true
		}
	}

	core := NewJobCore(req.Trid, cfg.Name, req.SetName, req.SetID, req.Partitions, req.RPS, req.ClientID, cfg.Logger)

	job := &BasicJob{
		JobCore:             core,
		store:               p.Store,
		clusterKeyAtStart:   cfg.ClusterKey(),
		clusterKeyFn:        cfg.ClusterKey,
		failOnClusterChange: req.Options.FailOnClusterChange,
		noBinData:           false,
		samplePct:           req.Options.SamplePct,
		sampleMax:           req.SampleMax,
		maxPerPartition:     maxPerPartition,
		predicate:           req.Predicate,
		binNameFilter:       binFilter,
		throttle:            newThrottler(req.RPS),
		metrics:             cfg.Metrics,
	}
	job.conn = NewConnJobState(p.Conn, req.SocketTimeoutMs, p.Codec, &job.JobCore)
	return job, nil
}

// estimateNPids implements the sample-max split policy: the number of
// partitions actually requested, or an estimate of N_PARTITIONS/cluster_size
// when no list was supplied. The estimate is undefined when clusterSize is
// zero or unusual; this implementation floors it at 1 to avoid a
// divide-by-zero rather than guessing further intent.
func estimateNPids(partitions []PartitionRequest, clusterSize, nPartitions int) int {
	if partitions != nil {
		n := 0
		for _, p := range partitions {
			if p.Requested {
				n++
			}
		}
		if n > 0 {
			return n
		}
		return 1
	}
	if clusterSize <= 0 {
		clusterSize = 1
	}
	n := nPartitions / clusterSize
	if n <= 0 {
		n = 1
	}
	return n
}

// Slice implements the per-partition slice algorithm.
func (j *BasicJob) Slice(rsv Reservation) error {
	w := newChunkWriter(j.conn)

	partitionListMode := j.partitionListMode()

	if !rsv.HasTree() && partitionListMode {
		appendPartitionDone(&w.buf, uint16(rsv.Partition()), PartitionUnavailable)
		return w.flush()
	}
	if j.SetID == InvalidSetID && j.SetName != "" {
		// Only reachable in partition-list mode: unknown set
		// tolerated per-partition, nothing to scan here.
		appendPartitionDone(&w.buf, uint16(rsv.Partition()), PartitionOK)
		return w.flush()
	}

	var from *Digest
	if partitionListMode {
		pr := j.Partitions[rsv.Partition()]
		if pr.HasDigest {
			from = &pr.Keyd
		}
	}

	var iterErr error
	switch {
	case j.maxPerPartition > 0:
		rsv.IterateLive(from, func(ref RecordRef) bool {
			cont, err := j.visitSampleMax(w, ref)
			if err != nil {
				iterErr = err
			}
			return cont
		})
	case j.samplePct < 100:
		limit := rsv.Size() * j.samplePct / 100
		localCount := 0
		rsv.IterateAll(from, 0, func(ref RecordRef) bool {
			// Abandonment and cluster-key checks run on every pre-filter
			// visit, ahead of the sample-pct count below.
			if j.Abandoned() != ReasonNone {
				return false
			}
			if j.failOnClusterChange && j.clusterKeyFn() != j.clusterKeyAtStart {
				j.Abandon(ReasonClusterKeyMismatch)
				return false
			}
			localCount++
			if localCount >= limit {
				// The count increments before the comparison, so the visit
				// that ties the limit is always skipped rather than processed.
				return false
			}
			if !ref.Live {
				return true // not live: skip without opening storage
			}
			cont, err := j.visitLive(w, ref)
			if err != nil {
				iterErr = err
			}
			return cont
		})
	default:
		rsv.IterateLive(from, func(ref RecordRef) bool {
			cont, err := j.visitLive(w, ref)
			if err != nil {
				iterErr = err
			}
			return cont
		})
	}

	if partitionListMode {
		appendPartitionDone(&w.buf, uint16(rsv.Partition()), PartitionOK)
	}
	if w.hasPayload() {
		if err := w.flush(); err != nil && iterErr == nil {
			iterErr = err
		}
	}
	return iterErr
}

// visitLive implements the ordered per-record visitor policy: abandonment
// and cluster-key checks, visibility, metadata predicate, storage open,
// bin predicate, sampling, serialization, throttling — shared by full
// mode, sample-max mode, and the sample-pct live path.
func (j *BasicJob) visitLive(w *chunkWriter, ref RecordRef) (cont bool, err error) {
	if j.Abandoned() != ReasonNone {
		return false, nil
	}
	if j.failOnClusterChange && j.clusterKeyFn() != j.clusterKeyAtStart {
		j.Abandon(ReasonClusterKeyMismatch)
		return false, nil
	}
	if !recordVisible(&j.JobCore, ref) {
		return true, nil
	}

	pred := j.predicate
	if pred != nil {
		switch pred.MatchMetadata(RecordMetadata{SetID: ref.SetID, Generation: ref.Generation, ExpireAt: ref.ExpireAt}) {
		case MatchTrue:
			pred = nil
		case MatchFalse:
			j.addFilteredMeta(1)
			return true, nil
		case MatchUnknown:
			// carried to bin-level stage below
		}
	}

	rec, ok := j.store.Open(ref.Digest)
	if !ok {
		j.addFailed(1)
		return true, nil
	}
	bins := rec.Bins()
	if pred != nil && !pred.MatchBins(bins) {
		rec.Close()
		j.addFilteredBins(1)
		return true, nil
	}

	lastSample := false
	if j.maxPerPartition > 0 {
		n := atomic.AddInt64(&j.sampleCount, 1)
		if uint64(n) > j.sampleMax {
			rec.Close()
			return false, nil
		}
		lastSample = uint64(n) == j.sampleMax
	}

	j.serialize(w, ref, bins)
	rec.Close()
	j.addSucceeded(1)

	if lastSample {
		return false, nil
	}

	j.throttle.wait(func() bool { return j.Abandoned() != ReasonNone })

	if err := w.maybeFlush(); err != nil {
		return false, err
	}
	return true, nil
}

// visitSampleMax is an alias for visitLive, kept as its own call site for
// readability at the sample-max IterateLive walk.
func (j *BasicJob) visitSampleMax(w *chunkWriter, ref RecordRef) (bool, error) {
	return j.visitLive(w, ref)
}

// serialize encodes one record response: metadata-only when noBinData,
// else every bin or the bin-name-filtered subset.
func (j *BasicJob) serialize(w *chunkWriter, ref RecordRef, bins []Bin) {
	meta := RecordMeta{Digest: ref.Digest, SetID: ref.SetID, Generation: ref.Generation, ExpireAt: ref.ExpireAt}
	if j.noBinData {
		appendRecord(&w.buf, meta, nil, true)
		return
	}
	selected := bins
	if j.binNameFilter != nil {
		selected = selected[:0:0]
		for _, b := range bins {
			if j.binNameFilter[b.Name] {
				selected = append(selected, b)
			}
		}
	}
	appendRecord(&w.buf, meta, selected, false)
}

// Finish sends the terminal fin frame carrying the job's abandonment
// reason (or ReasonNone) and records the completion metric.
func (j *BasicJob) Finish() {
	reason := j.Abandoned()
	j.conn.FinishAndClose(reason)
	j.metrics.RecordCompletion(KindBasic, reason)
}

// Destroy releases the predicate and bin-name filter.
func (j *BasicJob) Destroy() {
	j.predicate = nil
	j.binNameFilter = nil
}

func (j *BasicJob) Info() JobStat {
	return JobStat{
		Trid:       j.Trid,
		Kind:       KindBasic,
		Namespace:  j.Namespace,
		SetName:    j.SetName,
		ClientID:   j.ClientID,
		Abandoned:  j.Abandoned(),
		Counters:   j.counters(),
		NetIOBytes: j.conn.BytesOut(),
	}
}
