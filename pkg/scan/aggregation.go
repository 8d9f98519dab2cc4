package scan

import (
	"context"
	"fmt"
)

// AggregationJob is the L2b aggregation scan job: per-partition iteration
// collecting surviving digests, then driving a user-defined aggregation
// pipeline whose output values are appended to the response stream.
type AggregationJob struct {
	JobCore

	conn *ConnJobState

	udf     UDFDef
	runtime Runtime

	metrics *Metrics
}

// AggregationJobParams bundles StartAggregationJob's collaborators.
type AggregationJobParams struct {
	Req     *ParsedRequest
	Conn    Conn
	Codec   Codec
	UDF     UDFDef
	Runtime Runtime
}

// StartAggregationJob validates and constructs an AggregationJob:
// disallowed when UDF execution is globally disabled, and predicate
// filters are rejected outright.
func StartAggregationJob(p AggregationJobParams, cfg *NamespaceConfig) (*AggregationJob, error) {
	if !cfg.UDFEnabled {
		return nil, newError(ReasonForbidden, "udf execution disabled")
	}
	if p.Req.Predicate != nil {
		return nil, newError(ReasonUnsupportedFeature, "predicate not supported on aggregation scans")
	}

	core := NewJobCore(p.Req.Trid, cfg.Name, p.Req.SetName, p.Req.SetID, p.Req.Partitions, p.Req.RPS, p.Req.ClientID, cfg.Logger)
	job := &AggregationJob{
		JobCore: core,
		udf:     p.UDF,
		runtime: p.Runtime,
		metrics: cfg.Metrics,
	}
	job.conn = NewConnJobState(p.Conn, p.Req.SocketTimeoutMs, p.Codec, &job.JobCore)
	return job, nil
}

// Slice implements the per-partition slice: collect live, surviving
// digests into a DigestList, then invoke the aggregation runtime once the
// partition has been fully walked.
func (j *AggregationJob) Slice(rsv Reservation) error {
	w := newChunkWriter(j.conn)
	partitionListMode := j.partitionListMode()

	if !rsv.HasTree() && partitionListMode {
		appendPartitionDone(&w.buf, uint16(rsv.Partition()), PartitionUnavailable)
		return w.flush()
	}

	var from *Digest
	if partitionListMode {
		pr := j.Partitions[rsv.Partition()]
		if pr.HasDigest {
			from = &pr.Keyd
		}
	}

	digests := NewDigestList()
	rsv.IterateLive(from, func(ref RecordRef) bool {
		if j.Abandoned() != ReasonNone {
			return false
		}
		if !recordVisible(&j.JobCore, ref) {
			return true
		}
		digests.Append(ref.Digest)
		return true
	})

	var runErr error
	if !digests.Empty() {
		sink := &frameValueSink{w: w}
		call := AggregationCall{
			Namespace:   j.Namespace,
			UDF:         j.udf,
			Digests:     digests,
			Reservation: rsv,
			Sink:        sink,
		}
		// pid is ignored: the runtime never re-dispatches across
		// partitions within a single slice, so the current slice's
		// reservation is returned regardless of pid.
		reserve := func(_ int) Reservation { return rsv }
		runErr = j.runtime.Run(context.Background(), call, reserve)
		if runErr != nil {
			msg := fmt.Sprintf("aggregation error: %v", runErr)
			_ = sink.WriteError(msg)
			j.Abandon(ReasonUnknown)
		}
	}

	if partitionListMode {
		appendPartitionDone(&w.buf, uint16(rsv.Partition()), PartitionOK)
	}
	if w.hasPayload() {
		if err := w.flush(); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// frameValueSink implements ValueSink by appending into the slice's
// chunkWriter and flushing once the payload exceeds ChunkLimit.
type frameValueSink struct {
	w *chunkWriter
}

func (s *frameValueSink) Write(value []byte) error {
	appendValue(&s.w.buf, value, false)
	return s.w.maybeFlush()
}

func (s *frameValueSink) WriteError(msg string) error {
	appendValue(&s.w.buf, []byte(msg), true)
	return s.w.maybeFlush()
}

// Finish sends the terminal fin frame and records the completion metric.
func (j *AggregationJob) Finish() {
	reason := j.Abandoned()
	j.conn.FinishAndClose(reason)
	j.metrics.RecordCompletion(KindAggregation, reason)
}

// Destroy is a no-op beyond what GC already reclaims; kept for interface
// symmetry and to document that the digest list/result sink are always
// slice-local and never outlive Slice.
func (j *AggregationJob) Destroy() {}

func (j *AggregationJob) Info() JobStat {
	return JobStat{
		Trid:       j.Trid,
		Kind:       KindAggregation,
		Namespace:  j.Namespace,
		SetName:    j.SetName,
		ClientID:   j.ClientID,
		Abandoned:  j.Abandoned(),
		Counters:   j.counters(),
		NetIOBytes: j.conn.BytesOut(),
	}
}
