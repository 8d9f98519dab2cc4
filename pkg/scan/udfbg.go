package scan

import "context"

// UDFBackgroundJob is the UDF-background scan job: every surviving record
// in a partition is stamped into a single-record UDF-call sub-transaction
// and handed to the submitter, rather than ever being serialized onto the
// client connection.
type UDFBackgroundJob struct {
	backgroundCore

	udf  UDFDef
	reg  *registry
	conn *ConnJobState
}

// UDFBackgroundJobParams bundles StartUDFBackgroundJob's collaborators.
type UDFBackgroundJobParams struct {
	Req       *ParsedRequest
	Conn      Conn
	Codec     Codec
	Submitter Submitter
	Registry  *registry
}

// StartUDFBackgroundJob validates and admits a UDF-background job. The
// predicate, if any, must be resolvable from metadata alone — this flavor
// never opens storage to evaluate a filter. Admission is acknowledged by
// writing an immediate fin(OK) on the client connection; the scan itself
// runs independently of that connection from this point on.
func StartUDFBackgroundJob(p UDFBackgroundJobParams, cfg *NamespaceConfig) (*UDFBackgroundJob, error) {
	req := p.Req

	if !cfg.UDFEnabled {
		return nil, newError(ReasonForbidden, "udf execution disabled")
	}
	if req.UDFDef == nil {
		return nil, newError(ReasonParameter, "udf background scan requires a udf definition")
	}
	if req.Predicate != nil && !req.Predicate.SupportsMetadataOnly() {
		return nil, newError(ReasonUnsupportedFeature, "predicate is not metadata-resolvable")
	}

	rps := resolveBackgroundRPS(req.RPS, cfg.BackgroundMaxRPS)

	core := NewJobCore(req.Trid, cfg.Name, req.SetName, req.SetID, req.Partitions, rps, req.ClientID, cfg.Logger)

	handle := p.Registry.reserve()
	infoBits := InfoWrite
	if req.DurableDelete {
		infoBits |= InfoDurableDelete
	}
	origin := &OriginTemplate{
		Predicate:   req.Predicate,
		InfoBits:    infoBits,
		OwnerHandle: handle,
	}

	job := &UDFBackgroundJob{
		backgroundCore: backgroundCore{
			JobCore:   core,
			origin:    origin,
			submitter: p.Submitter,
			throttle:  newThrottler(rps),
			metrics:   cfg.Metrics,
			kind:      KindUDFBackground,
		},
		udf: *req.UDFDef,
		reg: p.Registry,
	}
	p.Registry.bind(handle, job)

	conn := NewConnJobState(p.Conn, req.SocketTimeoutMs, p.Codec, &job.JobCore)
	conn.FinishAndClose(ReasonNone)
	job.conn = conn

	return job, nil
}

var _ CompletionReceiver = (*UDFBackgroundJob)(nil)

// connBytesOut is kept only for its accumulated BytesOut(); FinishAndClose
// already ran once, at admission.
func (j *UDFBackgroundJob) connBytesOut() uint64 {
	if j.conn == nil {
		return 0
	}
	return j.conn.BytesOut()
}

// Slice implements the shared background walk, stamping a TxnUDF
// sub-transaction per surviving record.
func (j *UDFBackgroundJob) Slice(rsv Reservation) error {
	return j.sliceBackground(context.Background(), rsv, func(d Digest) InternalTxn {
		return InternalTxn{
			Kind:       TxnUDF,
			Digest:     d,
			Origin:     j.origin,
			OnComplete: j.reg.completionFunc(j.origin.OwnerHandle),
		}
	})
}

func (j *UDFBackgroundJob) Finish() {
	j.finishBackground()
}

func (j *UDFBackgroundJob) Destroy() {
	j.reg.forget(j.origin.OwnerHandle)
	j.origin = nil
}

func (j *UDFBackgroundJob) Info() JobStat {
	return JobStat{
		Trid:        j.Trid,
		Kind:        KindUDFBackground,
		Namespace:   j.Namespace,
		SetName:     j.SetName,
		ClientID:    j.ClientID,
		Abandoned:   j.Abandoned(),
		Counters:    j.counters(),
		NetIOBytes:  j.connBytesOut(),
		NActiveTxns: j.activeTxns(),
	}
}
