package scan

import "context"

// OpsBackgroundJob is the ops-background scan job: every surviving record
// is stamped with the client's write-op list and handed to the submitter as
// a single-record sub-transaction, the same way UDFBackgroundJob stamps a
// UDF call.
type OpsBackgroundJob struct {
	backgroundCore

	reg  *registry
	conn *ConnJobState
}

// OpsBackgroundJobParams bundles StartOpsBackgroundJob's collaborators.
type OpsBackgroundJobParams struct {
	Req       *ParsedRequest
	Conn      Conn
	Codec     Codec
	Submitter Submitter
	Registry  *registry
}

// StartOpsBackgroundJob validates and admits an ops-background job. The op
// list must be present and contain no read ops — this flavor only ever
// writes. Admission is acknowledged with an immediate fin(OK), identical to
// StartUDFBackgroundJob.
func StartOpsBackgroundJob(p OpsBackgroundJobParams, cfg *NamespaceConfig) (*OpsBackgroundJob, error) {
	req := p.Req

	if len(req.Ops) == 0 {
		return nil, newError(ReasonParameter, "ops background scan requires at least one op")
	}
	for _, op := range req.Ops {
		if op.IsRead {
			return nil, newError(ReasonParameter, "ops background scan does not support read ops")
		}
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
	info3Bits := Info3UpdateOnly
	if req.ReplaceOnly {
		info3Bits |= Info3ReplaceOnly
	}
	origin := &OriginTemplate{
		Predicate:   req.Predicate,
		InfoBits:    infoBits,
		Info3Bits:   info3Bits,
		OpListBytes: encodeOpList(req.Ops),
		OwnerHandle: handle,
	}

	job := &OpsBackgroundJob{
		backgroundCore: backgroundCore{
			JobCore:   core,
			origin:    origin,
			submitter: p.Submitter,
			throttle:  newThrottler(rps),
			metrics:   cfg.Metrics,
			kind:      KindOpsBackground,
		},
		reg: p.Registry,
	}
	p.Registry.bind(handle, job)

	conn := NewConnJobState(p.Conn, req.SocketTimeoutMs, p.Codec, &job.JobCore)
	conn.FinishAndClose(ReasonNone)
	job.conn = conn

	return job, nil
}

var _ CompletionReceiver = (*OpsBackgroundJob)(nil)

func (j *OpsBackgroundJob) connBytesOut() uint64 {
	if j.conn == nil {
		return 0
	}
	return j.conn.BytesOut()
}

// Slice implements the shared background walk, stamping a TxnOps
// sub-transaction per surviving record.
func (j *OpsBackgroundJob) Slice(rsv Reservation) error {
	return j.sliceBackground(context.Background(), rsv, func(d Digest) InternalTxn {
		return InternalTxn{
			Kind:       TxnOps,
			Digest:     d,
			Origin:     j.origin,
			OnComplete: j.reg.completionFunc(j.origin.OwnerHandle),
		}
	})
}

func (j *OpsBackgroundJob) Finish() {
	j.finishBackground()
}

func (j *OpsBackgroundJob) Destroy() {
	j.reg.forget(j.origin.OwnerHandle)
	j.origin = nil
}

func (j *OpsBackgroundJob) Info() JobStat {
	return JobStat{
		Trid:        j.Trid,
		Kind:        KindOpsBackground,
		Namespace:   j.Namespace,
		SetName:     j.SetName,
		ClientID:    j.ClientID,
		Abandoned:   j.Abandoned(),
		Counters:    j.counters(),
		NetIOBytes:  j.connBytesOut(),
		NActiveTxns: j.activeTxns(),
	}
}

// encodeOpList serializes a client op list into the bytes an
// OriginTemplate carries forward to every stamped sub-transaction: a count
// followed by each op's read flag and bin name.
func encodeOpList(ops []OpField) []byte {
	out := make([]byte, 0, 4+len(ops)*8)
	out = appendU32(out, uint32(len(ops)))
	for _, op := range ops {
		flag := byte(0)
		if op.IsRead {
			flag = 1
		}
		out = append(out, flag, byte(len(op.BinName)))
		out = append(out, op.BinName...)
	}
	return out
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
