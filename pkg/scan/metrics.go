package scan

import "sync/atomic"

// Metrics holds the observable per-namespace counters:
// scan_{basic|aggr|udf_bg|ops_bg}_{complete|abort|error}, plus the
// sub-transaction filtered counter background jobs bump per record.
type Metrics struct {
	basicComplete, basicAbort, basicError int64
	aggrComplete, aggrAbort, aggrError    int64
	udfBgComplete, udfBgAbort, udfBgError int64
	opsBgComplete, opsBgAbort, opsBgError int64
	subWriteFilteredOut                   int64
}

func NewMetrics() *Metrics { return &Metrics{} }

// RecordCompletion bumps the complete/abort/error counter for kind based on
// the job's terminal reason.
func (m *Metrics) RecordCompletion(kind JobKind, reason Reason) {
	var complete, abort, errc *int64
	switch kind {
	case KindBasic:
		complete, abort, errc = &m.basicComplete, &m.basicAbort, &m.basicError
	case KindAggregation:
		complete, abort, errc = &m.aggrComplete, &m.aggrAbort, &m.aggrError
	case KindUDFBackground:
		complete, abort, errc = &m.udfBgComplete, &m.udfBgAbort, &m.udfBgError
	case KindOpsBackground:
		complete, abort, errc = &m.opsBgComplete, &m.opsBgAbort, &m.opsBgError
	default:
		return
	}
	switch reason {
	case ReasonNone:
		atomic.AddInt64(complete, 1)
	case ReasonUserAbort:
		atomic.AddInt64(abort, 1)
	default:
		atomic.AddInt64(errc, 1)
	}
}

// AddSubWriteFilteredOut bumps the namespace-level filtered counter a
// background job's predicate rejection increments alongside the job's own
// filteredMeta.
func (m *Metrics) AddSubWriteFilteredOut(n int64) {
	atomic.AddInt64(&m.subWriteFilteredOut, n)
}

// Snapshot is a point-in-time read of every counter, for tests/monitoring.
type Snapshot struct {
	BasicComplete, BasicAbort, BasicError int64
	AggrComplete, AggrAbort, AggrError    int64
	UDFBgComplete, UDFBgAbort, UDFBgError int64
	OpsBgComplete, OpsBgAbort, OpsBgError int64
	SubWriteFilteredOut                   int64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BasicComplete:       atomic.LoadInt64(&m.basicComplete),
		BasicAbort:          atomic.LoadInt64(&m.basicAbort),
		BasicError:          atomic.LoadInt64(&m.basicError),
		AggrComplete:        atomic.LoadInt64(&m.aggrComplete),
		AggrAbort:           atomic.LoadInt64(&m.aggrAbort),
		AggrError:           atomic.LoadInt64(&m.aggrError),
		UDFBgComplete:       atomic.LoadInt64(&m.udfBgComplete),
		UDFBgAbort:          atomic.LoadInt64(&m.udfBgAbort),
		UDFBgError:          atomic.LoadInt64(&m.udfBgError),
		OpsBgComplete:       atomic.LoadInt64(&m.opsBgComplete),
		OpsBgAbort:          atomic.LoadInt64(&m.opsBgAbort),
		OpsBgError:          atomic.LoadInt64(&m.opsBgError),
		SubWriteFilteredOut: atomic.LoadInt64(&m.subWriteFilteredOut),
	}
}
