package scan

import (
	"context"
	"sync/atomic"
	"time"
)

// CompletionReceiver is implemented by background job variants so a
// completion callback resolved through a Handle can deliver a result
// without the submitter ever holding a raw job pointer.
type CompletionReceiver interface {
	HandleCompletion(TxnResult)
}

// backgroundCore holds the state shared by UDF-background and
// ops-background jobs: the origin template,
// the in-flight sub-transaction count, and the submitter collaborator.
type backgroundCore struct {
	JobCore

	origin    *OriginTemplate
	submitter Submitter
	throttle  throttler
	metrics   *Metrics
	kind      JobKind

	nActiveTr int64 // atomic
}

// backpressureSleep is the fixed interval background jobs sleep while
// waiting for in-flight sub-transaction capacity.
const backpressureSleep = time.Millisecond

// finishSpin is the polling interval Finish uses while waiting for
// n_active_tr to drain.
const finishSpin = 100 * time.Microsecond

// sliceBackground implements the shared per-partition slice walk:
// iterate live records, apply the set/doomed and metadata-predicate
// filters, then backpressure, throttle, and submit one sub-transaction per
// surviving record. buildTxn stamps the flavor-specific payload (UDF call
// or op list) onto the digest.
func (c *backgroundCore) sliceBackground(ctx context.Context, rsv Reservation, buildTxn func(Digest) InternalTxn) error {
	var from *Digest
	if c.partitionListMode() {
		pr := c.Partitions[rsv.Partition()]
		if pr.HasDigest {
			from = &pr.Keyd
		}
	}

	rsv.IterateLive(from, func(ref RecordRef) bool {
		if c.Abandoned() != ReasonNone {
			return false
		}
		if !recordVisible(&c.JobCore, ref) {
			return true
		}
		if c.origin.Predicate != nil {
			switch c.origin.Predicate.MatchMetadata(RecordMetadata{SetID: ref.SetID, Generation: ref.Generation, ExpireAt: ref.ExpireAt}) {
			case MatchFalse:
				c.addFilteredMeta(1)
				c.metrics.AddSubWriteFilteredOut(1)
				return true
			case MatchUnknown:
				// Background predicates are validated at start to be
				// fully metadata-resolvable; reaching Unknown here
				// would mean a predicate slipped past that validation.
				// Treat conservatively as "not filtered" rather than
				// silently dropping a record we can't evaluate.
			case MatchTrue:
			}
		}

		digest := ref.Digest // copy so the record lock can be released before the sub-transaction is submitted

		for atomic.LoadInt64(&c.nActiveTr) > MaxActiveTxns {
			time.Sleep(backpressureSleep)
			if c.Abandoned() != ReasonNone {
				return false
			}
		}

		c.throttle.wait(func() bool { return c.Abandoned() != ReasonNone })

		txn := buildTxn(digest)
		atomic.AddInt64(&c.nActiveTr, 1)
		c.submitter.Submit(ctx, txn)
		return true
	})

	return nil
}

// HandleCompletion tallies a sub-transaction's outcome into the job's
// counters and decrements n_active_tr on every call, regardless of outcome.
func (c *backgroundCore) HandleCompletion(result TxnResult) {
	defer atomic.AddInt64(&c.nActiveTr, -1)
	switch result {
	case TxnOK:
		c.addSucceeded(1)
	case TxnNotFound:
		// ignored: record deleted between visit and apply.
	case TxnFilteredOut:
		c.addFilteredBins(1)
	default:
		c.addFailed(1)
		c.logger.Log(LevelWarn, "background sub-transaction failed", "trid", c.Trid, "namespace", c.Namespace, "result", result)
	}
}

// finishBackground spin-waits until every submitted sub-transaction has
// completed (n_active_tr == 0) and records the namespace-level completion
// metric.
func (c *backgroundCore) finishBackground() {
	for atomic.LoadInt64(&c.nActiveTr) != 0 {
		time.Sleep(finishSpin)
	}
	c.metrics.RecordCompletion(c.kind, c.Abandoned())
}

func (c *backgroundCore) activeTxns() int64 { return atomic.LoadInt64(&c.nActiveTr) }

// resolveBackgroundRPS rewrites a zero rps to the namespace's background
// ceiling and otherwise clamps requested rps to that ceiling.
func resolveBackgroundRPS(requested, ceiling uint32) uint32 {
	if requested == 0 {
		return ceiling
	}
	if requested > ceiling {
		return ceiling
	}
	return requested
}
