package scan

import (
	"context"
	"fmt"
)

// UDFDef names a registered user-defined function; the compiler and the
// execution engine that run it are out of scope here.
type UDFDef struct {
	Module string
	Name   string
	Args   []byte
}

// AggregationCall bundles the arguments the aggregation runtime needs:
// namespace, UDF definition, the slice's surviving digests, the slice's
// reservation, and a result sink.
type AggregationCall struct {
	Namespace   string
	UDF         UDFDef
	Digests     *DigestList
	Reservation Reservation
	Sink        ValueSink
}

// ValueSink is ostream_write's target: each emitted aggregation value is
// appended here, and the aggregation job flushes to the socket once an
// appended value has pushed the buffer past ChunkLimit.
type ValueSink interface {
	Write(value []byte) error
	WriteError(msg string) error
}

// PtnReserve is the aggregation runtime's reservation hook. The pid
// argument is ignored by this implementation — it always returns the
// current slice's reservation, which is safe only because the runtime
// never re-dispatches across partitions within one slice.
type PtnReserve func(pid int) Reservation

// Runtime is the out-of-scope aggregation engine's contract.
type Runtime interface {
	Run(ctx context.Context, call AggregationCall, reserve PtnReserve) error
}

// FuncRuntime is a trivial in-process Runtime backing tests: it looks up a
// registered Go closure standing in for the real UDF body and calls it
// with every digest in the list, letting the aggregation job's
// chunking/flush/error-formatting logic be exercised without a real
// UDF VM.
type FuncRuntime struct {
	funcs map[string]func(digests []Digest, sink ValueSink) error
}

func NewFuncRuntime() *FuncRuntime {
	return &FuncRuntime{funcs: make(map[string]func([]Digest, ValueSink) error)}
}

func (r *FuncRuntime) Register(module, name string, fn func(digests []Digest, sink ValueSink) error) {
	r.funcs[module+"."+name] = fn
}

func (r *FuncRuntime) Run(_ context.Context, call AggregationCall, _ PtnReserve) error {
	fn, ok := r.funcs[call.UDF.Module+"."+call.UDF.Name]
	if !ok {
		return fmt.Errorf("scan: unregistered udf %s.%s", call.UDF.Module, call.UDF.Name)
	}
	digests := call.Digests.Flatten()
	return fn(digests, call.Sink)
}

// InternalTxnKind distinguishes the two background sub-transaction shapes:
// a UDF call or an op list.
type InternalTxnKind uint8

const (
	TxnUDF InternalTxnKind = iota
	TxnOps
)

// InternalTxn is one internally-generated single-record sub-transaction
// submitted by a background job.
type InternalTxn struct {
	Kind   InternalTxnKind
	Digest Digest

	// Origin carries the shared template every sub-transaction of this job
	// is stamped from: UDF call or op list, plus info bits.
	Origin *OriginTemplate

	// OnComplete is invoked by the submitter (or its fake, in tests) with
	// the sub-transaction's outcome. The real pipeline invokes this from
	// an arbitrary worker goroutine.
	OnComplete func(TxnResult)
}

// TxnResult is the outcome reported to a background job's completion
// callback.
type TxnResult uint8

const (
	TxnOK TxnResult = iota
	TxnNotFound
	TxnFilteredOut
	TxnOtherError
)

// Submitter is the out-of-scope internal transaction submitter's contract,
// along with its completion callback.
type Submitter interface {
	Submit(ctx context.Context, txn InternalTxn)
}

// OriginTemplate is the shared per-job template every sub-transaction is
// stamped from. The completion callback and its user data are represented
// by the owning Handle plus the registry lookup in handle.go, a stable
// job handle rather than a raw back-pointer.
type OriginTemplate struct {
	Predicate   Predicate
	InfoBits    InfoBits
	Info3Bits   Info3Bits
	OpListBytes []byte // set only for TxnOps
	OwnerHandle Handle
}

// InfoBits and Info3Bits mirror the wire message's info2/info3 bit fields
// (WRITE, DURABLE_DELETE, UPDATE_ONLY, REPLACE_ONLY).
type InfoBits uint8

const (
	InfoWrite         InfoBits = 1 << 0
	InfoDurableDelete InfoBits = 1 << 1
)

type Info3Bits uint8

const (
	Info3UpdateOnly  Info3Bits = 1 << 0
	Info3ReplaceOnly Info3Bits = 1 << 1
)
