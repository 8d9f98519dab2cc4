package scan

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// fakeConn is a Conn backed by an in-memory buffer, used throughout this
// package's tests in place of a real socket.
type fakeConn struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	closed    bool
	failWrite error
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite != nil {
		return 0, c.failWrite
	}
	return c.buf.Write(b)
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// decodeAllFrames decodes every frame in buf back to back, for tests that
// want to inspect everything a job wrote.
func decodeAllFrames(buf []byte) ([]*DecodedFrame, error) {
	r := bytes.NewReader(buf)
	var frames []*DecodedFrame
	for r.Len() > 0 {
		f, err := DecodeFrame(r)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// fakeSubmitter runs every submitted sub-transaction synchronously against
// a registered outcome function, invoking OnComplete inline.
type fakeSubmitter struct {
	mu      sync.Mutex
	outcome func(InternalTxn) TxnResult
	calls   []InternalTxn
}

func (s *fakeSubmitter) Submit(_ context.Context, txn InternalTxn) {
	s.mu.Lock()
	s.calls = append(s.calls, txn)
	s.mu.Unlock()
	result := TxnOK
	if s.outcome != nil {
		result = s.outcome(txn)
	}
	txn.OnComplete(result)
}

func (s *fakeSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testNamespaceConfig(nPartitions int, opts ...Opt) *NamespaceConfig {
	base := []Opt{WithPartitionCount(nPartitions), WithUDFEnabled(true), WithBackgroundScanMaxRPS(10000)}
	return NewNamespaceConfig("test", append(base, opts...)...)
}

func seedRecord(idx *MemIndex, set, key string, bins []Bin) Digest {
	return idx.Put(set, []byte(key), InvalidSetID, bins, true, false, 1, 0)
}
