package scan

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is the minimal socket contract the connection-bound base needs;
// satisfied by *net.TCPConn in production and a fake in tests. The real
// transport (socket send, compression negotiation, connection lifecycle)
// is out of scope beyond this seam.
type Conn interface {
	Write(b []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnJobState is the connection-owning mixin shared by foreground jobs
// (basic, aggregation), factored into its own value type the way broker
// connection/timeout/promise handling is factored out rather than
// duplicated per job flavor.
//
// While conn is non-nil it is exclusively owned by this job; mu serializes
// every send and the terminal fin send.
type ConnJobState struct {
	mu          sync.Mutex
	conn        Conn
	sendTimeout time.Duration // <0 means infinite
	codec       Codec
	bytesOut    uint64

	core *JobCore
}

// NewConnJobState builds a ConnJobState. sendTimeoutMs follows the wire
// parser's convention (0 == infinite); it is translated here to the
// in-memory convention ConnJobState uses internally (negative == infinite).
func NewConnJobState(conn Conn, sendTimeoutMs uint32, codec Codec, core *JobCore) *ConnJobState {
	timeout := time.Duration(sendTimeoutMs) * time.Millisecond
	if sendTimeoutMs == 0 {
		timeout = -1
	}
	return &ConnJobState{conn: conn, sendTimeout: timeout, codec: codec, core: core}
}

// errConnReleased is returned by SendChunk once the connection has already
// been released or force-closed by a prior terminal condition.
var errConnReleased = errors.New("scan: connection already released")

// SendChunk writes one frame (already length-prefixed via beginFrame/
// endFrame) to the socket, applying compression after framing and
// enforcing the configured write timeout. On timeout it abandons the job
// with ReasonResponseTimeout; on any other write error, ReasonResponseError
// — connection failures are always fatal to the job.
func (c *ConnJobState) SendChunk(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errConnReleased
	}

	out := frame
	if c.codec != CodecNone {
		compressed, err := compressChunk(c.codec, frame)
		if err != nil {
			c.core.Abandon(ReasonResponseError)
			return err
		}
		out = compressed
	}

	if c.sendTimeout >= 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}

	n, err := c.conn.Write(out)
	atomic.AddUint64(&c.bytesOut, uint64(n))
	if err != nil {
		if isTimeout(err) {
			c.core.Abandon(ReasonResponseTimeout)
		} else {
			c.core.Abandon(ReasonResponseError)
		}
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FinishAndClose sends the terminal fin frame bearing reason and releases
// the connection. A RESPONSE_TIMEOUT or RESPONSE_ERROR reason force-closes
// the socket rather than handing it back cleanly.
func (c *ConnJobState) FinishAndClose(reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}

	fin := encodeFin(reason)
	if c.sendTimeout >= 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	}
	n, err := c.conn.Write(fin)
	atomic.AddUint64(&c.bytesOut, uint64(n))

	forceClose := reason == ReasonResponseTimeout || reason == ReasonResponseError || err != nil
	if forceClose {
		_ = c.conn.Close()
	}
	c.conn = nil
}

// BytesOut reports the cumulative bytes written on this connection so far.
func (c *ConnJobState) BytesOut() uint64 { return atomic.LoadUint64(&c.bytesOut) }

// chunkWriter accumulates record/value/partition-done entries into a
// growable buffer, reserving a frame header slot up front and flushing to
// the connection once the accumulated payload exceeds ChunkLimit.
type chunkWriter struct {
	buf    bytes.Buffer
	offset int
	conn   *ConnJobState
}

func newChunkWriter(conn *ConnJobState) *chunkWriter {
	w := &chunkWriter{conn: conn}
	w.buf.Grow(InitBufSize)
	w.offset = beginFrame(&w.buf)
	return w
}

// hasPayload reports whether anything beyond the reserved header has been
// written.
func (w *chunkWriter) hasPayload() bool {
	return w.buf.Len() > w.offset+frameHeaderSize()
}

// maybeFlush flushes and resets the buffer once it exceeds ChunkLimit.
func (w *chunkWriter) maybeFlush() error {
	if w.buf.Len()-w.offset-frameHeaderSize() <= ChunkLimit {
		return nil
	}
	return w.flush()
}

func (w *chunkWriter) flush() error {
	endFrame(&w.buf, w.offset)
	err := w.conn.SendChunk(w.buf.Bytes()[w.offset:])
	w.buf.Reset()
	w.offset = beginFrame(&w.buf)
	return err
}
