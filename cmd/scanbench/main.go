// Command scanbench drives one in-process basic scan against a MemIndex,
// without a real storage or transport layer.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/kvnode/scancore/pkg/scan"
)

// bufConn is a Conn backed by an in-memory buffer, standing in for the
// socket the real scan core would write frames to.
type bufConn struct {
	buf bytes.Buffer
}

func (c *bufConn) Write(b []byte) (int, error)      { return c.buf.Write(b) }
func (c *bufConn) SetWriteDeadline(time.Time) error { return nil }
func (c *bufConn) Close() error                     { return nil }

func main() {
	namespace := flag.String("namespace", "bench", "namespace to scan")
	records := flag.Int("records", 1000, "number of records to seed")
	partitions := flag.Int("partitions", 16, "namespace partition count")
	rps := flag.Uint("rps", 0, "client-requested rps (0 == unthrottled)")
	flag.Parse()

	logger := scan.NewBasicLogger(scan.LevelInfo)

	idx := scan.NewMemIndex(*partitions)
	for i := 0; i < *records; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		idx.Put("", key, scan.InvalidSetID,
			[]scan.Bin{{Name: "v", Value: []byte(fmt.Sprintf("%d", i))}},
			true, false, 1, 0)
	}

	cfg := scan.NewNamespaceConfig(*namespace,
		scan.WithPartitionCount(*partitions),
		scan.WithLogger(logger),
		scan.WithUDFEnabled(true),
	)

	mgr := scan.NewManager(4)
	mgr.RegisterNamespace(cfg)
	defer mgr.Close()

	conn := &bufConn{}
	raw := &scan.RawRequest{
		Trid:     1,
		ClientID: "scanbench",
		HasRPS:   true,
		RPS:      uint32(*rps),
	}

	err := mgr.Scan(scan.ScanParams{
		Raw:            raw,
		Namespace:      *namespace,
		Conn:           conn,
		Codec:          scan.CodecNone,
		Store:          idx,
		SetLookup:      func(string) (uint16, bool) { return 0, false },
		ReservationFor: func(pid int) scan.Reservation { return idx.Reservation(pid) },
	})
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}

	snap := cfg.Metrics.Snapshot()
	fmt.Printf("basic complete=%d abort=%d error=%d, wire bytes=%d\n",
		snap.BasicComplete, snap.BasicAbort, snap.BasicError, conn.buf.Len())
}
