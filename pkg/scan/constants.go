package scan

// Constants. NPartitions is a per-cluster constant rather than a
// language constant; it is threaded through config.go's NamespaceConfig so
// tests can use a small value.
const (
	InitBufSize    = 2 << 20 // 2 MiB
	ChunkLimit     = 1 << 20 // 1 MiB
	LowPriorityRPS = 5000
	MaxActiveTxns  = 200
	SampleMargin   = 4
	RecordMaxBins  = 64

	InvalidSetID uint16 = 0xffff
)
