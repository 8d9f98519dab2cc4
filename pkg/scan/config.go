package scan

// NamespaceConfig is the per-namespace runtime configuration the scan core
// needs (partition count, cluster membership, background fan-out ceiling),
// assembled via functional options in the same style as a Client config
// built from Opt values.
type NamespaceConfig struct {
	Name             string
	NPartitions      int
	ClusterSize      int
	BackgroundMaxRPS uint32
	UDFEnabled       bool
	Logger           Logger
	ClusterKey       func() uint64 // returns the current cluster epoch
	Metrics          *Metrics
}

// Opt configures a NamespaceConfig.
type Opt func(*NamespaceConfig)

// WithPartitionCount sets the fixed per-cluster partition count.
func WithPartitionCount(n int) Opt {
	return func(c *NamespaceConfig) { c.NPartitions = n }
}

// WithClusterSize sets the approximate node count used to estimate n_pids
// when no partition list is supplied.
func WithClusterSize(n int) Opt {
	return func(c *NamespaceConfig) { c.ClusterSize = n }
}

// WithBackgroundScanMaxRPS sets the ceiling background jobs' rps is capped
// to.
func WithBackgroundScanMaxRPS(rps uint32) Opt {
	return func(c *NamespaceConfig) { c.BackgroundMaxRPS = rps }
}

// WithUDFEnabled toggles whether aggregation/UDF-background scans are
// permitted.
func WithUDFEnabled(enabled bool) Opt {
	return func(c *NamespaceConfig) { c.UDFEnabled = enabled }
}

// WithLogger installs a Logger; the default is a silent no-op.
func WithLogger(l Logger) Opt {
	return func(c *NamespaceConfig) { c.Logger = l }
}

// WithClusterKeyFunc installs the callback used to observe the current
// cluster epoch for fail_on_cluster_change checks.
func WithClusterKeyFunc(fn func() uint64) Opt {
	return func(c *NamespaceConfig) { c.ClusterKey = fn }
}

// NewNamespaceConfig builds a NamespaceConfig with sane defaults, then
// applies opts in order.
func NewNamespaceConfig(name string, opts ...Opt) *NamespaceConfig {
	c := &NamespaceConfig{
		Name:             name,
		NPartitions:      4096,
		ClusterSize:      1,
		BackgroundMaxRPS: 50_000,
		UDFEnabled:       true,
		Logger:           nopLogger{},
		ClusterKey:       func() uint64 { return 0 },
		Metrics:          NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
