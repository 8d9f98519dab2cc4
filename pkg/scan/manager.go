package scan

import (
	"context"
	"sync"
)

// classify dispatches a raw request onto one of the four scan flavors using
// exactly the three bits the wire message carries for this purpose: whether
// the message is a UDF message at all, which UDF sub-operation it names,
// and whether info2.WRITE is set. Any other combination is rejected with
// ReasonParameter rather than guessed at.
func classify(raw *RawRequest) (JobKind, error) {
	switch {
	case !raw.IsUDF && !raw.InfoWrite:
		return KindBasic, nil
	case raw.IsUDF && raw.UDFOp == UDFOpAggregate:
		return KindAggregation, nil
	case raw.IsUDF && raw.UDFOp == UDFOpBackground:
		return KindUDFBackground, nil
	case !raw.IsUDF && raw.InfoWrite:
		return KindOpsBackground, nil
	default:
		return 0, newError(ReasonParameter, "unrecognized scan message shape")
	}
}

// ReservationFor hands back the Reservation for one partition id; the real
// partition-index lookup is out of scope, this is the seam the manager
// calls through.
type ReservationFor func(pid int) Reservation

// ScanParams bundles everything Manager.Scan needs to admit and run one
// client request.
type ScanParams struct {
	Raw            *RawRequest
	Namespace      string
	Conn           Conn
	Codec          Codec
	Store          Store
	Submitter      Submitter
	Runtime        Runtime
	UDF            UDFDef
	SetLookup      SetLookup
	ReservationFor ReservationFor
}

// Manager is the scan core's external entry point: it owns the job
// registry, a bounded worker pool for partition slicing (a
// channel-plus-goroutine-pool shape), and the per-namespace configuration
// scans are validated against.
type Manager struct {
	reg *registry

	mu   sync.RWMutex
	cfgs map[string]*NamespaceConfig

	work chan func()
	wg   sync.WaitGroup

	finishedMu    sync.Mutex
	finished      []JobStat
	finishedLimit int
}

const defaultFinishedJobsLimit = 1000

// NewManager starts a Manager with workers goroutines servicing partition
// slices. Call Close to stop accepting new work once every in-flight scan
// has drained.
func NewManager(workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		reg:           newRegistry(),
		cfgs:          make(map[string]*NamespaceConfig),
		work:          make(chan func()),
		finishedLimit: defaultFinishedJobsLimit,
	}
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.runWorker()
	}
	return m
}

func (m *Manager) runWorker() {
	defer m.wg.Done()
	for fn := range m.work {
		fn()
	}
}

// Close stops the worker pool once all queued slices have been serviced.
// It does not wait for in-flight background jobs' sub-transactions to
// drain; callers that need that should wait on each job's Finish instead.
func (m *Manager) Close() {
	close(m.work)
	m.wg.Wait()
}

// RegisterNamespace installs (or replaces) a namespace's configuration.
func (m *Manager) RegisterNamespace(cfg *NamespaceConfig) {
	m.mu.Lock()
	m.cfgs[cfg.Name] = cfg
	m.mu.Unlock()
}

func (m *Manager) namespaceConfig(name string) (*NamespaceConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.cfgs[name]
	return cfg, ok
}

// Scan admits p.Raw against p.Namespace's configuration, dispatches it to
// the matching job flavor, and drives it to completion. Basic and
// aggregation scans run synchronously — the call does not return until
// every requested partition has been sliced and the terminal fin sent.
// Background scans return as soon as admission succeeds; their partition
// walk and sub-transaction fan-out continue on manager-owned goroutines.
func (m *Manager) Scan(p ScanParams) error {
	cfg, ok := m.namespaceConfig(p.Namespace)
	if !ok {
		return newError(ReasonParameter, "unknown namespace: "+p.Namespace)
	}

	kind, err := classify(p.Raw)
	if err != nil {
		cfg.Logger.Log(LevelWarn, "scan rejected", "namespace", p.Namespace, "trid", p.Raw.Trid, "err", err)
		return err
	}

	req, err := ParseRequest(p.Raw, cfg, p.SetLookup)
	if err != nil {
		cfg.Logger.Log(LevelWarn, "scan rejected", "namespace", p.Namespace, "trid", p.Raw.Trid, "err", err)
		return err
	}

	cfg.Logger.Log(LevelInfo, "scan admitted", "namespace", p.Namespace, "trid", req.Trid, "kind", kind.String())

	switch kind {
	case KindBasic:
		job, err := StartBasicJob(BasicJobParams{Req: req, Conn: p.Conn, Store: p.Store, Codec: p.Codec}, cfg)
		if err != nil {
			cfg.Logger.Log(LevelWarn, "scan rejected", "namespace", p.Namespace, "trid", req.Trid, "err", err)
			return err
		}
		m.registerAndRun(job, req.Partitions, cfg, p.ReservationFor)
		return nil

	case KindAggregation:
		job, err := StartAggregationJob(AggregationJobParams{Req: req, Conn: p.Conn, Codec: p.Codec, UDF: p.UDF, Runtime: p.Runtime}, cfg)
		if err != nil {
			cfg.Logger.Log(LevelWarn, "scan rejected", "namespace", p.Namespace, "trid", req.Trid, "err", err)
			return err
		}
		m.registerAndRun(job, req.Partitions, cfg, p.ReservationFor)
		return nil

	case KindUDFBackground:
		job, err := StartUDFBackgroundJob(UDFBackgroundJobParams{Req: req, Conn: p.Conn, Codec: p.Codec, Submitter: p.Submitter, Registry: m.reg}, cfg)
		if err != nil {
			cfg.Logger.Log(LevelWarn, "scan rejected", "namespace", p.Namespace, "trid", req.Trid, "err", err)
			return err
		}
		m.runBackground(job, req.Partitions, cfg, p.ReservationFor)
		return nil

	case KindOpsBackground:
		job, err := StartOpsBackgroundJob(OpsBackgroundJobParams{Req: req, Conn: p.Conn, Codec: p.Codec, Submitter: p.Submitter, Registry: m.reg}, cfg)
		if err != nil {
			cfg.Logger.Log(LevelWarn, "scan rejected", "namespace", p.Namespace, "trid", req.Trid, "err", err)
			return err
		}
		m.runBackground(job, req.Partitions, cfg, p.ReservationFor)
		return nil
	}
	return newError(ReasonParameter, "unreachable scan kind")
}

// partitionsToSlice returns the partition ids a job should visit: every
// requested id if the client supplied a list, otherwise every partition in
// the namespace.
func partitionsToSlice(partitions []PartitionRequest, nPartitions int) []int {
	if partitions == nil {
		ids := make([]int, nPartitions)
		for i := range ids {
			ids[i] = i
		}
		return ids
	}
	ids := make([]int, 0, len(partitions))
	for pid, pr := range partitions {
		if pr.Requested {
			ids = append(ids, pid)
		}
	}
	return ids
}

// registerAndRun registers a foreground job, fans its partition slices out
// across the worker pool, waits for all of them, then finishes and
// destroys it. Used by basic and aggregation scans, which own the client
// connection for the duration of the call.
func (m *Manager) registerAndRun(job Job, partitions []PartitionRequest, cfg *NamespaceConfig, reservationFor ReservationFor) {
	handle := m.reg.register(job)
	defer m.reg.forget(handle)

	ids := partitionsToSlice(partitions, cfg.NPartitions)
	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, pid := range ids {
		pid := pid
		m.work <- func() {
			defer wg.Done()
			_ = job.Slice(reservationFor(pid))
		}
	}
	wg.Wait()

	job.Finish()
	stat := job.Info()
	job.Destroy()
	m.recordFinished(stat)
}

// runBackground registers an already-admitted background job (Start* has
// already reserved and bound its handle) and slices it asynchronously: the
// caller of Scan does not wait for this to complete.
func (m *Manager) runBackground(job Job, partitions []PartitionRequest, cfg *NamespaceConfig, reservationFor ReservationFor) {
	ids := partitionsToSlice(partitions, cfg.NPartitions)
	go func() {
		var wg sync.WaitGroup
		wg.Add(len(ids))
		for _, pid := range ids {
			pid := pid
			m.work <- func() {
				defer wg.Done()
				_ = job.Slice(reservationFor(pid))
			}
		}
		wg.Wait()

		job.Finish()
		stat := job.Info()
		job.Destroy()
		m.recordFinished(stat)
	}()
}

// recordFinished appends a job's terminal snapshot to the bounded
// finished-jobs history, trimming the oldest entries once finishedLimit is
// exceeded.
func (m *Manager) recordFinished(stat JobStat) {
	m.finishedMu.Lock()
	defer m.finishedMu.Unlock()
	m.finished = append(m.finished, stat)
	if len(m.finished) > m.finishedLimit {
		m.finished = m.finished[len(m.finished)-m.finishedLimit:]
	}
}

// LimitFinishedJobs sets the retained finished-job history size, trimming
// immediately if the history already exceeds it.
func (m *Manager) LimitFinishedJobs(n int) {
	m.finishedMu.Lock()
	defer m.finishedMu.Unlock()
	m.finishedLimit = n
	if len(m.finished) > n {
		m.finished = m.finished[len(m.finished)-n:]
	}
}

func (m *Manager) finishedSnapshot() []JobStat {
	m.finishedMu.Lock()
	defer m.finishedMu.Unlock()
	out := make([]JobStat, len(m.finished))
	copy(out, m.finished)
	return out
}

// abortable is implemented by every job's embedded JobCore; Manager type-
// asserts to it rather than widening the Job interface with a method only
// administrative callers need.
type abortable interface {
	Abandon(Reason)
}

// GetJobInfo returns the snapshot for a single running job by client
// transaction id.
func (m *Manager) GetJobInfo(trid uint64) (JobStat, bool) {
	for _, j := range m.reg.all() {
		stat := j.Info()
		if stat.Trid == trid {
			return stat, true
		}
	}
	for _, stat := range m.finishedSnapshot() {
		if stat.Trid == trid {
			return stat, true
		}
	}
	return JobStat{}, false
}

// GetAllJobs returns a snapshot of every currently running job followed by
// the retained history of recently finished ones.
func (m *Manager) GetAllJobs() []JobStat {
	jobs := m.reg.all()
	finished := m.finishedSnapshot()
	stats := make([]JobStat, 0, len(jobs)+len(finished))
	for _, j := range jobs {
		stats = append(stats, j.Info())
	}
	stats = append(stats, finished...)
	return stats
}

// AbortJob marks the job matching trid as user-aborted. It reports false if
// no such job is currently tracked.
func (m *Manager) AbortJob(trid uint64) bool {
	for _, j := range m.reg.all() {
		if j.Info().Trid != trid {
			continue
		}
		if a, ok := j.(abortable); ok {
			a.Abandon(ReasonUserAbort)
			return true
		}
	}
	return false
}

// AbortAll marks every currently tracked job as user-aborted and returns
// the count affected.
func (m *Manager) AbortAll() int {
	n := 0
	for _, j := range m.reg.all() {
		if a, ok := j.(abortable); ok {
			a.Abandon(ReasonUserAbort)
			n++
		}
	}
	return n
}

// ActiveJobCount reports how many jobs the registry currently tracks.
func (m *Manager) ActiveJobCount() int { return m.reg.count() }

// Init is a placeholder lifecycle hook mirroring the external interface's
// init() entry point; a Manager built via NewManager needs no further setup
// before serving scans.
func (m *Manager) Init(context.Context) error { return nil }
