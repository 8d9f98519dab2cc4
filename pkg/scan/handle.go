package scan

import (
	"sync"
	"sync/atomic"
)

// Handle is a stable, opaque reference to a job, used in place of a raw
// back-pointer from the background origin template to its owning job: the
// completion callback looks up by handle and is a no-op if the job has
// already been finalized.
type Handle uint64

// registry maps handles to jobs for the lifetime of each job. A completion
// callback arriving after Destroy simply finds nothing and no-ops, rather
// than dereferencing freed state.
type registry struct {
	next int64 // atomic

	mu  sync.RWMutex
	set map[Handle]Job
}

func newRegistry() *registry {
	return &registry{set: make(map[Handle]Job)}
}

func (r *registry) register(j Job) Handle {
	h := Handle(atomic.AddInt64(&r.next, 1))
	r.mu.Lock()
	r.set[h] = j
	r.mu.Unlock()
	return h
}

// reserve issues a handle with no job bound yet, for jobs whose origin
// template (and thus completion-callback closures) must be built before
// the job itself exists. bind attaches the job once it is constructed.
func (r *registry) reserve() Handle {
	return Handle(atomic.AddInt64(&r.next, 1))
}

func (r *registry) bind(h Handle, j Job) {
	r.mu.Lock()
	r.set[h] = j
	r.mu.Unlock()
}

// completionFunc returns a callback that looks up h at call time and
// delivers the result only if the job is still registered.
func (r *registry) completionFunc(h Handle) func(TxnResult) {
	return func(result TxnResult) {
		job, ok := r.lookup(h)
		if !ok {
			return
		}
		if cr, ok := job.(CompletionReceiver); ok {
			cr.HandleCompletion(result)
		}
	}
}

func (r *registry) lookup(h Handle) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.set[h]
	return j, ok
}

func (r *registry) forget(h Handle) {
	r.mu.Lock()
	delete(r.set, h)
	r.mu.Unlock()
}

func (r *registry) all() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]Job, 0, len(r.set))
	for _, j := range r.set {
		jobs = append(jobs, j)
	}
	return jobs
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}
