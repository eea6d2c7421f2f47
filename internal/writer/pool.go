// Package writer implements the worker pool that drains a merge
// iterator into an external key/value Target (spec §4.8): each worker
// ("event loop") keeps several upserts in flight, retries transient
// failures, and a coordinator restarts any worker whose pipeline has
// drained completely.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/threatmetrix/cassandra2kv/internal/merge"
)

type status int

const (
	statusRunning status = iota
	statusStalled
	statusFinished
)

// eternalSentinel stands in for "this column carries no TTL" when
// aggregating per-column expirations into one row-level expiry (spec
// §4.8 step 4).
const eternalSentinel int64 = 1<<32 - 1

// ExpiryPolicy selects how a row's many per-column expirations
// collapse into the single TTL issued with the upsert.
type ExpiryPolicy int

const (
	ExpiryNearest ExpiryPolicy = iota
	ExpiryFarthest
)

// EternalTTL selects what TTL to issue for a row with no expiring
// column.
type EternalTTL int

const (
	EternalNoExpire EternalTTL = iota
	EternalStoreDefault
)

type rowSink struct {
	key         []byte
	columns     map[string][]byte
	expirations map[string]int64
}

func newRowSink() *rowSink {
	return &rowSink{columns: map[string][]byte{}, expirations: map[string]int64{}}
}

func (s *rowSink) reset() {
	s.key = s.key[:0]
	for k := range s.columns {
		delete(s.columns, k)
	}
	for k := range s.expirations {
		delete(s.expirations, k)
	}
}

func (s *rowSink) NewRow(key []byte) { s.key = append(s.key[:0], key...) }
func (s *rowSink) NewColumn(name string, value []byte, _ int64) {
	s.columns[name] = value
}
func (s *rowSink) NewColumnWithTTL(name string, value []byte, _ int64, ttl int64) {
	s.columns[name] = value
	s.expirations[name] = ttl
}

var _ merge.Sink = (*rowSink)(nil)

type request struct {
	ordinal int64
	sink    *rowSink
}

// worker is one "event loop": a pipeline of in-flight upserts plus its
// own spare/retry free lists, matching spec §4.8's per-worker state.
type worker struct {
	id int

	mu       sync.Mutex
	inFlight int64
	spare    []*request
	failed   []*request
	status   status

	existingEntries int64
	failedEntries   int64
	expiredEntries  int64
}

// Pool coordinates M workers pulling from one shared merge.Iterator.
type Pool struct {
	iterMu sync.Mutex
	iter   *merge.Iterator

	target    Target
	namespace string
	set       string

	maxInFlight     int
	expiryPolicy    ExpiryPolicy
	eternalTTL      EternalTTL
	storeDefaultTTL int64
	minTTL          int64

	workers []*worker

	condMu sync.Mutex
	cond   *sync.Cond

	terminated int32
}

// NewPool builds a pool of workerCount workers draining iter into
// target, each allowed up to maxInFlight concurrent upserts.
func NewPool(iter *merge.Iterator, target Target, namespace, set string, workerCount, maxInFlight int, expiryPolicy ExpiryPolicy, eternalTTL EternalTTL, storeDefaultTTL, minTTL int64) *Pool {
	p := &Pool{
		iter:            iter,
		target:          target,
		namespace:       namespace,
		set:             set,
		maxInFlight:     maxInFlight,
		expiryPolicy:    expiryPolicy,
		eternalTTL:      eternalTTL,
		storeDefaultTTL: storeDefaultTTL,
		minTTL:          minTTL,
	}
	p.cond = sync.NewCond(&p.condMu)
	for i := 0; i < workerCount; i++ {
		p.workers = append(p.workers, &worker{id: i})
	}
	return p
}

// Terminate asks every worker to stop accepting new rows once its
// in-flight upserts finish draining, as if a shutdown signal had been
// received.
func (p *Pool) Terminate() {
	atomic.StoreInt32(&p.terminated, 1)
	p.notify()
}

func (p *Pool) isTerminated() bool { return atomic.LoadInt32(&p.terminated) == 1 }

func (p *Pool) notify() {
	p.condMu.Lock()
	p.cond.Broadcast()
	p.condMu.Unlock()
}

// Run fills every worker's pipeline and blocks until all workers
// finish, restarting any that stall after a brief pause (spec §4.8's
// coordinator loop).
func (p *Pool) Run(_ context.Context) {
	for _, w := range p.workers {
		for i := 0; i < p.maxInFlight; i++ {
			p.writeNext(w)
		}
	}

	for {
		p.condMu.Lock()
		for p.anyRunning() {
			p.cond.Wait()
		}
		if p.allFinished() {
			p.condMu.Unlock()
			return
		}
		stalled := p.collectStalled()
		p.condMu.Unlock()

		for _, w := range stalled {
			time.Sleep(150 * time.Millisecond)
			p.writeNext(w)
		}
	}
}

func (p *Pool) anyRunning() bool {
	for _, w := range p.workers {
		w.mu.Lock()
		running := w.status == statusRunning
		w.mu.Unlock()
		if running {
			return true
		}
	}
	return false
}

func (p *Pool) allFinished() bool {
	for _, w := range p.workers {
		w.mu.Lock()
		finished := w.status == statusFinished
		w.mu.Unlock()
		if !finished {
			return false
		}
	}
	return true
}

func (p *Pool) collectStalled() []*worker {
	var out []*worker
	for _, w := range p.workers {
		w.mu.Lock()
		if w.status == statusStalled {
			out = append(out, w)
		}
		w.mu.Unlock()
	}
	return out
}

// writeNext pulls the next row for w (from its retry queue or fresh
// off the shared iterator) and issues it, or marks w FINISHED when
// there is nothing left to send and nothing in flight (spec §4.8).
func (p *Pool) writeNext(w *worker) {
	w.mu.Lock()
	if p.isTerminated() {
		if w.inFlight == 0 {
			w.status = statusFinished
			p.notify()
		}
		w.mu.Unlock()
		return
	}

	var r *request
	if len(w.failed) > 0 {
		r = w.failed[0]
		w.failed = w.failed[1:]
	} else {
		if len(w.spare) > 0 {
			r = w.spare[len(w.spare)-1]
			w.spare = w.spare[:len(w.spare)-1]
			r.sink.reset()
		} else {
			r = &request{sink: newRowSink()}
		}

		p.iterMu.Lock()
		ordinal := p.iter.CassandraReadRecords
		ok := p.iter.Next(r.sink)
		p.iterMu.Unlock()

		if !ok {
			if w.inFlight == 0 {
				w.status = statusFinished
				p.notify()
			}
			w.mu.Unlock()
			return
		}
		r.ordinal = ordinal
	}
	w.inFlight++
	w.status = statusRunning
	w.mu.Unlock()

	expiry, eternal := p.computeExpiry(r.sink)
	var ttl int64
	if eternal {
		if p.eternalTTL == EternalStoreDefault {
			ttl = p.storeDefaultTTL
		}
	} else {
		ttl = expiry - time.Now().Unix()
		if ttl < p.minTTL {
			w.mu.Lock()
			w.expiredEntries++
			w.inFlight--
			w.spare = append(w.spare, r)
			w.mu.Unlock()
			p.writeNext(w)
			return
		}
	}

	record := &Record{Key: r.sink.key, Columns: r.sink.columns}
	p.target.Upsert(context.Background(), p.namespace, p.set, record, ttl, func(s UpsertStatus) {
		p.onComplete(w, r, s)
	})
}

// computeExpiry folds every column's absolute expiration second into
// one row-level value per the configured ExpiryPolicy; a column
// without a TTL contributes eternalSentinel (spec §4.8 step 4).
func (p *Pool) computeExpiry(s *rowSink) (expiry int64, eternal bool) {
	if len(s.columns) == 0 {
		return 0, true
	}
	first := true
	for name := range s.columns {
		exp, ok := s.expirations[name]
		if !ok {
			exp = eternalSentinel
		}
		if first {
			expiry, first = exp, false
			continue
		}
		switch p.expiryPolicy {
		case ExpiryNearest:
			if exp < expiry {
				expiry = exp
			}
		case ExpiryFarthest:
			if exp > expiry {
				expiry = exp
			}
		}
	}
	return expiry, expiry == eternalSentinel
}

func (p *Pool) onComplete(w *worker, r *request, s UpsertStatus) {
	w.mu.Lock()
	w.inFlight--

	switch {
	case s.Existing():
		w.existingEntries++
		w.spare = append(w.spare, r)
	case s.Transient():
		w.failed = append(w.failed, r)
		if w.inFlight == 0 {
			w.status = statusStalled
			w.mu.Unlock()
			p.notify()
			return
		}
		w.mu.Unlock()
		return
	default:
		if s != StatusSuccess {
			w.failedEntries++
		}
		w.spare = append(w.spare, r)
	}
	w.mu.Unlock()
	p.writeNext(w)
}

// ResumeKey is the lowest-ordinal row still unsent across every
// worker's retry queue, or the iterator's next key if nothing failed
// (spec §4.8's resumption hint for -s/-S).
func (p *Pool) ResumeKey() ([]byte, bool) {
	var lowestOrdinal int64 = -1
	var key []byte
	for _, w := range p.workers {
		w.mu.Lock()
		for _, r := range w.failed {
			if lowestOrdinal == -1 || r.ordinal < lowestOrdinal {
				lowestOrdinal = r.ordinal
				key = r.sink.key
			}
		}
		w.mu.Unlock()
	}
	if lowestOrdinal >= 0 {
		return key, true
	}
	p.iterMu.Lock()
	defer p.iterMu.Unlock()
	return p.iter.GetNextKey()
}

// Counters aggregates every worker's bookkeeping for the completion
// summary line (spec §7).
type Counters struct {
	Existing int64
	Failed   int64
	Expired  int64
	Read     int64
	Skipped  int64
}

func (p *Pool) Counters() Counters {
	var c Counters
	for _, w := range p.workers {
		w.mu.Lock()
		c.Existing += w.existingEntries
		c.Failed += w.failedEntries
		c.Expired += w.expiredEntries
		w.mu.Unlock()
	}
	p.iterMu.Lock()
	c.Read = p.iter.CassandraReadRecords
	c.Skipped = p.iter.SkippedRecords
	p.iterMu.Unlock()
	return c
}
