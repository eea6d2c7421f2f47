package writer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threatmetrix/cassandra2kv/internal/merge"
	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
	"github.com/threatmetrix/cassandra2kv/internal/sstable"
)

type poolFakeColumn struct {
	name string
	ttl  int64
	has  bool
}

type poolFakeCursor struct {
	keys    [][]byte
	columns [][]poolFakeColumn
	rowIdx  int
	colIdx  int
}

func (c *poolFakeCursor) Open() error  { return nil }
func (c *poolFakeCursor) Close() error { return nil }

func (c *poolFakeCursor) ReadRow() bool {
	c.rowIdx++
	c.colIdx = 0
	return c.rowIdx < len(c.keys)
}
func (c *poolFakeCursor) ReadColumn() bool {
	c.colIdx++
	return c.colIdx < len(c.columns[c.rowIdx])
}
func (c *poolFakeCursor) ReadColumnData() []byte { return []byte("v") }
func (c *poolFakeCursor) NextKey() []byte        { return c.keys[c.rowIdx] }
func (c *poolFakeCursor) NextToken() partitioner.Token { return partitioner.Token{} }
func (c *poolFakeCursor) NextColumn() string {
	if c.colIdx < 0 || c.colIdx >= len(c.columns[c.rowIdx]) {
		return ""
	}
	return c.columns[c.rowIdx][c.colIdx].name
}
func (c *poolFakeCursor) MarkedForDeletion() int64    { return sstable.StillActive }
func (c *poolFakeCursor) CurrentColumnTimestamp() int64 { return 1 }
func (c *poolFakeCursor) CurrentColumnDeleted() bool  { return false }
func (c *poolFakeCursor) CurrentColumnRangeTombstone() (string, int64, bool) {
	return "", 0, false
}
func (c *poolFakeCursor) CurrentColumnTTL() (int64, bool) {
	col := c.columns[c.rowIdx][c.colIdx]
	return col.ttl, col.has
}

var _ sstable.Cursor = (*poolFakeCursor)(nil)

func newPoolFakeIterator(n int) *merge.Iterator {
	keys := make([][]byte, n)
	cols := make([][]poolFakeColumn, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte{byte('a' + i)}
		cols[i] = []poolFakeColumn{{name: "c", ttl: 0, has: false}}
	}
	cur := &poolFakeCursor{keys: keys, columns: cols, rowIdx: -1}
	return merge.NewIterator(partitioner.ByteOrdered{}, []sstable.Cursor{cur})
}

type fakeTarget struct {
	mu    sync.Mutex
	calls int
	next  []UpsertStatus // status to return per call, repeating the last entry once exhausted
}

func (f *fakeTarget) Upsert(_ context.Context, _, _ string, _ *Record, _ int64, done func(UpsertStatus)) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	status := StatusSuccess
	if len(f.next) > 0 {
		if idx < len(f.next) {
			status = f.next[idx]
		} else {
			status = f.next[len(f.next)-1]
		}
	}
	f.mu.Unlock()
	done(status)
}

var _ Target = (*fakeTarget)(nil)

func TestPoolRunDrainsAllRowsOnSuccess(t *testing.T) {
	iter := newPoolFakeIterator(5)
	target := &fakeTarget{}
	pool := NewPool(iter, target, "ns", "set", 2, 3, ExpiryFarthest, EternalNoExpire, 0, 0)

	pool.Run(nil)

	counters := pool.Counters()
	require.Equal(t, int64(5), counters.Read)
	require.Equal(t, int64(0), counters.Failed)
	require.Equal(t, int64(0), counters.Skipped)
}

func TestPoolRetriesTransientFailures(t *testing.T) {
	iter := newPoolFakeIterator(3)
	target := &fakeTarget{next: []UpsertStatus{StatusTimeout, StatusSuccess}}
	pool := NewPool(iter, target, "ns", "set", 1, 2, ExpiryFarthest, EternalNoExpire, 0, 0)

	pool.Run(nil)

	counters := pool.Counters()
	require.Equal(t, int64(3), counters.Read)
	require.Equal(t, int64(0), counters.Failed, "a transient failure should eventually succeed on retry, not count as failed")
}

func TestPoolCountsPermanentFailures(t *testing.T) {
	iter := newPoolFakeIterator(2)
	target := &fakeTarget{next: []UpsertStatus{StatusPermanentError}}
	pool := NewPool(iter, target, "ns", "set", 1, 1, ExpiryFarthest, EternalNoExpire, 0, 0)

	pool.Run(nil)

	counters := pool.Counters()
	require.Equal(t, int64(2), counters.Failed)
}

func TestPoolCountsExistingAsNotFailed(t *testing.T) {
	iter := newPoolFakeIterator(2)
	target := &fakeTarget{next: []UpsertStatus{StatusRecordExists}}
	pool := NewPool(iter, target, "ns", "set", 1, 1, ExpiryFarthest, EternalNoExpire, 0, 0)

	pool.Run(nil)

	counters := pool.Counters()
	require.Equal(t, int64(2), counters.Existing)
	require.Equal(t, int64(0), counters.Failed)
}

func TestPoolResumeKeyFallsBackToIteratorWhenNothingFailed(t *testing.T) {
	iter := newPoolFakeIterator(2)
	target := &fakeTarget{}
	pool := NewPool(iter, target, "ns", "set", 1, 1, ExpiryFarthest, EternalNoExpire, 0, 0)
	pool.Run(nil)

	_, ok := pool.ResumeKey()
	require.False(t, ok, "once every row is consumed and none failed, there is nothing left to resume")
}
