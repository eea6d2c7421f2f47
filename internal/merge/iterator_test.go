package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
	"github.com/threatmetrix/cassandra2kv/internal/sstable"
)

type capturingSink struct {
	key     []byte
	columns map[string][]byte
	tses    map[string]int64
}

func newCapturingSink() *capturingSink {
	return &capturingSink{columns: map[string][]byte{}, tses: map[string]int64{}}
}

func (s *capturingSink) NewRow(key []byte) {
	s.key = key
	for k := range s.columns {
		delete(s.columns, k)
	}
}
func (s *capturingSink) NewColumn(name string, value []byte, ts int64) {
	s.columns[name] = value
	s.tses[name] = ts
}
func (s *capturingSink) NewColumnWithTTL(name string, value []byte, ts int64, _ int64) {
	s.NewColumn(name, value, ts)
}

var _ Sink = (*capturingSink)(nil)

func TestIteratorNewestTimestampWins(t *testing.T) {
	a := newFakeCursor([]fakeRow{{
		key: []byte("k1"),
		columns: []fakeColumn{
			{name: "col1", value: []byte("old"), ts: 5},
		},
	}})
	b := newFakeCursor([]fakeRow{{
		key: []byte("k1"),
		columns: []fakeColumn{
			{name: "col1", value: []byte("new"), ts: 10},
		},
	}})

	it := NewIterator(partitioner.ByteOrdered{}, []sstable.Cursor{a, b})
	sink := newCapturingSink()
	require.True(t, it.Next(sink))
	require.Equal(t, []byte("k1"), sink.key)
	require.Equal(t, []byte("new"), sink.columns["col1"])
	require.Equal(t, int64(10), sink.tses["col1"])
	require.False(t, it.Next(newCapturingSink()))
}

func TestIteratorSkipsRowFullyShadowedByDeletion(t *testing.T) {
	c := newFakeCursor([]fakeRow{
		{
			key:     []byte("a"),
			deleted: 100,
			columns: []fakeColumn{{name: "col1", value: []byte("stale"), ts: 50}},
		},
		{
			key: []byte("b"),
			columns: []fakeColumn{{name: "col1", value: []byte("live"), ts: 200}},
		},
	})

	it := NewIterator(partitioner.ByteOrdered{}, []sstable.Cursor{c})
	sink := newCapturingSink()
	require.True(t, it.Next(sink))
	require.Equal(t, []byte("b"), sink.key)
	require.Equal(t, []byte("live"), sink.columns["col1"])
	require.Equal(t, int64(1), it.SkippedRecords)
	require.Equal(t, int64(2), it.CassandraReadRecords)
	require.False(t, it.Next(newCapturingSink()))
}

func TestIteratorDeletedColumnOmittedWithoutRowDeletion(t *testing.T) {
	// Without a partition-level deletion marker, the row itself still
	// comes through (empty), only the tombstoned column is left out.
	c := newFakeCursor([]fakeRow{{
		key: []byte("k1"),
		columns: []fakeColumn{
			{name: "col1", value: []byte("v"), ts: 5, deleted: true},
		},
	}})

	it := NewIterator(partitioner.ByteOrdered{}, []sstable.Cursor{c})
	sink := newCapturingSink()
	require.True(t, it.Next(sink))
	require.Equal(t, []byte("k1"), sink.key)
	require.Empty(t, sink.columns)
}

func TestIteratorRangeTombstoneShadowsColumn(t *testing.T) {
	c := newFakeCursor([]fakeRow{{
		key: []byte("k1"),
		columns: []fakeColumn{
			{name: "col1", value: []byte("shadowed"), ts: 5, rangeEnd: "col1", isRangeTS: true},
		},
	}})

	it := NewIterator(partitioner.ByteOrdered{}, []sstable.Cursor{c})
	sink := newCapturingSink()
	require.True(t, it.Next(sink))
	require.Empty(t, sink.columns, "a column covered by its own range tombstone at an equal timestamp is not live")
}
