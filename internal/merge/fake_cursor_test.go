package merge

import (
	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
	"github.com/threatmetrix/cassandra2kv/internal/sstable"
)

// fakeColumn is one column of a fakeRow, enough to drive the merge loop
// without a real SSTable on disk.
type fakeColumn struct {
	name      string
	value     []byte
	ts        int64
	deleted   bool
	ttl       int64
	hasTTL    bool
	rangeEnd  string
	isRangeTS bool
}

type fakeRow struct {
	key     []byte
	deleted int64 // sstable.StillActive if not deleted
	columns []fakeColumn
}

// fakeCursor is a hand-rolled sstable.Cursor over an in-memory row list,
// used to exercise the merge loop's matching/tombstone/expiry logic
// without building real SSTable component files.
type fakeCursor struct {
	rows    []fakeRow
	rowIdx  int
	colIdx  int
}

func newFakeCursor(rows []fakeRow) *fakeCursor { return &fakeCursor{rows: rows, rowIdx: -1} }

func (c *fakeCursor) Open() error  { return nil }
func (c *fakeCursor) Close() error { return nil }

func (c *fakeCursor) ReadRow() bool {
	c.rowIdx++
	// Real cursors position at the first column as part of ReadRow, so
	// NextColumn/CurrentColumn* are valid before any ReadColumn call.
	c.colIdx = 0
	return c.rowIdx < len(c.rows)
}

func (c *fakeCursor) ReadColumn() bool {
	c.colIdx++
	return c.colIdx < len(c.rows[c.rowIdx].columns)
}

func (c *fakeCursor) ReadColumnData() []byte {
	return c.rows[c.rowIdx].columns[c.colIdx].value
}

func (c *fakeCursor) NextKey() []byte { return c.rows[c.rowIdx].key }

func (c *fakeCursor) NextToken() partitioner.Token { return partitioner.Token{} }

func (c *fakeCursor) NextColumn() string {
	if c.colIdx < 0 || c.colIdx >= len(c.rows[c.rowIdx].columns) {
		return ""
	}
	return c.rows[c.rowIdx].columns[c.colIdx].name
}

func (c *fakeCursor) MarkedForDeletion() int64 {
	d := c.rows[c.rowIdx].deleted
	if d == 0 {
		return sstable.StillActive
	}
	return d
}

func (c *fakeCursor) CurrentColumnTimestamp() int64 {
	return c.rows[c.rowIdx].columns[c.colIdx].ts
}

func (c *fakeCursor) CurrentColumnDeleted() bool {
	return c.rows[c.rowIdx].columns[c.colIdx].deleted
}

func (c *fakeCursor) CurrentColumnRangeTombstone() (string, int64, bool) {
	col := c.rows[c.rowIdx].columns[c.colIdx]
	return col.rangeEnd, col.ts, col.isRangeTS
}

func (c *fakeCursor) CurrentColumnTTL() (int64, bool) {
	col := c.rows[c.rowIdx].columns[c.colIdx]
	return col.ttl, col.hasTTL
}

var _ sstable.Cursor = (*fakeCursor)(nil)
