// Package sstable implements the per-file SSTable reader (spec §4.6):
// summary+index seeking, format-version decoding, and the two row
// decoder FSMs (pre-`ma` and `ma`+).
package sstable

import (
	"log"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
)

var logger = log.New(os.Stderr, "sstable: ", log.LstdFlags)

// StillActive is the sentinel marking "no deletion marker present"
// (spec §3, §4.7): 0x8000000000000000 as a signed 64-bit value.
const StillActive int64 = -1 << 63

// Cursor is one open SSTable's row/column stream, positioned at the
// "current" row and column until advanced.
type Cursor interface {
	Open() error
	Close() error

	// ReadRow advances to the next partition. Returns false at EOF.
	ReadRow() bool
	// ReadColumn advances to the next column of the current row.
	// Returns false at row end.
	ReadColumn() bool
	// ReadColumnData materializes the current column's value.
	ReadColumnData() []byte

	NextKey() []byte
	NextToken() partitioner.Token
	NextColumn() string
	// MarkedForDeletion is the deletion timestamp in effect for the
	// current row (partition- or row-level), or StillActive sentinel.
	MarkedForDeletion() int64
	// CurrentColumnTimestamp is the timestamp of the current column.
	CurrentColumnTimestamp() int64
	// CurrentColumnDeleted, CurrentColumnRangeTombstone and
	// CurrentColumnTTL describe the current column.
	CurrentColumnDeleted() bool
	CurrentColumnRangeTombstone() (rangeEnd string, ts int64, ok bool)
	CurrentColumnTTL() (ttl int64, ok bool)
}

// Open dispatches on the table's format version to construct the
// correct cursor implementation (spec §4.6).
func Open(cfg *TableConfig) (Cursor, error) {
	var c Cursor
	if cfg.Descriptor.Version >= VersionMA {
		c = newNewTable(cfg)
	} else {
		c = newOldTable(cfg)
	}
	if err := c.Open(); err != nil {
		return nil, errors.Wrapf(err, "sstable: opening %s", cfg.Descriptor.ComponentPath("Data"))
	}
	return c, nil
}
