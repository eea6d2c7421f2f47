// Package schema parses the per-table column layout out of a
// -Statistics.db header component: key/clustering/static/regular
// column formats and the minimum timestamp/TTL base values that later
// vint-delta-encoded column values are offset from.
package schema

import (
	"strings"

	"github.com/threatmetrix/cassandra2kv/internal/buffer"
)

// ColumnFormat is the decoded marshal class of a column, reduced to
// just enough information to know how many bytes a value occupies.
type ColumnFormat int

const (
	FormatUnknown ColumnFormat = iota
	FormatText
	FormatLong
	FormatInt32
	FormatBool
	FormatFloat
	FormatEmpty
	FormatTimestamp
	FormatUUID
)

const marshalPrefix = "org.apache.cassandra.db.marshal."

// ReadColumnFormat maps a fully qualified marshal class name
// (org.apache.cassandra.db.marshal.<Type>) to a ColumnFormat. Names
// without that prefix and unrecognized classes are UNKNOWN and decode
// like TEXT: a vint-length-prefixed blob.
func ReadColumnFormat(className string) ColumnFormat {
	if !strings.HasPrefix(className, marshalPrefix) {
		return FormatUnknown
	}
	switch className[len(marshalPrefix):] {
	case "UTF8Type", "AsciiType":
		return FormatText
	case "LongType":
		return FormatLong
	case "Int32Type":
		return FormatInt32
	case "BoolType":
		return FormatBool
	case "FloatType":
		return FormatFloat
	case "EmptyType":
		// The reference implementation maps EmptyType to the FLOAT
		// decoder rather than a true zero-size type. Columns using
		// EmptyType (used by Cassandra for e.g. set/map element
		// markers) are rare enough in practice that this bug has
		// shipped undetected; preserved here for bit-for-bit parity.
		return FormatFloat
	case "TimestampType":
		return FormatTimestamp
	case "UUIDType", "TimeUUIDType", "LexicalUUIDType":
		return FormatUUID
	default:
		return FormatUnknown
	}
}

// GetColumnSize returns the number of bytes a column of the given
// format occupies at src's current position, consuming a length vint
// first for the variable-length formats.
func GetColumnSize(format ColumnFormat, r *buffer.Reader) int {
	switch format {
	case FormatLong, FormatTimestamp:
		return 8
	case FormatInt32, FormatFloat:
		return 4
	case FormatBool:
		return 1
	case FormatUUID:
		return 16
	case FormatEmpty:
		return 0
	case FormatText, FormatUnknown:
		return int(r.ReadUnsignedVint())
	default:
		return int(r.ReadUnsignedVint())
	}
}

// Column is one entry of a clustering/static/regular column list.
type Column struct {
	Name   string
	Format ColumnFormat
}

// Table is the parsed column layout and timestamp/TTL bases for one
// SSTable's -Statistics.db.
type Table struct {
	MinTimestamp int64
	MinTTL       int64

	KeyFormat  ColumnFormat
	Clustering []Column
	Static     []Column
	Regular    []Column
}

// Parse reads a Table from r, positioned at the start of the
// -Statistics.db header's schema section (spec §4.5).
func Parse(r *buffer.Reader) *Table {
	t := &Table{}
	t.MinTimestamp = int64(r.ReadUnsignedVint())
	r.ReadUnsignedVint() // minLocalDeletionTime, unused
	t.MinTTL = int64(r.ReadUnsignedVint())

	t.KeyFormat = ReadColumnFormat(r.ReadVintLengthString())

	clusterCount := r.ReadUnsignedVint()
	t.Clustering = make([]Column, clusterCount)
	for i := range t.Clustering {
		t.Clustering[i].Format = ReadColumnFormat(r.ReadVintLengthString())
	}

	t.Static = readColumnList(r)
	t.Regular = readColumnList(r)
	return t
}

func readColumnList(r *buffer.Reader) []Column {
	count := r.ReadUnsignedVint()
	cols := make([]Column, count)
	for i := range cols {
		cols[i].Name = r.ReadVintLengthString()
		cols[i].Format = ReadColumnFormat(r.ReadVintLengthString())
	}
	return cols
}
