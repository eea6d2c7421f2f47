package sstable

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/threatmetrix/cassandra2kv/internal/buffer"
	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
	"github.com/threatmetrix/cassandra2kv/internal/schema"
)

// TableConfig is everything a Cursor needs to open one SSTable: its
// file descriptor plus the partitioner and schema resolved from its
// -Statistics.db.
type TableConfig struct {
	Descriptor  *Descriptor
	Partitioner partitioner.Partitioner
	Schema      *schema.Table
	Checksum    buffer.ChecksumAlgorithm
	VerifyOnCompressed bool
	// StartOffset seeks the data file before the first ReadRow, used to
	// resume from a prior -s/-S checkpoint via SeekToKey.
	StartOffset int64
}

// Statistics.db table-of-contents entry types (ka+ format). Only
// validation (partitioner name) and header (column schema) are read;
// compaction and stats sections are skipped.
const (
	metadataValidation int32 = 0
	metadataHeader     int32 = 3
)

// loadStatistics opens <base>-Statistics.db and resolves the
// partitioner class name and (for ma+ tables) the column schema.
func loadStatistics(d *Descriptor) (partitioner.Partitioner, *schema.Table, error) {
	src := buffer.OpenUncompressed(d.ComponentPath("Statistics"))
	defer src.Close()
	if !src.Good() {
		return partitioner.Default(), nil, nil
	}
	r := buffer.NewReader(src)

	// ka+ Statistics.db opens with a table-of-contents: an int32 count
	// of (type, offset) int32 pairs identifying where each metadata
	// section starts. The header section holds the column schema; the
	// validation section holds the partitioner class name as a
	// short-length-prefixed string. Older-format statistics carry
	// neither a TOC nor a header section and fall back to the
	// class-name scan below.
	if d.Version >= VersionKA {
		numComponents := int(r.ReadInt32())
		var validationOffset, headerOffset int32 = -1, -1
		for i := 0; i < numComponents; i++ {
			thisType := r.ReadInt32()
			thisOffset := r.ReadInt32()
			switch thisType {
			case metadataValidation:
				validationOffset = thisOffset
			case metadataHeader:
				headerOffset = thisOffset
			}
		}

		var t *schema.Table
		if headerOffset >= 0 {
			r.Seek(int64(headerOffset))
			t = schema.Parse(r)
		}

		if validationOffset < 0 {
			return partitioner.Default(), t, nil
		}
		r.Seek(int64(validationOffset))
		className := r.ReadString()
		p := partitioner.FromClassName(className)
		if p == nil {
			p = partitioner.Default()
		}
		return p, t, nil
	}

	className := scanForPartitionerClassName(src)
	p := partitioner.FromClassName(className)
	if p == nil {
		p = partitioner.Default()
	}
	return p, nil, nil
}

// scanForPartitionerClassName linearly scans an old-format
// -Statistics.db for the first vint-length-prefixed string beginning
// with the dht package prefix. Old statistics files have no fixed
// offset for the partitioner name, but the original tool tolerates
// this with the same scan.
func scanForPartitionerClassName(src *buffer.UncompressedSource) string {
	r := buffer.NewReader(src)
	for i := 0; i < 4096 && !src.IsEOF(); i++ {
		s := r.ReadVintLengthString()
		if strings.HasPrefix(s, "org.apache.cassandra.dht.") {
			return s
		}
	}
	return ""
}

// Resolve loads every directory's TableConfig and verifies that, when
// more than one is given, they all share the same partitioner: mixing
// keyspaces with different partitioners in one merge run is a setup
// error, not something to silently paper over (spec.md distillation
// omits this; carried from CassandraParser::open, see SPEC_FULL.md).
func Resolve(paths []string) ([]*TableConfig, error) {
	configs := make([]*TableConfig, 0, len(paths))
	var common partitioner.Partitioner

	for _, p := range paths {
		d, ok := ParseFilename(p)
		if !ok {
			return nil, errors.Newf("sstable: cannot parse filename %q", p)
		}
		part, sch, err := loadStatistics(d)
		if err != nil {
			return nil, errors.Wrapf(err, "sstable: loading statistics for %q", p)
		}
		if common == nil {
			common = part
		} else if !samePartitioner(common, part) {
			return nil, errors.Newf("sstable: %q uses a different partitioner than earlier tables", p)
		}
		configs = append(configs, &TableConfig{
			Descriptor:         d,
			Partitioner:        part,
			Schema:             sch,
			Checksum:           checksumFor(d.Version),
			VerifyOnCompressed: d.Version >= VersionJB && d.Version < VersionMA,
		})
	}
	return configs, nil
}

func samePartitioner(a, b partitioner.Partitioner) bool {
	return typeName(a) == typeName(b)
}

func typeName(p partitioner.Partitioner) string {
	switch p.(type) {
	case partitioner.Random:
		return "random"
	case partitioner.Murmur3:
		return "murmur3"
	case partitioner.ByteOrdered:
		return "byteordered"
	case partitioner.OrderPreserving:
		return "orderpreserving"
	default:
		return "unknown"
	}
}

// checksumFor picks Adler32-over-compressed for [JB, MA) and
// CRC32-over-decompressed otherwise (spec §4.6.2).
func checksumFor(v Version) buffer.ChecksumAlgorithm {
	if v >= VersionJB && v < VersionMA {
		return buffer.ChecksumAdler32
	}
	return buffer.ChecksumCRC32
}
