package sstable

import (
	"encoding/binary"

	"github.com/threatmetrix/cassandra2kv/internal/buffer"
	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
)

// summaryEntry is one decoded (key, index-offset) pair out of the
// packed -Summary.db blob.
type summaryEntry struct {
	key         []byte
	indexOffset int64
}

// seekIndexOffset resolves the byte offset into -Index.db at which to
// begin a sequential scan for target (token, key), using the
// -Summary.db sparse index when present (spec §4.6.1 step 1).
func seekIndexOffset(cfg *TableConfig, target partitioner.Token, key []byte) int64 {
	src := buffer.OpenUncompressed(cfg.Descriptor.ComponentPath("Summary"))
	defer src.Close()
	if !src.Good() {
		return 0
	}
	r := buffer.NewReader(src)
	src.SkipBytes(4)
	size := r.ReadInt32()
	memSize := r.ReadInt64()
	if cfg.Descriptor.Version >= VersionKA {
		src.SkipBytes(8)
	}
	if size <= 0 || memSize <= 0 {
		return 0
	}
	packed := src.ReadBytes(int(memSize))
	if packed == nil || len(packed) < int(size)*4 {
		return 0
	}

	offsets := make([]int32, size)
	for i := 0; i < int(size); i++ {
		offsets[i] = int32(binary.LittleEndian.Uint32(packed[i*4:]))
	}

	entries := make([]summaryEntry, 0, size)
	for i, off := range offsets {
		var end int
		if i+1 < len(offsets) {
			end = int(offsets[i+1])
		} else {
			end = len(packed)
		}
		if int(off) >= end || end > len(packed) {
			continue
		}
		entry := packed[off:end]
		if len(entry) < 8 {
			continue
		}
		entryKey := entry[:len(entry)-8]
		indexOffset := int64(binary.LittleEndian.Uint64(entry[len(entry)-8:]))
		entries = append(entries, summaryEntry{key: entryKey, indexOffset: indexOffset})
	}
	if len(entries) == 0 {
		return 0
	}

	// Binary search for the greatest entry <= target.
	lo, hi := 0, len(entries)-1
	best := int64(0)
	for lo <= hi {
		mid := (lo + hi) / 2
		entryToken := cfg.Partitioner.AssignToken(entries[mid].key)
		if cfg.Partitioner.Compare(entryToken, entries[mid].key, target, key) <= 0 {
			best = entries[mid].indexOffset
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// SeekToKey resolves the data-file byte offset at which a partition
// with (token, key) would begin, by combining the summary's coarse
// index with a sequential -Index.db scan (spec §4.6.1 step 2). It
// returns the offset of the first entry whose (token, key) is >= the
// target, or the data file length if none is found (full EOF).
func SeekToKey(cfg *TableConfig, target partitioner.Token, key []byte) int64 {
	startOffset := seekIndexOffset(cfg, target, key)

	src := buffer.OpenUncompressed(cfg.Descriptor.ComponentPath("Index"))
	defer src.Close()
	if !src.Good() {
		return 0
	}
	src.Seek(startOffset)
	r := buffer.NewReader(src)

	for !src.IsEOF() {
		entryKey := r.ReadString()
		if src.IsEOF() {
			break
		}
		var dataOffset int64
		if cfg.Descriptor.Version >= VersionMA {
			dataOffset = int64(r.ReadUnsignedVint())
		} else {
			dataOffset = r.ReadInt64()
		}
		if cfg.Descriptor.Version >= VersionMA {
			skipLen := r.ReadUnsignedVint()
			src.SkipBytes(int64(skipLen))
		} else {
			skipLen := r.ReadInt32()
			src.SkipBytes(int64(skipLen))
		}

		entryToken := cfg.Partitioner.AssignToken([]byte(entryKey))
		if cfg.Partitioner.Compare(entryToken, []byte(entryKey), target, key) >= 0 {
			return dataOffset
		}
	}
	return 0
}
