// Package merge implements the n-way merge of per-SSTable cursors into
// a single ordered stream of live rows (spec §4.7): the newest
// timestamp wins per column, tombstoned columns and rows are dropped,
// and range tombstones shadow the columns they cover.
package merge

import (
	"sort"
	"strings"

	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
	"github.com/threatmetrix/cassandra2kv/internal/sstable"
)

// Sink receives the materialized columns of one merged row. A writer
// pool request object implements this to collect a row without an
// intermediate allocation per column (spec §4.8's row-buffer reuse).
type Sink interface {
	NewRow(key []byte)
	NewColumn(name string, value []byte, ts int64)
	NewColumnWithTTL(name string, value []byte, ts int64, ttl int64)
}

type cursorState struct {
	cursor sstable.Cursor
	active bool
}

// Iterator merges a sorted set of per-file cursors into one stream,
// newest-timestamp-wins, skipping fully-deleted rows.
type Iterator struct {
	part   partitioner.Partitioner
	states []*cursorState

	activeSet map[int]bool
	nextTable int

	CassandraReadRecords int64
	SkippedRecords       int64
}

// NewIterator peeks the first partition of every cursor, sorts them by
// (token, key), and prepares the merge state. Cursors that are
// immediately at EOF are kept (inactive) so their slot doesn't shift
// the others' indices.
func NewIterator(part partitioner.Partitioner, cursors []sstable.Cursor) *Iterator {
	states := make([]*cursorState, len(cursors))
	for i, c := range cursors {
		states[i] = &cursorState{cursor: c, active: c.ReadRow()}
	}
	sort.SliceStable(states, func(i, j int) bool {
		if !states[i].active {
			return false
		}
		if !states[j].active {
			return true
		}
		a, b := states[i].cursor, states[j].cursor
		return part.Compare(a.NextToken(), a.NextKey(), b.NextToken(), b.NextKey()) < 0
	})
	return &Iterator{part: part, states: states, activeSet: map[int]bool{}}
}

func (it *Iterator) currentMin() (token partitioner.Token, key []byte, ok bool) {
	for idx := range it.activeSet {
		s := it.states[idx]
		if !s.active {
			continue
		}
		if !ok || it.part.Compare(s.cursor.NextToken(), s.cursor.NextKey(), token, key) < 0 {
			token, key, ok = s.cursor.NextToken(), s.cursor.NextKey(), true
		}
	}
	return
}

// GetNextKey reports the partition key the next call to Next would
// start from, without consuming it, lazily activating any cursor whose
// starting partition ties the current minimum.
func (it *Iterator) GetNextKey() ([]byte, bool) {
	if len(it.activeSet) == 0 {
		if it.nextTable >= len(it.states) {
			return nil, false
		}
		it.activeSet[it.nextTable] = true
		it.nextTable++
	}
	_, key, ok := it.currentMin()
	if !ok {
		return nil, false
	}
	it.activateTies(key)
	return key, true
}

func (it *Iterator) activateTies(key []byte) {
	for it.nextTable < len(it.states) {
		s := it.states[it.nextTable]
		if !s.active {
			it.nextTable++
			continue
		}
		token, _, _ := it.currentMin()
		if it.part.Compare(s.cursor.NextToken(), s.cursor.NextKey(), token, key) != 0 {
			break
		}
		it.activeSet[it.nextTable] = true
		it.nextTable++
	}
}

// Next produces the next merged row into sink. It returns false only
// when every cursor is exhausted. A row that carries a deletion marker
// and merges down to no live column is skipped internally and the loop
// continues (spec §4.7 step 6); a row without a deletion marker whose
// columns are all deleted or shadowed is still returned, with no
// columns.
func (it *Iterator) Next(sink Sink) bool {
	for {
		if len(it.activeSet) == 0 {
			if it.nextTable >= len(it.states) {
				return false
			}
			it.activeSet[it.nextTable] = true
			it.nextTable++
		}

		token, key, ok := it.currentMin()
		if !ok {
			return false
		}

		matchSet := map[int]bool{}
		for idx := range it.activeSet {
			s := it.states[idx]
			if s.active && it.part.Compare(s.cursor.NextToken(), s.cursor.NextKey(), token, key) == 0 {
				matchSet[idx] = true
			}
		}
		for it.nextTable < len(it.states) {
			s := it.states[it.nextTable]
			if !s.active {
				it.nextTable++
				continue
			}
			if it.part.Compare(s.cursor.NextToken(), s.cursor.NextKey(), token, key) != 0 {
				break
			}
			it.activeSet[it.nextTable] = true
			matchSet[it.nextTable] = true
			it.nextTable++
		}

		sink.NewRow(key)

		markedForDeletion := sstable.StillActive
		for idx := range matchSet {
			if md := it.states[idx].cursor.MarkedForDeletion(); md > markedForDeletion {
				markedForDeletion = md
			}
		}

		tombstones := newTombstoneMap()
		hasColumns := false

		for len(matchSet) > 0 {
			minName, first := "", true
			for idx := range matchSet {
				name := it.states[idx].cursor.NextColumn()
				if first || strings.Compare(name, minName) < 0 {
					minName, first = name, false
				}
			}

			var colMatch []int
			for idx := range matchSet {
				if it.states[idx].cursor.NextColumn() == minName {
					colMatch = append(colMatch, idx)
				}
			}

			tombstones.ErasePrefixLessThan(minName)
			for _, idx := range colMatch {
				if rangeEnd, ts, isTombstone := it.states[idx].cursor.CurrentColumnRangeTombstone(); isTombstone {
					tombstones.Upsert(rangeEnd, ts)
				}
			}
			minTime := tombstones.ActiveMax(minName, markedForDeletion)

			best := colMatch[0]
			for _, idx := range colMatch[1:] {
				if it.states[idx].cursor.CurrentColumnTimestamp() > it.states[best].cursor.CurrentColumnTimestamp() {
					best = idx
				}
			}

			if minName != "" {
				bc := it.states[best].cursor
				if !bc.CurrentColumnDeleted() && (minTime == sstable.StillActive || bc.CurrentColumnTimestamp() > minTime) {
					value := bc.ReadColumnData()
					if ttl, hasTTL := bc.CurrentColumnTTL(); hasTTL {
						sink.NewColumnWithTTL(minName, value, bc.CurrentColumnTimestamp(), ttl)
					} else {
						sink.NewColumn(minName, value, bc.CurrentColumnTimestamp())
					}
					hasColumns = true
				}
			}

			for _, idx := range colMatch {
				cur := it.states[idx].cursor
				if !cur.ReadColumn() {
					delete(matchSet, idx)
					if !cur.ReadRow() {
						it.states[idx].active = false
						delete(it.activeSet, idx)
					}
				}
			}
		}

		it.CassandraReadRecords++
		if markedForDeletion != sstable.StillActive && !hasColumns {
			it.SkippedRecords++
			continue
		}
		return true
	}
}
