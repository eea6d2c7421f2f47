package sstable

import (
	"github.com/threatmetrix/cassandra2kv/internal/buffer"
	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
	"github.com/threatmetrix/cassandra2kv/internal/schema"
)

type newState int

const (
	newReadRow newState = iota
	newReadColumn
	newReadColumnData
)

// Row-level flags (spec §4.6.4).
const (
	flagEndOfPartition   = 0x01
	flagIsMarker         = 0x02
	flagHasTimestamp     = 0x04
	flagHasTTL           = 0x08
	flagHasDeletion      = 0x10
	flagHasAllColumns    = 0x20
	flagHasComplexDelete = 0x40
	flagExtension        = 0x80
)

// Cell-level flags (spec §4.6.4).
const (
	cellIsDeleted       = 0x01
	cellIsExpiring      = 0x02
	cellHasEmptyValue   = 0x04
	cellUseRowTimestamp = 0x08
	cellUseRowTTL       = 0x10
)

// noTTL is LivenessInfo's "no expiration" sentinel for row-level TTL.
const noTTL int64 = 0x7fffffff

// newTable is the `ma`+ row/column stream (spec §4.6.4-4.6.6): a
// sequence of unfiltered items (rows or range-tombstone markers) per
// partition, terminated by END_OF_PARTITION.
type newTable struct {
	cfg     *TableConfig
	version Version
	sch     *schema.Table
	src     buffer.Source
	r       *buffer.Reader
	state   newState

	atPartitionBoundary bool
	key                 string
	token               partitioner.Token
	partitionMarkedForDeletion int64
	rowMarkedForDeletion       int64

	isStatic bool
	rangeTombstonePseudoColumn bool

	rowTimestamp    int64
	rowTTL          int64

	activeColumns   []schema.Column
	columnsPresent  []bool
	thisColumnIndex int

	currentName     string
	currentFormat   schema.ColumnFormat
	currentTS       int64
	currentDeleted  bool
	currentExpiring bool
	currentTTL      int64
}

func newNewTable(cfg *TableConfig) *newTable {
	return &newTable{cfg: cfg, version: cfg.Descriptor.Version, sch: cfg.Schema}
}

func (c *newTable) Open() error {
	c.src = openDataSource(c.cfg)
	c.r = buffer.NewReader(c.src)
	if c.cfg.StartOffset > 0 {
		c.src.Seek(c.cfg.StartOffset)
	}
	c.state = newReadRow
	c.atPartitionBoundary = true
	return nil
}

func (c *newTable) Close() error {
	if closer, ok := c.src.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *newTable) ReadRow() bool {
	for {
		if c.atPartitionBoundary {
			if c.src.IsEOF() {
				return false
			}
			key := c.r.ReadString()
			if c.src.IsEOF() || key == "" {
				return false
			}
			c.src.SkipBytes(4) // local deletion time, unused
			c.partitionMarkedForDeletion = c.r.ReadInt64()
			c.key = key
			c.token = c.cfg.Partitioner.AssignToken([]byte(key))
			c.atPartitionBoundary = false
		}

		flags := c.r.ReadByte()
		if flags&flagEndOfPartition != 0 {
			c.atPartitionBoundary = true
			continue
		}

		var extended byte
		if flags&flagExtension != 0 {
			extended = c.r.ReadByte()
		}
		c.isStatic = extended&0x01 != 0

		if flags&flagIsMarker != 0 {
			c.readMarker()
		} else {
			c.readNormalRow(flags)
		}
		return true
	}
}

func (c *newTable) readMarker() {
	c.rangeTombstonePseudoColumn = true
	markerType := c.r.ReadByte()
	size := int(uint16(c.r.ReadInt16()))
	if !c.isStatic {
		c.skipClusteringColumns(size)
	}
	c.r.ReadUnsignedVint() // row size, unused
	c.r.ReadUnsignedVint() // previous unfiltered size, unused
	c.rowMarkedForDeletion = c.r.ReadInt64()
	c.src.SkipBytes(4)
	if markerType == 2 || markerType == 5 {
		c.src.SkipBytes(12)
	}
	c.currentName = ""
	c.columnsPresent = nil
	c.thisColumnIndex = 0
	c.state = newReadColumn
}

func (c *newTable) readNormalRow(flags byte) {
	c.rangeTombstonePseudoColumn = false
	if !c.isStatic {
		c.skipClusteringColumns(len(c.sch.Clustering))
	}
	c.r.ReadUnsignedVint() // row size, unused
	c.r.ReadUnsignedVint() // previous unfiltered size, unused

	c.rowTTL = noTTL
	c.rowTimestamp = 0
	if flags&flagHasTimestamp != 0 {
		c.rowTimestamp = int64(c.r.ReadUnsignedVint()) + c.sch.MinTimestamp
		if flags&flagHasTTL != 0 {
			c.rowTTL = int64(c.r.ReadUnsignedVint()) + c.sch.MinTTL
			c.r.ReadUnsignedVint() // local deletion time, unused
		}
	}
	if flags&flagHasDeletion != 0 {
		c.rowMarkedForDeletion = int64(c.r.ReadUnsignedVint()) + c.sch.MinTimestamp
		c.r.ReadUnsignedVint() // local deletion time, unused
	} else {
		c.rowMarkedForDeletion = c.partitionMarkedForDeletion
	}

	if c.isStatic {
		c.activeColumns = c.sch.Static
	} else {
		c.activeColumns = c.sch.Regular
	}
	n := len(c.activeColumns)
	if flags&flagHasAllColumns != 0 {
		c.columnsPresent = make([]bool, n)
		for i := range c.columnsPresent {
			c.columnsPresent[i] = true
		}
	} else {
		c.columnsPresent = decodeColumnSubset(c.r, n)
	}
	c.thisColumnIndex = 0
	for c.thisColumnIndex < len(c.columnsPresent) && !c.columnsPresent[c.thisColumnIndex] {
		c.thisColumnIndex++
	}
	c.state = newReadColumn
}

func (c *newTable) ReadColumn() bool {
	if c.state == newReadColumnData {
		c.skipColumnValue()
	}
	if c.thisColumnIndex >= len(c.columnsPresent) {
		c.state = newReadRow
		return false
	}

	col := c.activeColumns[c.thisColumnIndex]
	c.currentName = col.Name
	c.currentFormat = col.Format

	cellFlags := c.r.ReadByte()
	c.currentDeleted = cellFlags&cellIsDeleted != 0
	c.currentExpiring = cellFlags&cellIsExpiring != 0
	useRowTS := cellFlags&cellUseRowTimestamp != 0
	useRowTTL := cellFlags&cellUseRowTTL != 0
	hasEmptyValue := cellFlags&cellHasEmptyValue != 0

	if useRowTS {
		c.currentTS = c.rowTimestamp
	} else {
		c.currentTS = int64(c.r.ReadUnsignedVint()) + c.sch.MinTimestamp
	}

	if useRowTTL {
		c.currentExpiring = c.rowTTL != noTTL
		c.currentTTL = c.rowTTL
	} else if c.currentExpiring || c.currentDeleted {
		localDeletion := c.r.ReadUnsignedVint()
		if c.currentExpiring {
			c.currentTTL = int64(localDeletion) + c.sch.MinTTL
		}
	}

	if hasEmptyValue {
		c.advanceColumnIndex()
		c.state = newReadColumn
	} else {
		c.state = newReadColumnData
	}
	return true
}

func (c *newTable) ReadColumnData() []byte {
	if c.state != newReadColumnData {
		return nil
	}
	size := schema.GetColumnSize(c.currentFormat, c.r)
	data := c.r.Source().ReadBytes(size)
	out := make([]byte, len(data))
	copy(out, data)
	c.advanceColumnIndex()
	c.state = newReadColumn
	return out
}

func (c *newTable) skipColumnValue() {
	size := schema.GetColumnSize(c.currentFormat, c.r)
	c.src.SkipBytes(int64(size))
	c.advanceColumnIndex()
	c.state = newReadColumn
}

func (c *newTable) advanceColumnIndex() {
	c.thisColumnIndex++
	for c.thisColumnIndex < len(c.columnsPresent) && !c.columnsPresent[c.thisColumnIndex] {
		c.thisColumnIndex++
	}
}

// skipClusteringColumns consumes `total` clustering values in groups
// of up to 32, per spec §4.6.5.
func (c *newTable) skipClusteringColumns(total int) {
	offset := 0
	for offset < total {
		groupSize := total - offset
		if groupSize > 32 {
			groupSize = 32
		}
		header := c.r.ReadUnsignedVint()
		for i := 0; i < groupSize; i++ {
			bits := (header >> uint(2*i)) & 3
			colIdx := offset + i
			if bits == 0 && colIdx < len(c.sch.Clustering) {
				sz := schema.GetColumnSize(c.sch.Clustering[colIdx].Format, c.r)
				c.src.SkipBytes(int64(sz))
			}
		}
		offset += groupSize
	}
}

// decodeColumnSubset decodes the column-presence bitmap, spec §4.6.6.
func decodeColumnSubset(r *buffer.Reader, n int) []bool {
	encoded := r.ReadUnsignedVint()
	present := make([]bool, n)
	if encoded == 0 {
		for i := range present {
			present[i] = true
		}
		return present
	}
	if n >= 64 {
		count := n - int(encoded)
		positive := count < n/2
		for i := range present {
			present[i] = !positive
		}
		for i := 0; i < count; i++ {
			idx := int(r.ReadUnsignedVint())
			if idx >= 0 && idx < n {
				present[idx] = positive
			}
		}
		return present
	}
	for i := 0; i < n; i++ {
		present[i] = (encoded>>uint(i))&1 != 0
	}
	return present
}

func (c *newTable) NextKey() []byte              { return []byte(c.key) }
func (c *newTable) NextToken() partitioner.Token { return c.token }
func (c *newTable) NextColumn() string           { return c.currentName }
func (c *newTable) MarkedForDeletion() int64     { return c.rowMarkedForDeletion }
func (c *newTable) CurrentColumnTimestamp() int64 { return c.currentTS }
func (c *newTable) CurrentColumnDeleted() bool    { return c.currentDeleted }

func (c *newTable) CurrentColumnRangeTombstone() (string, int64, bool) {
	if !c.rangeTombstonePseudoColumn {
		return "", 0, false
	}
	return "", c.rowMarkedForDeletion, true
}

func (c *newTable) CurrentColumnTTL() (int64, bool) {
	if !c.currentExpiring {
		return 0, false
	}
	return c.currentTTL, true
}
