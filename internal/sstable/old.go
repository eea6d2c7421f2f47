package sstable

import (
	"github.com/threatmetrix/cassandra2kv/internal/buffer"
	"github.com/threatmetrix/cassandra2kv/internal/partitioner"
)

type oldState int

const (
	oldReadRow oldState = iota
	oldReadColumn
	oldReadColumnData
)

// oldTable is the pre-`ma` row/column stream (spec §4.6.3): a flat
// list of columns per row rather than the ma+ unfiltered-item model.
type oldTable struct {
	cfg     *TableConfig
	version Version
	src     buffer.Source
	r       *buffer.Reader
	state   oldState

	key                string
	token              partitioner.Token
	markedForDeletion  int64
	remainingColumns   int32

	currentName     string
	currentTS       int64
	currentDeleted  bool
	currentExpiring bool
	currentTTL      int64

	rangeTombstone bool
	rangeEnd       string
}

func newOldTable(cfg *TableConfig) *oldTable {
	return &oldTable{cfg: cfg, version: cfg.Descriptor.Version}
}

func (c *oldTable) Open() error {
	c.src = openDataSource(c.cfg)
	c.r = buffer.NewReader(c.src)
	if c.cfg.StartOffset > 0 {
		c.src.Seek(c.cfg.StartOffset)
	}
	c.state = oldReadRow
	return nil
}

func (c *oldTable) Close() error {
	if closer, ok := c.src.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *oldTable) ReadRow() bool {
	if c.src.IsEOF() {
		return false
	}
	key := c.r.ReadString()
	if c.src.IsEOF() || key == "" {
		return false
	}

	switch {
	case c.version < VersionD:
		c.src.SkipBytes(4)
	case c.version < VersionJA:
		c.src.SkipBytes(8)
	}
	c.src.SkipBytes(4) // local_deletion, unused
	c.markedForDeletion = c.r.ReadInt64()
	if c.version < VersionJA {
		c.remainingColumns = c.r.ReadInt32()
	}

	c.key = key
	c.token = c.cfg.Partitioner.AssignToken([]byte(key))
	c.state = oldReadColumn
	c.ReadColumn() // position the first column (or none, for a pure row tombstone)
	return !c.src.IsEOF()
}

func (c *oldTable) ReadColumn() bool {
	if c.state == oldReadColumnData {
		c.r.SkipData()
		c.state = oldReadColumn
	}

	if c.version < VersionJA {
		if c.remainingColumns <= 0 {
			c.state = oldReadRow
			return false
		}
		c.remainingColumns--
	} else {
		name := c.r.ReadString()
		if name == "" {
			c.state = oldReadRow
			return false
		}
		c.currentName = peelCompoundPath(name)
	}

	flags := c.r.ReadByte()
	c.rangeTombstone = flags&0x10 != 0
	if c.rangeTombstone {
		c.rangeEnd = c.r.ReadString()
		c.src.SkipBytes(4)
		c.currentTS = c.r.ReadInt64()
		c.state = oldReadColumn
		return true
	}

	c.currentDeleted = flags&0x01 != 0
	c.currentExpiring = flags&0x02 != 0
	counter := flags&0x04 != 0

	switch {
	case counter:
		c.r.ReadInt64() // counter timestamp; counter reconstruction is out of scope
	case c.currentExpiring:
		c.r.ReadInt32() // ttl; the writer pool works from the absolute expiration instead
		c.currentTTL = int64(c.r.ReadInt32()) // expiration_secs
	}
	c.currentTS = c.r.ReadInt64()
	c.state = oldReadColumnData
	return true
}

func (c *oldTable) ReadColumnData() []byte {
	data, _ := c.r.ReadData()
	c.state = oldReadColumn
	return data
}

// peelCompoundPath strips the clustering/composite path prefix off a
// pre-`ma` column name, per spec §4.6.3: a sequence of
// (int16 length, element, flag) triplets terminated by the final
// triplet, whose element is the real column name.
func peelCompoundPath(name string) string {
	b := []byte(name)
	offset := 0
	for len(b)-offset >= 2 {
		l := int(uint16(b[offset])<<8 | uint16(b[offset+1]))
		remaining := len(b) - offset
		if remaining > l+3 {
			offset += l + 3
			continue
		}
		if remaining == l+3 {
			return string(b[offset+2 : offset+2+l])
		}
		break
	}
	return string(b[offset:])
}

func (c *oldTable) NextKey() []byte                 { return []byte(c.key) }
func (c *oldTable) NextToken() partitioner.Token     { return c.token }
func (c *oldTable) NextColumn() string               { return c.currentName }
func (c *oldTable) MarkedForDeletion() int64         { return c.markedForDeletion }
func (c *oldTable) CurrentColumnTimestamp() int64    { return c.currentTS }
func (c *oldTable) CurrentColumnDeleted() bool       { return c.currentDeleted }

func (c *oldTable) CurrentColumnRangeTombstone() (string, int64, bool) {
	if !c.rangeTombstone {
		return "", 0, false
	}
	return c.rangeEnd, c.currentTS, true
}

func (c *oldTable) CurrentColumnTTL() (int64, bool) {
	if !c.currentExpiring {
		return 0, false
	}
	return c.currentTTL, true
}
