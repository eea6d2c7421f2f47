package sstable

import (
	"path/filepath"
	"strings"
)

// Version is a decoded SSTable format version: (a-'a')*26+(b-'a').
type Version int

func encodeVersion(a, b byte) Version {
	return Version(int(a-'a')*26 + int(b-'a'))
}

var (
	VersionD  = encodeVersion('d', 'a')
	VersionHC = encodeVersion('h', 'c')
	VersionHD = encodeVersion('h', 'd')
	VersionHE = encodeVersion('h', 'e')
	VersionIB = encodeVersion('i', 'b')
	VersionJA = encodeVersion('j', 'a')
	VersionJB = encodeVersion('j', 'b')
	VersionKA = encodeVersion('k', 'a')
	VersionLA = encodeVersion('l', 'a')
	VersionMA = encodeVersion('m', 'a')
)

// promoteSingleLetter maps the ancient single-letter versions
// ('a'..'d') to their two-letter "<letter>a" family, matching the
// source's promotion rule before encoding.
func promoteSingleLetter(s string) string {
	if len(s) == 1 && s[0] >= 'a' && s[0] <= 'd' {
		return s + "a"
	}
	return s
}

// VersionFromString decodes a two-character version code (after any
// single-letter promotion), e.g. "ma" -> VersionMA.
func VersionFromString(s string) Version {
	s = promoteSingleLetter(s)
	if len(s) < 2 {
		return -1
	}
	return encodeVersion(s[0], s[1])
}

// Descriptor identifies one SSTable's component files and decoded
// identity: keyspace, table name, and format version.
type Descriptor struct {
	Dir       string
	Keyspace  string
	Table     string
	Generation string
	Version   Version
	base      string // path prefix shared by all component files
}

// ParseFilename extracts a Descriptor from the path to any one
// component file of an SSTable (e.g. the -Data.db file), following the
// two filename grammars documented in spec §4.6.2:
//
//   - pre-`la`: "<keyspace>-<table>-<version>-<generation>-<Component>.db"
//   - `la`+:    "<version>-<generation>-<big|...>-<Component>.db", with
//     keyspace/table taken from the final two directory components.
func ParseFilename(path string) (*Descriptor, bool) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return nil, false
	}

	// la+ form: first token parses as a two-letter (or promotable
	// single-letter) version and is NOT "<keyspace>".
	if v := VersionFromString(parts[0]); v >= VersionLA && len(parts[0]) <= 2 {
		keyspace, table := extractKeyspaceAndTable(dir)
		d := &Descriptor{
			Dir:        dir,
			Keyspace:   keyspace,
			Table:      table,
			Generation: parts[1],
			Version:    v,
			base:       strings.Join(parts[:len(parts)-1], "-"),
		}
		return d, true
	}

	if len(parts) < 5 {
		return nil, false
	}
	d := &Descriptor{
		Dir:        dir,
		Keyspace:   parts[0],
		Table:      parts[1],
		Generation: parts[3],
		Version:    VersionFromString(parts[2]),
		base:       strings.Join(parts[:len(parts)-1], "-"),
	}
	return d, true
}

// extractKeyspaceAndTable pulls <keyspace>/<table> from the final two
// directory components of a `la`+ resolved path, e.g.
// ".../keyspace1/table1-7f8.../la-1-big-Data.db".
func extractKeyspaceAndTable(dir string) (keyspace, table string) {
	table = filepath.Base(dir)
	// table directories are suffixed with a hex UUID fragment; strip
	// the trailing "-<hex>" segment if present.
	if idx := strings.LastIndex(table, "-"); idx > 0 {
		table = table[:idx]
	}
	keyspace = filepath.Base(filepath.Dir(dir))
	return keyspace, table
}

// ComponentPath returns the path to a named component ("Data", "Index",
// "Summary", "Statistics", "CompressionInfo") for this descriptor.
func (d *Descriptor) ComponentPath(component string) string {
	return filepath.Join(d.Dir, d.base+"-"+component+".db")
}
