// Package buffer implements the byte-level decoders and random-access
// byte sources used to parse Cassandra's on-disk SSTable files.
package buffer

import (
	"os"

	"github.com/cockroachdb/errors"
)

// Source is a random-access byte source. Implementations are either an
// UncompressedSource (plain file) or a CompressedSource (chunked,
// checksummed -Data.db).
type Source interface {
	// ReadBytes returns the next n bytes, or nil at EOF. The returned
	// slice may be a borrow and must not be retained across the next call.
	ReadBytes(n int) []byte
	SkipBytes(n int64)
	Seek(pos int64)
	IsEOF() bool
}

// UncompressedSource is a sequential+seekable reader over a plain file,
// used for -Index.db, -Summary.db and -Statistics.db, none of which are
// ever block-compressed.
type UncompressedSource struct {
	file *os.File
	buf  []byte
	eof  bool
}

// OpenUncompressed opens filename for sequential/seek reads. A missing
// file is not an error here: callers probe with Good() rather than
// treat an optional manifest's absence as fatal.
func OpenUncompressed(filename string) *UncompressedSource {
	f, err := os.Open(filename)
	if err != nil {
		return &UncompressedSource{file: nil}
	}
	return &UncompressedSource{file: f}
}

// Good reports whether the underlying file was opened successfully.
func (s *UncompressedSource) Good() bool {
	return s.file != nil
}

func (s *UncompressedSource) ReadBytes(n int) []byte {
	if s.file == nil || n < 0 {
		s.eof = true
		return nil
	}
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	s.buf = s.buf[:n]
	if n == 0 {
		return s.buf
	}
	if _, err := readFull(s.file, s.buf); err != nil {
		s.eof = true
		return nil
	}
	return s.buf
}

func (s *UncompressedSource) SkipBytes(n int64) {
	if s.file == nil {
		return
	}
	if _, err := s.file.Seek(n, 1); err != nil {
		s.eof = true
	}
}

func (s *UncompressedSource) Seek(pos int64) {
	if s.file == nil {
		return
	}
	if _, err := s.file.Seek(pos, 0); err != nil {
		s.eof = true
	}
}

func (s *UncompressedSource) IsEOF() bool {
	return s.eof
}

// Close releases the underlying file handle.
func (s *UncompressedSource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, errors.Wrap(err, "short read")
		}
		if n == 0 {
			return total, errors.New("short read")
		}
	}
	return total, nil
}
