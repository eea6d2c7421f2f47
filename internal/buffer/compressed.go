package buffer

import (
	"bytes"
	"hash/adler32"
	"hash/crc32"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// Compressor identifies the block codec named in -CompressionInfo.db.
type Compressor int

const (
	CompressorUnknown Compressor = iota
	CompressorSnappy
	CompressorLZ4
	CompressorDeflate
)

// ChecksumAlgorithm selects the per-chunk integrity check, and mirrors
// the format-version split in spec §4.6.2: versions in [JB, MA) check
// Adler32 over the compressed bytes, everything else checks CRC32 over
// the decompressed bytes.
type ChecksumAlgorithm int

const (
	ChecksumCRC32 ChecksumAlgorithm = iota
	ChecksumAdler32
)

// ErrChecksumMismatch is fatal per spec §4: a bad chunk checksum aborts
// the export rather than being silently skipped.
var ErrChecksumMismatch = errors.New("cassandra2kv: checksum mismatch")

// CompressedSource is a chunked, checksummed random-access reader over
// a -Data.db file, guided by its companion -CompressionInfo.db. It
// implements Source.
type CompressedSource struct {
	fd   *os.File
	good bool

	compressor Compressor
	chunkLen   int32
	totalLen   int64
	offsets    []int64

	checksum           ChecksumAlgorithm
	verifyOnCompressed bool
	checksumEnabled    bool

	// in-memory window over [windowOffset, windowOffset+len(window))
	// in uncompressed space.
	window       []byte
	windowOffset int64

	fileOffset int64
	eof        bool

	dataPath string
}

// OpenCompressed reads the -CompressionInfo.db header and opens the
// companion -Data.db for pread-style access. If the compression info
// file is absent or names an unrecognized compressor, Good() reports
// false and the SSTable using it should be skipped (spec §4.3, §7).
func OpenCompressed(dataPath, compressionInfoPath string, checksum ChecksumAlgorithm, verifyOnCompressed bool) *CompressedSource {
	cs := &CompressedSource{
		checksum:           checksum,
		verifyOnCompressed: verifyOnCompressed,
		checksumEnabled:    true,
		dataPath:           dataPath,
	}

	info := OpenUncompressed(compressionInfoPath)
	defer info.Close()
	if !info.Good() {
		return cs
	}
	r := NewReader(info)

	switch r.ReadString() {
	case "SnappyCompressor":
		cs.compressor = CompressorSnappy
	case "LZ4Compressor":
		cs.compressor = CompressorLZ4
	case "DeflateCompressor":
		cs.compressor = CompressorDeflate
	default:
		return cs
	}

	paramCount := r.ReadInt32()
	for i := int32(0); i < paramCount; i++ {
		r.ReadString()
		r.ReadString()
	}
	cs.chunkLen = r.ReadInt32()
	cs.totalLen = r.ReadInt64()

	offsetCount := r.ReadInt32()
	cs.offsets = make([]int64, offsetCount)
	for i := range cs.offsets {
		cs.offsets[i] = r.ReadInt64()
	}

	fd, err := os.Open(dataPath)
	if err != nil {
		return cs
	}
	cs.fd = fd
	cs.good = true
	return cs
}

// DisableChecksum turns off per-chunk checksum verification, mirroring
// the CLI's -C flag (CompressedBuffer::enableChecksum(false) upstream).
func (c *CompressedSource) DisableChecksum() { c.checksumEnabled = false }

func (c *CompressedSource) Good() bool { return c.good }

func (c *CompressedSource) Close() error {
	if c.fd == nil {
		return nil
	}
	return c.fd.Close()
}

func (c *CompressedSource) IsEOF() bool { return c.eof }

func (c *CompressedSource) Seek(pos int64) { c.fileOffset = pos; c.eof = false }

func (c *CompressedSource) SkipBytes(n int64) { c.fileOffset += n }

// ReadBytes returns the next n uncompressed bytes starting at the
// current file offset, refilling the chunk window from disk as needed.
// Invariant 4/5 of spec §3: exactly the requested uncompressed range,
// or EOF; a checksum mismatch is fatal and panics with
// ErrChecksumMismatch. Nothing recovers that panic, so the process
// exits non-zero.
func (c *CompressedSource) ReadBytes(n int) []byte {
	lastByteRequired := c.fileOffset + int64(n)
	if lastByteRequired > c.totalLen {
		c.eof = true
		return nil
	}

	lastByteInBuffer := c.windowOffset + int64(len(c.window))
	if c.fileOffset < c.windowOffset || lastByteRequired > lastByteInBuffer {
		c.refill(lastByteRequired, lastByteInBuffer)
	}

	start := c.fileOffset - c.windowOffset
	out := c.window[start : start+int64(n)]
	c.fileOffset += int64(n)
	return out
}

func (c *CompressedSource) refill(lastByteRequired, lastByteInBuffer int64) {
	chunkLen := int64(c.chunkLen)
	lastChunk := (lastByteRequired + chunkLen - 1) / chunkLen

	firstChunk := c.fileOffset / chunkLen
	var usefulBytes int64
	if c.fileOffset >= c.windowOffset && c.fileOffset <= lastByteInBuffer {
		firstChunk = lastByteInBuffer / chunkLen
		usefulBytes = lastByteInBuffer - c.fileOffset
	}

	minLength := (lastChunk-firstChunk)*chunkLen + usefulBytes
	newWindow := make([]byte, minLength)
	if usefulBytes > 0 {
		uselessBytes := int64(len(c.window)) - usefulBytes
		copy(newWindow, c.window[uselessBytes:uselessBytes+usefulBytes])
	}
	c.window = newWindow
	c.windowOffset = firstChunk*chunkLen - usefulBytes

	startOfRead := c.offsets[firstChunk]
	var endOfRead int64
	if int(lastChunk) < len(c.offsets) {
		endOfRead = c.offsets[lastChunk]
	} else {
		fi, err := c.fd.Stat()
		if err != nil {
			c.eof = true
			return
		}
		endOfRead = fi.Size()
	}

	readLen := endOfRead - startOfRead
	readBuf := make([]byte, readLen)
	if _, err := c.fd.ReadAt(readBuf, startOfRead); err != nil {
		c.eof = true
		return
	}

	for i := firstChunk; i < lastChunk; i++ {
		startOfThisRead := c.offsets[i]
		var endOfThisRead int64
		if i+1 == lastChunk {
			endOfThisRead = endOfRead
		} else {
			endOfThisRead = c.offsets[i+1]
		}
		chunkSize := int(endOfThisRead - startOfThisRead - 4)

		bufferReadPos := (i-firstChunk)*chunkLen + usefulBytes
		readChunk := readBuf[startOfThisRead-startOfRead:]
		body := readChunk[:chunkSize]
		checksumBytes := readChunk[chunkSize : chunkSize+4]

		if c.verifyOnCompressed {
			c.verifyChecksum(body, checksumBytes, startOfThisRead, endOfThisRead)
		}

		writeChunk := c.window[bufferReadPos:]
		uncompressedSize := chunkLen
		if remaining := c.totalLen - (c.windowOffset + bufferReadPos); remaining < uncompressedSize {
			uncompressedSize = remaining
		}
		decoded := c.decompress(body, writeChunk, int(uncompressedSize))

		if !c.verifyOnCompressed {
			c.verifyChecksum(decoded, checksumBytes, startOfThisRead, endOfThisRead)
		}
	}
}

func (c *CompressedSource) decompress(body, dst []byte, uncompressedSize int) []byte {
	switch c.compressor {
	case CompressorSnappy:
		out, err := snappy.Decode(dst[:uncompressedSize], body)
		if err != nil {
			c.eof = true
			return dst[:uncompressedSize]
		}
		if len(out) > 0 && &out[0] != &dst[0] {
			copy(dst[:uncompressedSize], out)
		}
		return dst[:uncompressedSize]

	case CompressorLZ4:
		if len(body) < 4 {
			c.eof = true
			return dst[:uncompressedSize]
		}
		// First 4 bytes are the little-endian uncompressed block size;
		// the remainder is an LZ4 block (spec §4.3).
		n, err := lz4.UncompressBlock(body[4:], dst[:uncompressedSize])
		if err != nil || n != uncompressedSize {
			c.eof = true
		}
		return dst[:uncompressedSize]

	case CompressorDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			c.eof = true
			return dst[:uncompressedSize]
		}
		defer zr.Close()
		n, err := io.ReadFull(zr, dst[:uncompressedSize])
		if err != nil && err != io.ErrUnexpectedEOF {
			c.eof = true
		}
		return dst[:n]

	default:
		n := copy(dst[:uncompressedSize], body)
		return dst[:n]
	}
}

func (c *CompressedSource) verifyChecksum(data []byte, checksumBytes []byte, start, end int64) {
	if !c.checksumEnabled {
		return
	}

	var calculated uint32
	if c.checksum == ChecksumAdler32 {
		calculated = adler32.Checksum(data)
	} else {
		calculated = crc32.ChecksumIEEE(data)
	}

	expected := uint32(checksumBytes[0])<<24 | uint32(checksumBytes[1])<<16 | uint32(checksumBytes[2])<<8 | uint32(checksumBytes[3])
	if expected != calculated {
		panic(errors.Wrapf(ErrChecksumMismatch, "%s: %d-%d expected %x got %x", c.dataPath, start, end, expected, calculated))
	}
}

