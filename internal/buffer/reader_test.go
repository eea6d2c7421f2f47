package buffer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "buffer-test-*")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestReadUnsignedVintSingleByte(t *testing.T) {
	path := writeTempFile(t, []byte{0x00, 0x42})
	src := OpenUncompressed(path)
	defer src.Close()
	require.True(t, src.Good())

	r := NewReader(src)
	require.Equal(t, uint64(0), r.ReadUnsignedVint())
	require.Equal(t, uint64(0x42), r.ReadUnsignedVint())
}

func TestReadUnsignedVintMultiByte(t *testing.T) {
	// 0x80 -> one leading one-bit, so 1 extra byte; the remaining 7 low
	// bits of the first byte (all zero here) are the high bits of the
	// value, concatenated with the extra byte.
	path := writeTempFile(t, []byte{0x80, 0x01})
	src := OpenUncompressed(path)
	defer src.Close()

	r := NewReader(src)
	require.Equal(t, uint64(1), r.ReadUnsignedVint())
}

func TestReadVintZigZag(t *testing.T) {
	// ReadVint applies (n<<1)^(n>>63) to the unsigned decode, preserved
	// verbatim from the reference regardless of whether it is the
	// conventional zig-zag direction (see DESIGN.md Open Question 1).
	path := writeTempFile(t, []byte{0x02})
	src := OpenUncompressed(path)
	defer src.Close()

	r := NewReader(src)
	n := int64(2)
	want := (n << 1) ^ (n >> 63)
	require.Equal(t, want, r.ReadVint())
}

func TestReadStringRoundTrip(t *testing.T) {
	buf := []byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	path := writeTempFile(t, buf)
	src := OpenUncompressed(path)
	defer src.Close()

	r := NewReader(src)
	require.Equal(t, "hello", r.ReadString())
}

func TestReadDataEOF(t *testing.T) {
	path := writeTempFile(t, []byte{})
	src := OpenUncompressed(path)
	defer src.Close()

	r := NewReader(src)
	_, ok := r.ReadData()
	require.False(t, ok)
	require.True(t, src.IsEOF())
}

func TestOpenUncompressedMissingFile(t *testing.T) {
	src := OpenUncompressed("/nonexistent/path/to/data.db")
	require.False(t, src.Good())
}
