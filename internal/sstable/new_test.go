package sstable

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threatmetrix/cassandra2kv/internal/buffer"
)

func newVintReader(t *testing.T, vints []uint64) *buffer.Reader {
	t.Helper()
	var data []byte
	for _, v := range vints {
		require.Less(t, v, uint64(0x7f), "test fixtures only use single-byte vints")
		data = append(data, byte(v))
	}
	f, err := os.CreateTemp(t.TempDir(), "new-table-*")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	src := buffer.OpenUncompressed(f.Name())
	require.True(t, src.Good())
	return buffer.NewReader(src)
}

func TestDecodeColumnSubsetAllPresent(t *testing.T) {
	r := newVintReader(t, []uint64{0})
	present := decodeColumnSubset(r, 4)
	require.Equal(t, []bool{true, true, true, true}, present)
}

func TestDecodeColumnSubsetBitmap(t *testing.T) {
	r := newVintReader(t, []uint64{0b0101})
	present := decodeColumnSubset(r, 4)
	require.Equal(t, []bool{true, false, true, false}, present)
}

func TestDecodeColumnSubsetSparsePositiveList(t *testing.T) {
	n := 64
	count := 3
	encoded := uint64(n - count)
	r := newVintReader(t, []uint64{encoded, 0, 5, 10})
	present := decodeColumnSubset(r, n)
	require.Len(t, present, n)
	for i, p := range present {
		switch i {
		case 0, 5, 10:
			require.True(t, p, "index %d should be present", i)
		default:
			require.False(t, p, "index %d should be absent", i)
		}
	}
}

func TestDecodeColumnSubsetSparseNegativeList(t *testing.T) {
	// count >= n/2 selects the "positive=false" branch: the listed
	// indices are the absent ones, everything else defaults to present.
	n := 64
	count := 40
	encoded := uint64(n - count)
	vints := []uint64{encoded}
	listed := map[int]bool{}
	for i := 0; i < count; i++ {
		vints = append(vints, uint64(i))
		listed[i] = true
	}

	r := newVintReader(t, vints)
	present := decodeColumnSubset(r, n)
	require.Len(t, present, n)
	for i, p := range present {
		if listed[i] {
			require.False(t, p, "index %d should be absent", i)
		} else {
			require.True(t, p, "index %d should be present", i)
		}
	}
}
