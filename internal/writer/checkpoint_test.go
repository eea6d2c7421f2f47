package writer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointAppendAndLastKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.log")

	c, err := OpenCheckpoint(path)
	require.NoError(t, err)

	require.NoError(t, c.Append([]byte("row-1")))
	require.NoError(t, c.Append([]byte("row-2")))
	require.NoError(t, c.Append([]byte("row-3")))
	require.NoError(t, c.Close())

	last, err := LastKey(path)
	require.NoError(t, err)
	require.Equal(t, []byte("row-3"), last)
}

func TestCheckpointLastKeyMissingFile(t *testing.T) {
	last, err := LastKey(filepath.Join(t.TempDir(), "does-not-exist.log"))
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestCheckpointClearTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.log")
	c, err := OpenCheckpoint(path)
	require.NoError(t, err)
	require.NoError(t, c.Append([]byte("row-1")))
	require.NoError(t, c.Clear())
	require.NoError(t, c.Close())

	last, err := LastKey(path)
	require.NoError(t, err)
	require.Nil(t, last)
}
