package schema

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threatmetrix/cassandra2kv/internal/buffer"
)

func TestReadColumnFormatKnownClasses(t *testing.T) {
	cases := map[string]ColumnFormat{
		"org.apache.cassandra.db.marshal.UTF8Type":      FormatText,
		"org.apache.cassandra.db.marshal.AsciiType":     FormatText,
		"org.apache.cassandra.db.marshal.LongType":      FormatLong,
		"org.apache.cassandra.db.marshal.Int32Type":     FormatInt32,
		"org.apache.cassandra.db.marshal.BoolType":      FormatBool,
		"org.apache.cassandra.db.marshal.FloatType":     FormatFloat,
		"org.apache.cassandra.db.marshal.TimestampType": FormatTimestamp,
		"org.apache.cassandra.db.marshal.UUIDType":      FormatUUID,
		"org.apache.cassandra.db.marshal.TimeUUIDType":  FormatUUID,
		"org.apache.cassandra.db.marshal.NoSuchType":    FormatUnknown,
	}
	for name, want := range cases {
		require.Equal(t, want, ReadColumnFormat(name), name)
	}
}

func TestReadColumnFormatEmptyTypeMapsToFloat(t *testing.T) {
	// Preserved quirk: EmptyType decodes as FLOAT, not a zero-size type.
	require.Equal(t, FormatFloat, ReadColumnFormat("org.apache.cassandra.db.marshal.EmptyType"))
}

func TestReadColumnFormatStripsPrefixOnly(t *testing.T) {
	require.Equal(t, FormatLong, ReadColumnFormat("org.apache.cassandra.db.marshal.LongType"))
	require.Equal(t, FormatUnknown, ReadColumnFormat("LongType"))
}

func newTestReader(t *testing.T, data []byte) *buffer.Reader {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "schema-test-*")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	src := buffer.OpenUncompressed(f.Name())
	require.True(t, src.Good())
	return buffer.NewReader(src)
}

func TestGetColumnSizeFixedWidths(t *testing.T) {
	r := newTestReader(t, nil)
	require.Equal(t, 8, GetColumnSize(FormatLong, r))
	require.Equal(t, 8, GetColumnSize(FormatTimestamp, r))
	require.Equal(t, 4, GetColumnSize(FormatInt32, r))
	require.Equal(t, 4, GetColumnSize(FormatFloat, r))
	require.Equal(t, 1, GetColumnSize(FormatBool, r))
	require.Equal(t, 16, GetColumnSize(FormatUUID, r))
	require.Equal(t, 0, GetColumnSize(FormatEmpty, r))
}

func TestGetColumnSizeTextReadsLengthVint(t *testing.T) {
	r := newTestReader(t, []byte{0x05})
	require.Equal(t, 5, GetColumnSize(FormatText, r))
}

func TestParseReadsColumnLists(t *testing.T) {
	var data []byte
	data = append(data, 0x0a)                                        // minTimestamp
	data = append(data, 0x00)                                        // minLocalDeletionTime
	data = append(data, 0x03)                                        // minTTL
	data = append(data, 0x28)                                        // key format name length
	data = append(data, []byte("org.apache.cassandra.db.marshal.UTF8Type")...) // key format name
	data = append(data, 0x00)                                        // clustering column count = 0
	data = append(data, 0x01)                                        // static column count = 1
	data = append(data, 0x03)                                        // static[0] name length
	data = append(data, []byte("foo")...)                            // static[0] name
	data = append(data, 0x28)                                        // static[0] type length
	data = append(data, []byte("org.apache.cassandra.db.marshal.LongType")...) // static[0] type
	data = append(data, 0x00)                                        // regular column count = 0

	r := newTestReader(t, data)
	table := Parse(r)
	require.Equal(t, int64(10), table.MinTimestamp)
	require.Equal(t, int64(3), table.MinTTL)
	require.Equal(t, FormatText, table.KeyFormat)
	require.Empty(t, table.Clustering)
	require.Len(t, table.Static, 1)
	require.Equal(t, "foo", table.Static[0].Name)
	require.Equal(t, FormatLong, table.Static[0].Format)
	require.Empty(t, table.Regular)
}
