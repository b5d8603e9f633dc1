package delta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltashare/internal/domain"
)

const sampleLog = `{"protocol":{"minReaderVersion":1,"minWriterVersion":2}}
{"metaData":{"id":"m-1","format":{"provider":"parquet"},"schemaString":"{\"type\":\"struct\",\"fields\":[]}","partitionColumns":["region"]}}
{"add":{"path":"part-0.parquet","partitionValues":{"region":"us"},"size":100,"modificationTime":1700000000000,"dataChange":true}}
{"add":{"path":"part-1.parquet","partitionValues":{"region":"eu"},"size":200,"modificationTime":1700000000000,"dataChange":true}}
`

func TestReadLog(t *testing.T) {
	snap, err := ReadLog(strings.NewReader(sampleLog), 3, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, 2, snap.Protocol.MinWriterVersion)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, []string{"region"}, snap.Metadata.PartitionColumns)
	require.Len(t, snap.Files, 2)
	assert.Equal(t, "part-0.parquet", snap.Files[0].Path)
}

func TestReadLogRemoveExcludesAddRegardlessOfOrder(t *testing.T) {
	log := `{"remove":{"path":"part-0.parquet","dataChange":true}}
{"add":{"path":"part-0.parquet","partitionValues":{},"size":100,"modificationTime":0,"dataChange":true}}
{"add":{"path":"part-1.parquet","partitionValues":{},"size":200,"modificationTime":0,"dataChange":true}}
`
	snap, err := ReadLog(strings.NewReader(log), 0, nil)
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "part-1.parquet", snap.Files[0].Path)
}

func TestReadLogFirstMetadataWins(t *testing.T) {
	log := `{"metaData":{"id":"first","format":{"provider":"parquet"},"schemaString":"s1","partitionColumns":[]}}
{"metaData":{"id":"second","format":{"provider":"parquet"},"schemaString":"s2","partitionColumns":[]}}
`
	snap, err := ReadLog(strings.NewReader(log), 0, nil)
	require.NoError(t, err)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "first", snap.Metadata.ID)
}

func TestReadLogSkipsMalformedLines(t *testing.T) {
	log := `not json at all
{"add":{"path":"part-0.parquet","partitionValues":{},"size":100,"modificationTime":0,"dataChange":true}}
`
	snap, err := ReadLog(strings.NewReader(log), 0, nil)
	require.NoError(t, err)
	assert.Len(t, snap.Files, 1)
}

func TestReadLogAllMalformedIsDecodeError(t *testing.T) {
	log := "garbage\nmore garbage\n"
	_, err := ReadLog(strings.NewReader(log), 0, nil)
	require.Error(t, err)
	var decodeErr *domain.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestReadLogDefaultsProtocol(t *testing.T) {
	log := `{"add":{"path":"p.parquet","partitionValues":{},"size":1,"modificationTime":0,"dataChange":true}}
`
	snap, err := ReadLog(strings.NewReader(log), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMinReaderVersion, snap.Protocol.MinReaderVersion)
	assert.Equal(t, DefaultMinWriterVersion, snap.Protocol.MinWriterVersion)
}

func TestSchemaStringUnavailableWithoutMetadata(t *testing.T) {
	snap := &Snapshot{Version: 5}
	_, err := snap.SchemaString()
	var schemaErr *domain.SchemaUnavailableError
	require.ErrorAs(t, err, &schemaErr)
}

func TestVersionFileName(t *testing.T) {
	assert.Equal(t, "00000000000000000000.json", VersionFileName(0))
	assert.Equal(t, "00000000000000000042.json", VersionFileName(42))
}

func TestParseVersionFileName(t *testing.T) {
	v, ok := ParseVersionFileName("00000000000000000007.json")
	require.True(t, ok)
	assert.Equal(t, int64(7), v)

	_, ok = ParseVersionFileName("_last_checkpoint")
	assert.False(t, ok)
	_, ok = ParseVersionFileName("7.json")
	assert.False(t, ok)
	_, ok = ParseVersionFileName("00000000000000000007.checkpoint.parquet")
	assert.False(t, ok)
}

func TestParseLastCheckpoint(t *testing.T) {
	v, err := ParseLastCheckpoint([]byte(`{"version":12,"size":3}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	_, err = ParseLastCheckpoint([]byte("nope"))
	assert.Error(t, err)
}

func TestLatestVersionFromNames(t *testing.T) {
	names := []string{
		"00000000000000000000.json",
		"00000000000000000002.json",
		"00000000000000000001.json",
		"_last_checkpoint",
	}
	v, ok := LatestVersionFromNames(names)
	require.True(t, ok)
	assert.Equal(t, int64(2), v)

	_, ok = LatestVersionFromNames([]string{"readme.txt"})
	assert.False(t, ok)
}
