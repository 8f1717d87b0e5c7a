package chunkstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorvault/upload-gateway/internal/uploadid"
)

func newChunk(t *testing.T) TemporaryChunk {
	t.Helper()

	id, err := uploadid.New()
	require.NoError(t, err)

	return New(t.TempDir(), id)
}

func TestBytesUploadedIsZeroForMissingChunk(t *testing.T) {
	c := newChunk(t)

	n, err := c.BytesUploaded()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestAppendCreatesAndGrowsChunk(t *testing.T) {
	c := newChunk(t)

	n, err := c.Append(strings.NewReader("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = c.Append(strings.NewReader(" world"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	got, err := c.BytesUploaded()
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)
}

func TestAppendRejectsStaleOffset(t *testing.T) {
	c := newChunk(t)

	_, err := c.Append(strings.NewReader("hello"), 0)
	require.NoError(t, err)

	_, err = c.Append(strings.NewReader("world"), 0)
	assert.ErrorIs(t, err, ErrOffsetMismatch)
}

func TestDeleteIsIdempotent(t *testing.T) {
	c := newChunk(t)

	_, err := c.Append(strings.NewReader("hello"), 0)
	require.NoError(t, err)

	require.NoError(t, c.Delete())
	require.NoError(t, c.Delete())

	n, err := c.BytesUploaded()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOpenReadsAppendedContent(t *testing.T) {
	c := newChunk(t)

	_, err := c.Append(strings.NewReader("hello world"), 0)
	require.NoError(t, err)

	f, err := c.Open()
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 11)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))
}
