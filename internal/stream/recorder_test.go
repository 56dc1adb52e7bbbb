package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_NothingTouched(t *testing.T) {
	t.Parallel()

	r, err := NewRecorder(bytes.NewReader([]byte("abcdef")))
	require.NoError(t, err)
	assert.Equal(t, int64(6), r.Size())

	_, _, ok := r.Range()
	assert.False(t, ok)

	region, err := r.Region()
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestRecorder_TracksReadAtAndSeek(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdefghij")
	r, err := NewRecorder(seekOnly{bytes.NewReader(data)})
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = r.ReadAt(buf, 10)
	require.NoError(t, err)
	lo, hi, ok := r.Range()
	require.True(t, ok)
	assert.Equal(t, int64(10), lo)
	assert.Equal(t, int64(13), hi)

	_, err = r.Seek(6, io.SeekStart)
	require.NoError(t, err)
	lo, hi, _ = r.Range()
	assert.Equal(t, int64(6), lo)
	assert.Equal(t, int64(13), hi)

	// Plain reads are not recorded.
	_, err = io.ReadFull(r, make([]byte, 10))
	require.NoError(t, err)
	lo, hi, _ = r.Range()
	assert.Equal(t, int64(6), lo)
	assert.Equal(t, int64(13), hi)

	region, err := r.Region()
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, int64(6), region.Min)
	assert.Equal(t, int64(13), region.Max)
	assert.Equal(t, data[6:13], region.Content)
}

func TestRecorder_SeekEndRecordsSize(t *testing.T) {
	t.Parallel()

	r, err := NewRecorder(bytes.NewReader([]byte("abcdef")))
	require.NoError(t, err)

	pos, err := r.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	region, err := r.Region()
	require.NoError(t, err)
	assert.Equal(t, int64(4), region.Min)
	assert.Equal(t, int64(4), region.Max)
	assert.Empty(t, region.Content)
}

func TestRecorder_ZipReaderTouchesDirectoryOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	payload := bytes.Repeat([]byte("payload "), 4096)
	for _, name := range []string{"a/one.bin", "a/two.bin"} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	archive := buf.Bytes()

	r, err := NewRecorder(bytes.NewReader(archive))
	require.NoError(t, err)
	zr, err := zip.NewReader(r, r.Size())
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	region, err := r.Region()
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, int64(len(archive)), region.Max)
	// The format reader scans the trailing KiB for the end record; the
	// central directory of two entries sits inside it.
	assert.Equal(t, int64(len(archive)-1024), region.Min)
	assert.Equal(t, archive[region.Min:], region.Content)

	// The cached region alone is enough to reparse the directory.
	s, err := NewSpliced(bytes.NewReader(make([]byte, len(archive))), region.Min, region.Content, int64(len(archive)))
	require.NoError(t, err)
	zr2, err := zip.NewReader(s, s.Size())
	require.NoError(t, err)
	require.Len(t, zr2.File, 2)
	assert.Equal(t, "a/one.bin", zr2.File[0].Name)
	assert.Equal(t, uint64(len(payload)), zr2.File[1].UncompressedSize64)
}

func TestReaderAt(t *testing.T) {
	t.Parallel()

	br := bytes.NewReader([]byte("abcdef"))
	assert.Equal(t, io.ReaderAt(br), ReaderAt(br))

	ra := ReaderAt(seekOnly{bytes.NewReader([]byte("abcdef"))})
	buf := make([]byte, 4)
	n, err := ra.ReadAt(buf, 4)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ef", string(buf[:n]))

	n, err = ra.ReadAt(buf[:3], 1)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(buf[:n]))
}
