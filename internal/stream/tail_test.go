package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTail_ServesBufferedEnd(t *testing.T) {
	t.Parallel()

	for name, wrap := range map[string]func(*bytes.Reader) io.ReadSeeker{
		"readerat": func(r *bytes.Reader) io.ReadSeeker { return r },
		"seekonly": func(r *bytes.Reader) io.ReadSeeker { return seekOnly{r} },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			logical, _, _ := fixture(100, 0, 0)
			backing := bytes.Clone(logical)
			tail := NewTail(wrap(bytes.NewReader(backing)), 100)
			require.NoError(t, tail.Fill(30))
			assert.Equal(t, logical[70:], tail.Bytes())

			// Bytes after the fill come from memory.
			for i := 70; i < 100; i++ {
				backing[i] = 0
			}

			tests := []struct {
				off, n int
			}{
				{0, 10},
				{60, 10},
				{65, 10},
				{70, 30},
				{95, 5},
			}
			for _, tt := range tests {
				p := make([]byte, tt.n)
				n, err := tail.ReadAt(p, int64(tt.off))
				require.NoError(t, err, "off %d", tt.off)
				assert.Equal(t, tt.n, n)
				assert.Equal(t, logical[tt.off:tt.off+tt.n], p, "off %d", tt.off)
			}
		})
	}
}

func TestTail_ReadAtPastEnd(t *testing.T) {
	t.Parallel()

	tail := NewTail(bytes.NewReader([]byte("0123456789")), 10)
	require.NoError(t, tail.Fill(4))

	p := make([]byte, 6)
	n, err := tail.ReadAt(p, 7)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []byte("789"), p[:n])

	n, err = tail.ReadAt(p, 10)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = tail.ReadAt(p, -1)
	assert.Error(t, err)
}

func TestTail_Fill(t *testing.T) {
	t.Parallel()

	tail := NewTail(bytes.NewReader([]byte("0123456789")), 10)
	assert.Empty(t, tail.Bytes())

	require.NoError(t, tail.Fill(3))
	assert.Equal(t, []byte("789"), tail.Bytes())

	// Shrinking keeps the larger buffer.
	require.NoError(t, tail.Fill(1))
	assert.Equal(t, []byte("789"), tail.Bytes())

	require.NoError(t, tail.Fill(100))
	assert.Equal(t, []byte("0123456789"), tail.Bytes())

	short := NewTail(bytes.NewReader([]byte("abc")), 10)
	assert.Error(t, short.Fill(5))
}

func TestTail_SeekAndRead(t *testing.T) {
	t.Parallel()

	tail := NewTail(bytes.NewReader([]byte("0123456789")), 10)
	require.NoError(t, tail.Fill(5))

	pos, err := tail.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	p := make([]byte, 3)
	_, err = io.ReadFull(tail, p)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), p)
}

func TestTail_UnderRecorder(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdefghij")
	tail := NewTail(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, tail.Fill(8))

	r, err := NewRecorder(tail)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), r.Size())

	p := make([]byte, 6)
	_, err = r.ReadAt(p, 10)
	require.NoError(t, err)

	region, err := r.Region()
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, int64(10), region.Min)
	assert.Equal(t, int64(16), region.Max)
	assert.Equal(t, []byte("abcdef"), region.Content)
}
