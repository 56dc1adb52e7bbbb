package tree

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullPaths(n *Node) []string {
	var out []string
	for f := range n.Files() {
		out = append(out, f.FullPath)
	}
	return out
}

func TestBuilder_SingleTopDirectory(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add([]string{"test_zip", "test1.txt"}, Attrs{Size: 12, MimeType: "text/plain"})
	tr := b.Tree("ignored")

	assert.False(t, tr.Synthetic)
	assert.Equal(t, "test_zip", tr.Root.Key)
	require.Len(t, tr.Root.Children(), 1)
	f := tr.Root.Children()[0]
	assert.Equal(t, "test1.txt", f.Key)
	assert.Equal(t, "test_zip/test1.txt", f.FullPath)
	assert.Equal(t, uint64(12), f.Size)
	assert.Equal(t, "test_zip/test1.txt", tr.ArchivePath(f))
	assert.Equal(t, 1, b.Count())
}

func TestBuilder_SynthesizesRoot(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add([]string{"a.txt"}, Attrs{})
	b.Add([]string{"dir", "b.txt"}, Attrs{})
	tr := b.Tree("bundle")

	assert.True(t, tr.Synthetic)
	assert.Equal(t, "bundle", tr.Root.Key)
	assert.Equal(t, []string{"bundle/a.txt", "bundle/dir/b.txt"}, fullPaths(tr.Root))

	n, err := tr.Locate("bundle/dir/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "dir/b.txt", tr.ArchivePath(n))
	assert.Equal(t, "", tr.ArchivePath(tr.Root))
}

func TestBuilder_SingleTopFileIsWrapped(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add([]string{"only.txt"}, Attrs{})
	tr := b.Tree("x")
	assert.True(t, tr.Synthetic)
	assert.Equal(t, []string{"x/only.txt"}, fullPaths(tr.Root))
}

func TestBuilder_Empty(t *testing.T) {
	t.Parallel()

	tr := NewBuilder().Tree("empty")
	assert.True(t, tr.Synthetic)
	assert.True(t, tr.Root.IsDir())
	assert.Empty(t, tr.Root.Children())
}

func TestBuilder_InsertionOrderAndReplace(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add([]string{"r", "z.txt"}, Attrs{Size: 1})
	b.Add([]string{"r", "sub", "m.txt"}, Attrs{})
	b.Add([]string{"r", "a.txt"}, Attrs{})
	b.Add([]string{"r", "z.txt"}, Attrs{Size: 2})
	tr := b.Tree("r")

	assert.Equal(t, []string{"r/z.txt", "r/sub/m.txt", "r/a.txt"}, fullPaths(tr.Root))
	z, err := tr.Locate("r/z.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), z.Size)
}

func TestLocate(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add([]string{"root", "d", "f.txt"}, Attrs{})
	tr := b.Tree("root")

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"root/d/f.txt", "root/d/f.txt", false},
		{"/root//./d/", "root/d", false},
		{"root", "root", false},
		{"", "root", false},
		{"root/d/missing", "", true},
		{"other/d", "", true},
		{"root/d/../d/f.txt", "", true},
		{"root/d/f.txt/deeper", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			n, err := tr.Locate(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.FullPath)
		})
	}
}

func TestFilesEarlyStop(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	for _, name := range []string{"a", "b", "c"} {
		b.Add([]string{"r", name}, Attrs{})
	}
	tr := b.Tree("r")

	var seen []string
	for f := range tr.Root.Files() {
		seen = append(seen, f.Key)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestRelative(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add([]string{"r", "d", "e", "f.txt"}, Attrs{})
	tr := b.Tree("r")
	d, err := tr.Locate("r/d")
	require.NoError(t, err)
	f, err := tr.Locate("r/d/e/f.txt")
	require.NoError(t, err)

	assert.Equal(t, "e/f.txt", Relative(d, f))
	assert.Equal(t, "", Relative(d, d))
}

func TestNodeJSON(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add([]string{"test_zip", "test1.txt"}, Attrs{Size: 12, CompressedSize: 14, MimeType: "text/plain", CRC32: 2962613731})
	b.Add([]string{"test_zip", "empty", ".keep"}, Attrs{})
	tr := b.Tree("test_zip")

	data, err := json.Marshal(tr.Root)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"key": "test_zip", "type": "directory", "full_key": "test_zip",
		"entries": [
			{"key": "test1.txt", "type": "file", "full_key": "test_zip/test1.txt",
			 "size": 12, "compressed_size": 14, "mime_type": "text/plain", "crc32": 2962613731},
			{"key": "empty", "type": "directory", "full_key": "test_zip/empty",
			 "entries": [
				{"key": ".keep", "type": "file", "full_key": "test_zip/empty/.keep",
				 "size": 0, "compressed_size": 0, "mime_type": "", "crc32": 0}
			 ]}
		]
	}`, string(data))

	var back Node
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, fullPaths(tr.Root), fullPaths(&back))
	child, ok := back.Child("test1.txt")
	require.True(t, ok)
	assert.Equal(t, uint32(2962613731), child.CRC32)

	data2, err := json.Marshal(&back)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(data2))
}

func TestNodeJSON_Invalid(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"key":"a","type":"link","full_key":"a"}`,
		`{"type":"file","full_key":"a"}`,
		`{"key":"d","type":"directory","full_key":"d","entries":[null]}`,
		`{"key":"d","type":"directory","full_key":"d","entries":[
			{"key":"x","type":"file","full_key":"d/x"},
			{"key":"x","type":"file","full_key":"d/x"}]}`,
	}
	for _, c := range cases {
		var n Node
		assert.Error(t, json.Unmarshal([]byte(c), &n), c)
	}
}

func TestEmptyDirectoryJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewDirectory("d", "d"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"d","type":"directory","full_key":"d","entries":[]}`, string(data))
	assert.True(t, slices.Equal([]string(nil), fullPaths(NewDirectory("d", "d"))))
}
