package tree

import (
	"encoding/json"
	"fmt"
)

type dirJSON struct {
	Key     string  `json:"key"`
	Type    string  `json:"type"`
	FullKey string  `json:"full_key"`
	Entries []*Node `json:"entries"`
}

type fileJSON struct {
	Key            string `json:"key"`
	Type           string `json:"type"`
	FullKey        string `json:"full_key"`
	Size           uint64 `json:"size"`
	CompressedSize uint64 `json:"compressed_size"`
	MimeType       string `json:"mime_type"`
	CRC32          uint32 `json:"crc32"`
}

type nodeJSON struct {
	Key            string  `json:"key"`
	Type           string  `json:"type"`
	FullKey        string  `json:"full_key"`
	Size           uint64  `json:"size"`
	CompressedSize uint64  `json:"compressed_size"`
	MimeType       string  `json:"mime_type"`
	CRC32          uint32  `json:"crc32"`
	Entries        []*Node `json:"entries"`
}

// MarshalJSON encodes a directory with its ordered entries, or a file with
// its metadata.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.IsDir() {
		entries := n.children
		if entries == nil {
			entries = []*Node{}
		}
		return json.Marshal(dirJSON{
			Key:     n.Key,
			Type:    Directory.String(),
			FullKey: n.FullPath,
			Entries: entries,
		})
	}
	return json.Marshal(fileJSON{
		Key:            n.Key,
		Type:           File.String(),
		FullKey:        n.FullPath,
		Size:           n.Size,
		CompressedSize: n.CompressedSize,
		MimeType:       n.MimeType,
		CRC32:          n.CRC32,
	})
}

// UnmarshalJSON decodes a node encoded by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var v nodeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Key == "" {
		return fmt.Errorf("tree: node %q has no key", v.FullKey)
	}
	switch v.Type {
	case Directory.String():
		*n = *NewDirectory(v.Key, v.FullKey)
		for _, c := range v.Entries {
			if c == nil {
				return fmt.Errorf("tree: null entry in %q", v.FullKey)
			}
			if _, dup := n.Child(c.Key); dup {
				return fmt.Errorf("tree: duplicate entry %q in %q", c.Key, v.FullKey)
			}
			n.Put(c)
		}
	case File.String():
		*n = *NewFile(v.Key, v.FullKey, Attrs{
			Size:           v.Size,
			CompressedSize: v.CompressedSize,
			MimeType:       v.MimeType,
			CRC32:          v.CRC32,
		})
	default:
		return fmt.Errorf("tree: node %q has unknown type %q", v.FullKey, v.Type)
	}
	return nil
}
