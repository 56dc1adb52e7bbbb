package zipfmt

import (
	"errors"

	"github.com/minio/zipindex"
)

// DefaultTail is the initial number of trailing bytes fetched when locating
// the central directory.
const DefaultTail = 64 << 10

// DirectoryTail reports how many bytes from the end of an archive of the
// given size are needed to read its end records and central directory, given
// the archive's last bytes in tail. It returns len(tail) when tail already
// covers them, and a larger value when more must be fetched.
func DirectoryTail(tail []byte, size int64) (int64, error) {
	_, err := zipindex.ReadDir(tail, size, skipEntries)
	if err == nil {
		return int64(len(tail)), nil
	}
	var more zipindex.ErrNeedMoreData
	if errors.As(err, &more) {
		return more.FromEnd, nil
	}
	return 0, err
}

// skipEntries parses every directory record without keeping any.
func skipEntries(*zipindex.File, *zipindex.ZipDirEntry) *zipindex.File {
	return nil
}
