//go:build linux || darwin || freebsd || netbsd || openbsd

package backend

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

var ErrInsufficientDiskSpace = errors.New("insufficient disk space")

// checkDiskSpace returns ErrInsufficientDiskSpace when the filesystem
// holding path cannot fit requiredBytes. Unknown sizes and stat failures
// are not treated as errors.
func checkDiskSpace(path string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return nil
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	if available < requiredBytes {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientDiskSpace,
			humanize.IBytes(uint64(requiredBytes)), humanize.IBytes(uint64(available)))
	}
	return nil
}
