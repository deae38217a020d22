//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package backend

import "errors"

var ErrInsufficientDiskSpace = errors.New("insufficient disk space")

func checkDiskSpace(path string, requiredBytes int64) error {
	return nil
}
