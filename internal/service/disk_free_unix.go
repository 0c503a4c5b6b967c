//go:build !windows

package service

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func diskSpace(path string) (DiskUsage, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(fs.Bsize)
	return DiskUsage{
		Free:  int64(uint64(fs.Bavail) * bsize),
		Total: int64(uint64(fs.Blocks) * bsize),
	}, nil
}
