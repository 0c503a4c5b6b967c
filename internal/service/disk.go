package service

import (
	"fmt"
	"os"
)

// DiskUsage describes the filesystem holding a directory.
type DiskUsage struct {
	Free  int64 `json:"free_bytes"`
	Total int64 `json:"total_bytes"`
}

// DiskSpace reports usage for the filesystem containing dir.
func DiskSpace(dir string) (DiskUsage, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return DiskUsage{}, err
	}
	if !fi.IsDir() {
		return DiskUsage{}, fmt.Errorf("%s is not a directory", dir)
	}
	return diskSpace(dir)
}

// FreeDiskSpace returns the free bytes for dir, or 0 when unknown.
func FreeDiskSpace(dir string) int64 {
	u, err := DiskSpace(dir)
	if err != nil {
		return 0
	}
	return u.Free
}

// CheckWritable verifies that dir exists and accepts new files.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("cache dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
