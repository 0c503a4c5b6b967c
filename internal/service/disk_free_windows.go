//go:build windows

package service

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func diskSpace(path string) (DiskUsage, error) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return DiskUsage{}, err
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return DiskUsage{}, fmt.Errorf("get disk free space %s: %w", path, err)
	}
	return DiskUsage{Free: int64(freeBytes), Total: int64(totalBytes)}, nil
}
