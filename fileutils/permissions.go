package fileutils

import (
	"fmt"
	"os"
)

// Returns nil if dirPath is a directory and is writable.
func VerifyWritable(dirPath string) error {
	fil, err := os.CreateTemp(dirPath, ".probe-*")
	if err != nil {
		return err
	}
	err = fil.Close()
	if err != nil {
		return err
	}
	return os.Remove(fil.Name())
}

// EnsureWritableDir creates dirPath if needed and verifies it is a writable
// directory.
func EnsureWritableDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(dirPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dirPath)
	}
	return VerifyWritable(dirPath)
}
