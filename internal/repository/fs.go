package repository

import "github.com/spf13/afero"

// FileSystemRepository is the filesystem used for project configuration
// and release session files.
type FileSystemRepository interface {
	afero.Fs
}

// NewOSFileSystem returns the host filesystem.
func NewOSFileSystem() FileSystemRepository {
	return afero.NewOsFs()
}
