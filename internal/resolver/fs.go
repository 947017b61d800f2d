package resolver

import (
	"io/fs"
	"os"
)

// FileSystem is the narrow set of file operations the resolver needs.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	// Mkdir creates a single directory; the parent must exist.
	Mkdir(name string) error
	// CreateFile creates name with data and fails if it already exists.
	CreateFile(name string, data []byte) error
}

// TextIndex enumerates files by extension under a root directory.
type TextIndex interface {
	FilesWithExt(root, ext string) ([]string, error)
}

// OSFileSystem implements FileSystem on top of the host OS.
type OSFileSystem struct{}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OSFileSystem) Mkdir(name string) error {
	return os.Mkdir(name, 0o755)
}

func (OSFileSystem) CreateFile(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
