// Package storage reads and writes the markdown files of an export or import
// directory.
package storage

import "time"

// File describes one markdown file under the root.
type File struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// Provider is the interface for markdown file operations. Paths are
// relative to the provider's root.
type Provider interface {
	// List returns every .md file under dir, skipping hidden directories.
	List(dir string) ([]File, error)
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	Delete(path string) error
	Move(oldPath, newPath string) error
}
