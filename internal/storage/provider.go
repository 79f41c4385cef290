// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/crosslink/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every document under dir (relative to the
	// vault root), sorted by path.
	List(dir string) ([]models.DocumentMeta, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
}
