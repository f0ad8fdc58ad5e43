// Package storage holds the document vault and the atomic file writes the
// record store shares with it.
package storage

import (
	"errors"
	"time"
)

// ErrOutsideVault is returned for paths that would resolve outside the vault.
var ErrOutsideVault = errors.New("path outside vault")

// FileInfo describes one rendered document in the vault.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the vault seen by the ingest service, the folder policy and the
// indexer. Paths are vault-relative and slash separated.
type Provider interface {
	List(dir string) ([]FileInfo, error)
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
	MkdirAll(dir string) error
	// Remove deletes a document; a missing file is not an error.
	Remove(path string) error
}
