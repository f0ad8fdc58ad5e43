package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tempPrefix = ".gleaner-tmp-"

// FS is a Provider over a local directory. Every operation goes through an
// os.Root, so neither ".." nor a symlink can reach outside the vault.
type FS struct {
	dir  string
	root *os.Root
}

// NewFS opens the vault at dir, which must already exist.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve vault: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: vault %s is not a directory", abs)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open vault: %w", err)
	}
	return &FS{dir: abs, root: root}, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.dir }

// Close releases the vault handle.
func (f *FS) Close() error { return f.root.Close() }

func (f *FS) List(dir string) ([]FileInfo, error) {
	base, err := vaultPath(dir)
	if err != nil {
		return nil, err
	}
	fsys := f.root.FS()
	var out []FileInfo
	err = fs.WalkDir(fsys, filepath.ToSlash(base), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// .git, .obsidian and friends
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !IsDocument(d.Name()) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, FileInfo{Path: p, Checksum: Checksum(data), UpdatedAt: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %q: %w", dir, err)
	}
	return out, nil
}

func (f *FS) Read(path string) ([]byte, error) {
	p, err := vaultPath(path)
	if err != nil {
		return nil, err
	}
	data, err := f.root.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces path atomically, creating parent folders.
func (f *FS) Write(path string, content []byte) error {
	p, err := vaultPath(path)
	if err != nil {
		return err
	}
	if p == "." {
		return fmt.Errorf("storage: write to vault root: %w", ErrOutsideVault)
	}
	if err := f.root.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for %s: %w", path, err)
	}
	if err := replaceFile(f.root, p, content); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

func (f *FS) MkdirAll(dir string) error {
	p, err := vaultPath(dir)
	if err != nil {
		return err
	}
	if err := f.root.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	return nil
}

func (f *FS) Remove(path string) error {
	p, err := vaultPath(path)
	if err != nil {
		return err
	}
	if err := f.root.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

// IsDocument reports whether name is a rendered document rather than a
// temp file or other vault clutter.
func IsDocument(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".md") && !strings.HasPrefix(base, ".")
}

// vaultPath turns a slash-separated vault path into a clean relative OS path.
func vaultPath(rel string) (string, error) {
	if rel == "" {
		return ".", nil
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("storage: %q: %w", rel, ErrOutsideVault)
	}
	p := filepath.Clean(filepath.FromSlash(rel))
	if p == ".." || strings.HasPrefix(p, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: %q: %w", rel, ErrOutsideVault)
	}
	return p, nil
}

// fileOps is the subset of os.Root that an atomic replace needs.
type fileOps interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Rename(oldname, newname string) error
	Remove(name string) error
}

type hostOps struct{}

func (hostOps) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}
func (hostOps) Rename(oldname, newname string) error { return os.Rename(oldname, newname) }
func (hostOps) Remove(name string) error             { return os.Remove(name) }

// WriteFileAtomic replaces the file at an absolute path so readers see the
// old content or the new, never a torn write.
func WriteFileAtomic(path string, content []byte) error {
	if err := replaceFile(hostOps{}, path, content); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

func replaceFile(ops fileOps, name string, content []byte) error {
	tmpName := filepath.Join(filepath.Dir(name), tempPrefix+uuid.NewString())
	tmp, err := ops.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			_ = tmp.Close()
			_ = ops.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := ops.Rename(tmpName, name); err != nil {
		return err
	}
	done = true
	return nil
}

// Checksum is the hex SHA-256 of data, used to detect changed documents.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
