package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func openVault(t *testing.T) *FS {
	t.Helper()
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestFS_WriteCreatesFoldersAndReads(t *testing.T) {
	v := openVault(t)
	body := []byte("---\nid: \"001\"\n---\nhello\n")
	if err := v.Write("research/ml/001-hello.md", body); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := v.Read("research/ml/001-hello.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Read = %q", got)
	}
	if err := v.Write("research/ml/001-hello.md", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ := v.Read("research/ml/001-hello.md"); string(got) != "v2" {
		t.Errorf("after overwrite = %q", got)
	}
}

func TestFS_ReadMissingIsNotExist(t *testing.T) {
	v := openVault(t)
	if _, err := v.Read("nope.md"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestFS_ListSkipsHiddenAndNonDocuments(t *testing.T) {
	v := openVault(t)
	for _, p := range []string{"a.md", "links/b.md", ".obsidian/workspace.md", "readme.txt", "links/.draft.md"} {
		if err := v.Write(p, []byte(p)); err != nil {
			t.Fatalf("Write %s: %v", p, err)
		}
	}

	items, err := v.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
		if it.Checksum != Checksum([]byte(it.Path)) {
			t.Errorf("%s: checksum mismatch", it.Path)
		}
	}
	sort.Strings(paths)
	if len(paths) != 2 || paths[0] != "a.md" || paths[1] != "links/b.md" {
		t.Errorf("paths = %v", paths)
	}

	sub, err := v.List("links")
	if err != nil || len(sub) != 1 || sub[0].Path != "links/b.md" {
		t.Errorf("List(links) = %v, %v", sub, err)
	}
}

func TestFS_RemoveIsIdempotent(t *testing.T) {
	v := openVault(t)
	if err := v.Write("notes/001.md", []byte("x")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := v.Remove("notes/001.md"); err != nil {
			t.Fatalf("Remove #%d: %v", i, err)
		}
	}
	if _, err := os.Stat(filepath.Join(v.Root(), "notes", "001.md")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
}

func TestFS_RejectsPathsOutsideVault(t *testing.T) {
	v := openVault(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow", "notes/../../x.md"} {
		if _, err := v.Read(p); !errors.Is(err, ErrOutsideVault) {
			t.Errorf("Read(%q) err = %v", p, err)
		}
		if err := v.Write(p, []byte("x")); !errors.Is(err, ErrOutsideVault) {
			t.Errorf("Write(%q) err = %v", p, err)
		}
		if err := v.MkdirAll(p); !errors.Is(err, ErrOutsideVault) {
			t.Errorf("MkdirAll(%q) err = %v", p, err)
		}
		if err := v.Remove(p); !errors.Is(err, ErrOutsideVault) {
			t.Errorf("Remove(%q) err = %v", p, err)
		}
	}
}

func TestFS_SymlinkCannotEscape(t *testing.T) {
	v := openVault(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.md"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(v.Root(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := v.Read("link/secret.md"); err == nil {
		t.Error("read through symlink escaped the vault")
	}
}

func TestFS_MkdirAllIdempotent(t *testing.T) {
	v := openVault(t)
	for i := 0; i < 2; i++ {
		if err := v.MkdirAll("papers"); err != nil {
			t.Fatalf("MkdirAll #%d: %v", i, err)
		}
	}
	if info, err := os.Stat(filepath.Join(v.Root(), "papers")); err != nil || !info.IsDir() {
		t.Fatalf("papers dir missing: %v", err)
	}
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")
	for _, content := range []string{"[]", `[{"id":"001"}]`} {
		if err := WriteFileAtomic(path, []byte(content)); err != nil {
			t.Fatalf("write %s: %v", content, err)
		}
	}
	if got, _ := os.ReadFile(path); string(got) != `[{"id":"001"}]` {
		t.Errorf("content = %q", got)
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, tempPrefix+"*")); len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	if err := WriteFileAtomic(filepath.Join(t.TempDir(), "nope", "records.json"), []byte("[]")); err == nil {
		t.Error("expected error when parent dir is missing")
	}
}

func TestNewFS_RequiresDirectory(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing dir")
	}
	f := filepath.Join(t.TempDir(), "file")
	_ = os.WriteFile(f, []byte("x"), 0o644)
	if _, err := NewFS(f); err == nil {
		t.Error("expected error when vault is a file")
	}
}

func TestIsDocument(t *testing.T) {
	cases := map[string]bool{
		"001-note.md":      true,
		"notes/002.md":     true,
		".gleaner-tmp-abc": false,
		"notes/.hidden.md": false,
		"notes/readme.txt": false,
	}
	for name, want := range cases {
		if got := IsDocument(name); got != want {
			t.Errorf("IsDocument(%q) = %v", name, got)
		}
	}
}
