package blob

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestDocumentKey(t *testing.T) {
	cases := map[string]string{
		"papers/001-attention.md":  "docs/papers/001-attention.md",
		"../../etc/passwd":         "docs/etc/passwd",
		`research\papers\002-x.md`: "docs/research/papers/002-x.md",
	}
	for in, want := range cases {
		if got := DocumentKey(in); got != want {
			t.Errorf("DocumentKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAssetKey(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if got := AssetKey(id, "audio/ogg; codecs=opus"); got != "assets/6ba7b810-9dad-11d1-80b4-00c04fd430c8.ogg" {
		t.Errorf("got %q", got)
	}
	if got := AssetKey(id, "application/x-unknown"); got != "assets/6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("got %q", got)
	}
}

// TestStore_Integration requires a reachable MinIO instance named by
// GLEANER_TEST_MINIO (host:port, minioadmin credentials).
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("GLEANER_TEST_MINIO")
	if endpoint == "" {
		t.Skip("GLEANER_TEST_MINIO not set")
	}
	s, err := New(Config{Endpoint: endpoint, Bucket: "gleaner-test", AccessKey: "minioadmin", SecretKey: "minioadmin", Prefix: "t"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := s.EnsureBucket(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if err := s.PutDocument(ctx, "notes/001.md", []byte("# hi")); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	got, err := s.Get(ctx, DocumentKey("notes/001.md"))
	if err != nil || string(got) != "# hi" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	key, err := s.PutAsset(ctx, []byte("OggS"), "audio/ogg")
	if err != nil {
		t.Fatalf("PutAsset: %v", err)
	}
	if data, err := s.Get(ctx, key); err != nil || string(data) != "OggS" {
		t.Fatalf("Get asset = %q, %v", data, err)
	}
}
