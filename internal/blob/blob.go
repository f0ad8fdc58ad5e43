// Package blob mirrors rendered documents and voice assets to an
// S3-compatible bucket.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/starford/gleaner/internal/apperr"
)

// Config holds the connection settings for the bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// Store writes objects under a fixed key prefix.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the endpoint described by cfg.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: client: %w", err)
	}
	return NewStore(client, cfg.Bucket, cfg.Prefix), nil
}

// NewStore wraps an existing client.
func NewStore(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blob: bucket exists: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("blob: make bucket: %w", err)
	}
	return nil
}

// PutDocument stores a rendered document under docs/<rel>.
func (s *Store) PutDocument(ctx context.Context, rel string, data []byte) error {
	return s.put(ctx, DocumentKey(rel), data, "text/markdown; charset=utf-8")
}

// PutAsset stores a binary attachment under a fresh random key and
// returns that key.
func (s *Store) PutAsset(ctx context.Context, data []byte, contentType string) (string, error) {
	key := AssetKey(uuid.New(), contentType)
	if err := s.put(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Get reads the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, fmt.Errorf("blob: %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errors.New("blob: empty key")
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// DocumentKey maps a vault-relative document path to its object key.
func DocumentKey(rel string) string {
	rel = path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	return path.Join("docs", rel)
}

var extByType = map[string]string{
	"audio/ogg":        ".ogg",
	"application/ogg":  ".ogg",
	"audio/mpeg":       ".mp3",
	"audio/mp4":        ".m4a",
	"audio/wav":        ".wav",
	"audio/webm":       ".webm",
	"application/pdf":  ".pdf",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"text/plain":       ".txt",
	"application/json": ".json",
}

// AssetKey returns assets/<id><ext>, with the extension derived from the
// content type.
func AssetKey(id uuid.UUID, contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return "assets/" + id.String() + extByType[ct]
}
