package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

const manifestName = ".content-types.json"

// FileStore keeps one file per record under <dir>/<namespace>. Content types
// are tracked in a small manifest next to the records.
type FileStore struct {
	mu   sync.Mutex
	root string
	log  *zap.Logger
}

// NewFile creates the namespace directory under dir if it does not exist.
func NewFile(dir, namespace string, logger *zap.Logger) (*FileStore, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expanding store dir %q: %w", dir, err)
	}
	if err := validateKey(namespace); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}

	root := filepath.Join(expanded, namespace)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &FileStore{
		root: root,
		log:  logger.Named("store").With(zap.String("backend", "file"), zap.String("root", root)),
	}, nil
}

func (s *FileStore) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.root, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %q: %w", key, err)
	}
	return data, true, nil
}

func (s *FileStore) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(filepath.Join(s.root, key), value); err != nil {
		return fmt.Errorf("failed to write record %q: %w", key, err)
	}

	manifest, err := s.readManifest()
	if err != nil {
		return err
	}
	manifest[key] = contentType
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.root, manifestName), data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	s.log.Debug("Record stored.", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

// ContentType returns the content type recorded for key, or "" when unknown.
func (s *FileStore) ContentType(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := s.readManifest()
	if err != nil {
		return "", err
	}
	return manifest[key], nil
}

// Root returns the directory records are written to.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readManifest() (map[string]string, error) {
	manifest := map[string]string{}
	data, err := os.ReadFile(filepath.Join(s.root, manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return manifest, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return manifest, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// validateKey rejects keys that could escape the namespace.
func validateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.New("store key must not be empty")
	case strings.ContainsAny(key, `/\`), key == "..", key == ".", key == manifestName:
		return fmt.Errorf("store key %q is not allowed", key)
	}
	return nil
}
