package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/classmate/internal/config"
)

var (
	ErrNotFound   = errors.New("file not found")
	ErrInvalidKey = errors.New("invalid file key")
)

type FileInfo struct {
	Key   string
	Size  int64
	Mtime time.Time
}

type Store interface {
	Type() string
	Save(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context) ([]FileInfo, error)
	Delete(ctx context.Context, key string) error
}

// LocalPather is implemented by stores whose objects already live on the
// local filesystem.
type LocalPather interface {
	LocalPath(key string) (string, error)
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.FileStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("file_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported file store type: %s", cfg.Type)
	}
	var args interface{}
	switch key {
	case "local":
		args = map[string]interface{}{"dir": cfg.Dir}
	case "s3":
		args = cfg.S3
	}
	return factory(args)
}

// CleanKey strips any directory part and rejects names that cannot be
// stored as a single object.
func CleanKey(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	key := strings.TrimSpace(filepath.Base(name))
	if key == "" || key == "." || key == ".." || key == "/" {
		return "", ErrInvalidKey
	}
	return key, nil
}

// Materialize returns a local path holding the object. The cleanup func must
// always be called.
func Materialize(ctx context.Context, store Store, key string) (string, func(), error) {
	if lp, ok := store.(LocalPather); ok {
		path, err := lp.LocalPath(key)
		if err != nil {
			return "", func() {}, err
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", func() {}, ErrNotFound
			}
			return "", func() {}, err
		}
		return path, func() {}, nil
	}
	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", func() {}, err
	}
	defer rc.Close()
	tmp, err := os.CreateTemp("", "classmate-*"+filepath.Ext(key))
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return tmp.Name(), cleanup, nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}
