package kv

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zstd"
)

// FileStore keeps every entry in its own zstd compressed file, so cached
// state survives process restarts. File names are derived from the key hash.
type FileStore struct {
	dir     string
	logger  log.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

type fileEnvelope struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// NewFileStore creates dir if needed. Failing to provision it returns a *model.CacheError.
func NewFileStore(dir string, logger log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &model.CacheError{Err: fmt.Errorf("create cache dir: %w", err)}
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, &model.CacheError{Err: fmt.Errorf("create zstd writer: %w", err)}
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, &model.CacheError{Err: fmt.Errorf("create zstd reader: %w", err)}
	}

	return &FileStore{
		dir:     dir,
		logger:  logger,
		encoder: encoder,
		decoder: decoder,
		now:     time.Now,
	}, nil
}

// Get returns a miss for expired and unreadable entries and removes them.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	pth := s.path(key)
	compressed, err := os.ReadFile(pth)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var envelope fileEnvelope
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err == nil {
		err = json.Unmarshal(data, &envelope)
	}
	if err != nil {
		s.logger.Warnf("Dropping unreadable cache entry %s: %s", filepath.Base(pth), err)
		s.remove(pth)
		return nil, false, nil
	}

	if (entry{expiresAt: envelope.ExpiresAt}).expired(s.now()) {
		s.remove(pth)
		return nil, false, nil
	}
	return envelope.Value, true, nil
}

// Set writes the entry to a temporary file and renames it into place.
func (s *FileStore) Set(key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(fileEnvelope{
		ExpiresAt: expiry(s.now(), ttl),
		Value:     value,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("create cache entry: %w", err)
	}
	if _, err := tmp.Write(s.encoder.EncodeAll(data, nil)); err != nil {
		_ = tmp.Close()
		s.remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		s.remove(tmp.Name())
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Forget ...
func (s *FileStore) Forget(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".zst")
}

func (s *FileStore) remove(pth string) {
	if err := os.Remove(pth); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warnf("Failed to remove %s: %s", pth, err)
	}
}
