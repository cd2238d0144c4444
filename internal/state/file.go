package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// FileStore keeps the blob in a JSON file, replaced atomically on every save.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	logger.Info("file-state-store-initialized", zap.String("path", path))
	return &FileStore{path: path, logger: logger}
}

// Load reads the blob. A missing file yields an empty blob.
func (f *FileStore) Load(_ context.Context) (*Blob, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Info("state-file-missing-starting-empty", zap.String("path", f.path))
		return NewBlob(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	b, err := Decode(data)
	if err != nil {
		return nil, err
	}

	f.logger.Info("state-loaded",
		zap.String("path", f.path),
		zap.Int("open-trades", len(b.OpenTrades)),
		zap.Int("history", len(b.TradeHistory)))

	return b, nil
}

// Save writes the blob to a temp file in the same directory and renames it
// over the previous state.
func (f *FileStore) Save(_ context.Context, b *Blob) error {
	start := time.Now()
	defer func() { SaveDuration.Observe(time.Since(start).Seconds()) }()

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		SavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("encode state: %w", err)
	}

	err = writeAtomic(f.path, data)
	if err != nil {
		SavesTotal.WithLabelValues("error").Inc()
		return err
	}

	SavesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close is a no-op for file storage.
func (f *FileStore) Close() error {
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
