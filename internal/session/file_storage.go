package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const runtimeDirName = "bird"

// RuntimeDir returns the per-login directory the CLI keeps its per-visit tier in.
// $XDG_RUNTIME_DIR is removed by the OS when the user's last session ends.
func RuntimeDir() string {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, runtimeDirName)
}

// FileStorage keeps one file per key in a directory only the user can read
type FileStorage struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStorage creates a file tier rooted at dir
func NewFileStorage(dir string, logger zerolog.Logger) *FileStorage {
	return &FileStorage{dir: dir, logger: logger}
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.dir, filepath.Base(key))
}

func (f *FileStorage) Get(key string) (string, bool) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn().Err(err).Str("key", key).Msg("Failed to read session file")
		}
		return "", false
	}
	return string(data), true
}

func (f *FileStorage) Set(key, value string) {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		f.logger.Error().Err(err).Str("dir", f.dir).Msg("Failed to create session directory")
		return
	}
	if err := os.WriteFile(f.path(key), []byte(value), 0600); err != nil {
		f.logger.Error().Err(err).Str("key", key).Msg("Failed to write session file")
	}
}

func (f *FileStorage) Remove(key string) {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete session file")
	}
}
