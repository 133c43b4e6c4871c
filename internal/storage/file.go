package storage

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// File is a KV persisting each key as a JSON file under a base directory.
// This is the local-filesystem deployment mode; keys are URL-escaped so
// colon-separated keys produce flat, safe filenames.
type File struct {
	base string
}

// NewFile creates the base directory if needed and returns the store.
func NewFile(base string) (*File, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &File{base: base}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.base, url.PathEscape(key)+".json")
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Set writes to a temp file and renames it into place, so a crash mid-write
// never leaves a truncated snapshot behind.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	dst := f.path(key)

	tmp, err := os.CreateTemp(f.base, ".kv-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
