// Package storage stores uploaded files by opaque reference on local
// disk. The core only sees the FileStore contract; swapping in an object
// store is a boundary concern.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, baseURL: baseURL}, nil
}

// Save writes the stream under a fresh reference. The original filename
// only contributes its extension; the reference itself is unguessable.
func (l *Local) Save(ctx context.Context, r io.Reader, name string) (string, error) {
	ref := uuid.NewString() + filepath.Ext(name)

	f, err := os.Create(filepath.Join(l.dir, ref))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	return ref, nil
}

func (l *Local) Delete(ctx context.Context, ref string) error {
	if err := l.check(ref); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.dir, ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (l *Local) URL(ref string) string {
	return l.baseURL + "/files/" + ref
}

func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := l.check(ref); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// check rejects references that are not plain generated names, so a
// stored ref can never escape the upload directory.
func (l *Local) check(ref string) error {
	if ref == "" || ref != filepath.Base(ref) {
		return fmt.Errorf("invalid file reference %q", ref)
	}
	return nil
}
