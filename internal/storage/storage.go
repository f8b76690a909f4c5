package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store keeps attachment bytes. Locators are opaque to callers.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) (locator string, size int64, err error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
	// Stat reports the size of a stored object, failing for locators the store never issued.
	Stat(ctx context.Context, locator string) (int64, error)
}

var ErrBadLocator = errors.New("invalid locator")

// Disk stores each object under Root as <uuid><ext>.
type Disk struct {
	Root string
}

func (d Disk) Put(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return "", 0, err
	}
	locator := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(name)))
	path := filepath.Join(d.Root, locator)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", locator, err)
	}
	return locator, n, nil
}

func (d Disk) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	path, err := d.path(locator)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (d Disk) Delete(ctx context.Context, locator string) error {
	path, err := d.path(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d Disk) Stat(ctx context.Context, locator string) (int64, error) {
	path, err := d.path(locator)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %q", ErrBadLocator, locator)
	}
	return fi.Size(), nil
}

func (d Disk) path(locator string) (string, error) {
	if locator == "" || locator != filepath.Base(locator) || strings.HasPrefix(locator, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadLocator, locator)
	}
	return filepath.Join(d.Root, locator), nil
}
