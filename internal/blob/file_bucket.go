// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/log"
)

// FileBucket is an Uploader backed by a directory. Objects are published
// atomically so readers never observe partial files.
type FileBucket struct {
	root            string
	prefix          string
	stabilityWindow time.Duration
	logger          zerolog.Logger

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

var (
	_ Uploader      = (*FileBucket)(nil)
	_ ArtifactSaver = (*FileBucket)(nil)
)

// NewFileBucket creates the bucket directory if needed. prefix is prepended
// to every object key.
func NewFileBucket(root, prefix string, stabilityWindow time.Duration) (*FileBucket, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create bucket root: %w", err)
	}
	return &FileBucket{
		root:            root,
		prefix:          strings.Trim(prefix, "/"),
		stabilityWindow: stabilityWindow,
		logger:          log.WithComponent("blob"),
	}, nil
}

func (b *FileBucket) objectPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}

func (b *FileBucket) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

// UploadFile schedules a copy of path into the bucket and returns its key.
func (b *FileBucket) UploadFile(ctx context.Context, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	key := b.key(filepath.Base(localPath))
	dst, err := b.objectPath(key)
	if err != nil {
		return "", err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		start := time.Now()
		err := b.copyFile(ctx, localPath, dst)
		if err != nil {
			b.mu.Lock()
			b.errs = append(b.errs, fmt.Errorf("upload %s: %w", key, err))
			b.mu.Unlock()
			b.logger.Error().Err(err).Str(log.FieldEvent, "blob.upload_failed").Str(log.FieldPath, localPath).Msg("upload failed")
			return
		}
		b.logger.Info().Str(log.FieldEvent, "blob.uploaded").Str("key", key).Dur("took", time.Since(start)).Msg("file uploaded")
	}()
	return key, nil
}

func (b *FileBucket) copyFile(ctx context.Context, src, dst string) error {
	if b.stabilityWindow > 0 {
		if err := WaitStable(ctx, src, b.stabilityWindow, 10); err != nil {
			return err
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return fmt.Errorf("create pending object: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, in); err != nil {
		return fmt.Errorf("copy object: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}

// WaitForUpload blocks until scheduled uploads finish and reports their
// combined errors.
func (b *FileBucket) WaitForUpload(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := errors.Join(b.errs...)
	b.errs = nil
	return err
}

// DeleteLocalFile removes the local copy. A missing file is not an error.
func (b *FileBucket) DeleteLocalFile(localPath string) error {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SaveCompressed stores data zstd-compressed under key + ".zst".
func (b *FileBucket) SaveCompressed(_ context.Context, key string, data []byte) (string, error) {
	key = b.key(key) + ".zst"
	dst, err := b.objectPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", err
	}
	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return "", fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc, err := zstd.NewWriter(pending, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return "", fmt.Errorf("compress artifact: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", err
	}
	return key, nil
}

// ReadCompressed returns the decompressed contents of a key written by
// SaveCompressed.
func (b *FileBucket) ReadCompressed(key string) ([]byte, error) {
	src, err := b.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
