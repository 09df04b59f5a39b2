// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package blob moves recordings and debug artifacts into object storage.
package blob

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for keys that escape the bucket root.
var ErrInvalidKey = errors.New("blob: invalid key")

// Uploader is the blob storage collaborator. UploadFile may return before
// the bytes are durable; WaitForUpload blocks until every pending upload has
// finished.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
	WaitForUpload(ctx context.Context) error
	DeleteLocalFile(path string) error
}

// ArtifactSaver stores small debug artifacts such as screenshots.
type ArtifactSaver interface {
	SaveCompressed(ctx context.Context, key string, data []byte) (string, error)
}
