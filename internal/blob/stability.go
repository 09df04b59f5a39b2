// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package blob

import (
	"context"
	"fmt"
	"os"
	"time"
)

// IsStable reports whether the size of path stays the same across window.
// A missing file is not stable.
func IsStable(ctx context.Context, path string, window time.Duration) (bool, error) {
	before, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	t := time.NewTimer(window)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	after, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	return before.Size() == after.Size(), nil
}

// WaitStable polls IsStable until it succeeds or attempts run out.
func WaitStable(ctx context.Context, path string, window time.Duration, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		ok, err := IsStable(ctx, path, window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("blob: %s still changing after %d checks", path, attempts)
}
