package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Move places the file at src at dst. It renames when possible and otherwise
// copies into a hidden .partial file beside dst, then renames that into place,
// so readers never observe a partially written dst.
func Move(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("move file: %w", err)
	}

	if err := copyReplace(ctx, src, dst); err != nil {
		return err
	}
	os.Remove(src)
	return nil
}

func copyReplace(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.partial")
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, &ctxReader{ctx: ctx, r: in})
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("copy file: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename partial file: %w", err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
