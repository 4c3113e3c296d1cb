package fileutils

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash"
)

// Exists reports whether path exists, following symlinks.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type WriteResult struct {
	Size int64  // bytes written
	Hash uint64 // xxhash64 of the bytes written
}

// WriteFileAtomic writes r into dst through a temporary file created next to
// dst. The temporary file is synced and renamed over dst only after r is fully
// consumed, so dst either keeps its previous content or gets all of r.
// On error the temporary file is removed.
func WriteFileAtomic(ctx context.Context, dst string, r io.Reader, perm fs.FileMode) (WriteResult, error) {
	tmp, err := WriteTemp(ctx, filepath.Dir(dst), filepath.Base(dst), r, perm)
	if err != nil {
		return WriteResult{}, err
	}
	if err := tmp.Replace(dst); err != nil {
		return WriteResult{}, errors.Join(err, tmp.Discard())
	}
	return tmp.Result, nil
}

// TempFile is a fully written and synced file waiting for its final name.
type TempFile struct {
	Result WriteResult

	path string
	done bool
}

// WriteTemp writes r into a new hidden temporary file in dir, named after
// name. The file is synced and closed before WriteTemp returns. On error
// nothing is left behind.
func WriteTemp(ctx context.Context, dir, name string, r io.Reader, perm fs.FileMode) (_ *TempFile, err error) {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var res WriteResult
	hash := xxhash.New()
	res.Size, err = io.Copy(io.MultiWriter(tmp, hash), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return nil, err
	}
	res.Hash = hash.Sum64()

	if err = tmp.Chmod(perm); err != nil {
		return nil, err
	}
	if err = tmp.Sync(); err != nil {
		return nil, err
	}
	if err = tmp.Close(); err != nil {
		return nil, err
	}
	return &TempFile{Result: res, path: tmpPath}, nil
}

// Replace renames the file over dst.
func (f *TempFile) Replace(dst string) error {
	if err := os.Rename(f.path, dst); err != nil {
		return err
	}
	f.done = true

	// The rename is done, a failing directory sync does not undo it.
	_ = syncDir(filepath.Dir(dst))
	return nil
}

// Claim places the file at dst only if nothing exists there yet. It fails
// with an error matching fs.ErrExist when dst is taken, leaving dst and the
// temporary file as they are.
func (f *TempFile) Claim(dst string) error {
	if err := os.Link(f.path, dst); err != nil {
		return err
	}
	f.done = true

	// dst is already complete, a leftover temporary name is only clutter.
	_ = os.Remove(f.path)
	_ = syncDir(filepath.Dir(dst))
	return nil
}

// Discard removes the temporary file. It does nothing once the file was placed.
func (f *TempFile) Discard() error {
	if f.done {
		return nil
	}
	f.done = true
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	return errors.Join(d.Sync(), d.Close())
}

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
