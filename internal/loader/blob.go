package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/datalayer"
)

// Blob fetches addon binaries from blob storage into the addon directory and
// hands them to Next. A binary that is already present with the same size is
// not downloaded again.
type Blob struct {
	Storage datalayer.BlobStorage
	Prefix  string
	Next    adsp.Loader
}

var _ adsp.Loader = (*Blob)(nil)

func (b *Blob) key(info adsp.AddonInfo) string {
	return path.Join(b.Prefix, info.ID+".so")
}

func (b *Blob) Load(ctx context.Context, info adsp.AddonInfo) (adsp.Library, error) {
	if err := b.fetch(ctx, info); err != nil {
		return nil, err
	}
	return b.Next.Load(ctx, info)
}

func (b *Blob) fetch(ctx context.Context, info adsp.AddonInfo) error {
	key := b.key(info)
	blob, err := b.Storage.Stat(ctx, key)
	if errors.Is(err, datalayer.ErrBlobNotFound) {
		slog.DebugContext(ctx, "addon binary not in blob storage", slog.String("key", key))
		return nil
	}
	if err != nil {
		return err
	}

	dst := BinaryPath(info)
	if fi, err := os.Stat(dst); err == nil && fi.Size() == blob.Size {
		return nil
	}

	rc, err := b.Storage.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create addon directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+info.ID+"-*.so")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to install addon binary: %w", err)
	}

	slog.InfoContext(ctx, "downloaded addon binary",
		slog.String("addonID", info.ID),
		slog.String("key", key),
		slog.Int64("bytes", n),
	)
	return nil
}
