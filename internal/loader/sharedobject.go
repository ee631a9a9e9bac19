package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"plugin"

	"github.com/glizzus/adsp-host/internal/adsp"
)

// EntryPoint is the symbol a shared object addon exports. It must have the
// type func() adsp.Library.
const EntryPoint = "NewAudioDSP"

// BinaryPath is where the shared object of an addon lives.
func BinaryPath(info adsp.AddonInfo) string {
	return filepath.Join(info.Path, info.ID+".so")
}

// SharedObject loads addons built with -buildmode=plugin.
type SharedObject struct{}

var _ adsp.Loader = (*SharedObject)(nil)

func (SharedObject) Load(_ context.Context, info adsp.AddonInfo) (adsp.Library, error) {
	path := BinaryPath(info)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrUnknownAddon)
		}
		return nil, fmt.Errorf("failed to stat addon binary: %w", err)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open addon binary %s: %w", path, err)
	}
	sym, err := p.Lookup(EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("addon binary %s has no %s: %w", path, EntryPoint, err)
	}

	var newLibrary func() adsp.Library
	switch f := sym.(type) {
	case func() adsp.Library:
		newLibrary = f
	case *func() adsp.Library:
		newLibrary = *f
	default:
		return nil, fmt.Errorf("addon binary %s exports %s with type %T", path, EntryPoint, sym)
	}
	return newLibrary(), nil
}
