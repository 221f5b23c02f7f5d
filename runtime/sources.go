package runtime

import (
	"os"
	"path/filepath"

	"github.com/wippyai/script-bridge/config"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
)

// LoadSources reads the configured assemblies. Relative paths are resolved
// against dir.
func LoadSources(cfg *config.Config, dir string) ([]engine.Source, error) {
	sources := make([]engine.Source, 0, len(cfg.Assemblies))
	for _, a := range cfg.Assemblies {
		src, err := LoadWasmSource(resolvePath(dir, a.Manifest), resolvePath(dir, a.Wasm))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// LoadWasmSource reads a class manifest and the wasm module it describes.
func LoadWasmSource(manifestPath, wasmPath string) (*engine.WasmSource, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read manifest "+manifestPath)
	}
	m, err := engine.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read module "+wasmPath)
	}
	return &engine.WasmSource{Manifest: m, Wasm: wasm}, nil
}

func resolvePath(dir, p string) string {
	if dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
