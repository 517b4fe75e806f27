package cargo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Boshen/cargo-shear-sub000/pkg/manifest"
)

const registryCacheSize = 512

// Registry resolves a crate's actual library name from the local cargo
// registry checkout. Lookups are memoized for the lifetime of one analysis
// run; the cache is owned by the caller, never process-global.
type Registry struct {
	home  string
	cache *lru.Cache[string, string]
}

// NewRegistry creates a registry reader rooted at cargoHome, or at the
// CARGO_HOME / ~/.cargo default when empty.
func NewRegistry(cargoHome string) (*Registry, error) {
	if cargoHome == "" {
		cargoHome = os.Getenv("CARGO_HOME")
	}

	if cargoHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cargo: resolve home: %w", err)
		}

		cargoHome = filepath.Join(home, ".cargo")
	}

	cache, err := lru.New[string, string](registryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("cargo: registry cache: %w", err)
	}

	return &Registry{home: cargoHome, cache: cache}, nil
}

// LibName returns the [lib] name declared by the given package version's
// registry manifest. Most crates have none, which is not an error to the
// caller beyond the sentinel.
func (r *Registry) LibName(name, version string) (string, error) {
	key := name + "-" + version

	if cached, ok := r.cache.Get(key); ok {
		if cached == "" {
			return "", ErrNoLibName
		}

		return cached, nil
	}

	libName, err := r.readLibName(key)
	if err != nil {
		if errors.Is(err, ErrNoLibName) {
			r.cache.Add(key, "")
		}

		return "", err
	}

	r.cache.Add(key, libName)

	return libName, nil
}

func (r *Registry) readLibName(dirName string) (string, error) {
	srcRoot := filepath.Join(r.home, "registry", "src")

	mirrors, err := os.ReadDir(srcRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoCargoHome, srcRoot)
	}

	for _, mirror := range mirrors {
		if !mirror.IsDir() {
			continue
		}

		manifestPath := filepath.Join(srcRoot, mirror.Name(), dirName, "Cargo.toml")

		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}

		m, err := manifest.Parse(manifestPath, raw)
		if err != nil {
			continue
		}

		if lib := m.Doc().Table("lib"); lib != nil {
			if name, ok := lib.Str("name"); ok {
				return name, nil
			}
		}

		return "", ErrNoLibName
	}

	return "", ErrNoLibName
}
