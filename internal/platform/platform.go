// Package platform resolves the target platform and the directories a run
// installs into.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/thrushlang/thrushdeps/internal/config"
	"github.com/thrushlang/thrushdeps/internal/model"
)

// Identify normalizes name into a PlatformKey. Matching ignores case and
// surrounding whitespace; anything else is ErrUnsupportedPlatform.
func Identify(name string) (model.PlatformKey, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	for _, key := range model.Platforms {
		if norm == string(key) {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %q (available: %s)", model.ErrUnsupportedPlatform, name, SupportedList())
}

// SupportedList renders the supported platform names for usage output.
func SupportedList() string {
	names := make([]string, len(model.Platforms))
	for i, key := range model.Platforms {
		names[i] = string(key)
	}
	return strings.Join(names, ", ")
}

// Host reports the platform of the running process. The bool is false on
// operating systems thrushdeps does not provision for.
func Host() (model.PlatformKey, bool) {
	key, err := Identify(runtime.GOOS)
	return key, err == nil
}

// ResolvePaths derives the staging and final directories for key. The final
// directory hangs off the platform's root variable (HOME, APPDATA); a missing
// variable is ErrMissingEnv. A relative staging dir is anchored at cwd.
func ResolvePaths(key model.PlatformKey, cfg config.Config, getenv func(string) string, cwd string) (model.InstallPaths, error) {
	p, ok := cfg.Platform(key)
	if !ok {
		return model.InstallPaths{}, fmt.Errorf("%w: no configuration for %s", model.ErrUnsupportedPlatform, key)
	}
	root := strings.TrimSpace(getenv(p.RootEnv))
	if root == "" {
		return model.InstallPaths{}, fmt.Errorf("%w: %s must be set to install for %s", model.ErrMissingEnv, p.RootEnv, key)
	}
	root = filepath.FromSlash(strings.ReplaceAll(root, `\`, "/"))

	final := filepath.Join(root, cfg.Install.AppDir, filepath.FromSlash(cfg.Install.Subpath))

	staging := filepath.FromSlash(cfg.Install.StagingDir)
	if !filepath.IsAbs(staging) {
		staging = filepath.Join(cwd, staging)
	}

	return model.InstallPaths{
		StagingDir: filepath.Clean(staging),
		FinalDir:   filepath.Clean(final),
	}, nil
}

// EnsureDirs creates both directories. It is safe to call repeatedly. A
// failure is ErrDirectory.
func EnsureDirs(paths model.InstallPaths) error {
	for _, dir := range []string{paths.FinalDir, paths.StagingDir} {
		if err := // #nosec G301 -- install dirs are user-owned
			os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %w", model.ErrDirectory, dir, err)
		}
	}
	return nil
}
