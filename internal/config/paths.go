package config

import (
	"os"
	"path/filepath"
)

// RegistryURLEnv overrides the registry URL when set
const RegistryURLEnv = "PLUGMAN_REGISTRY_URL"

// DefaultRegistryURL is the central TagForge plugin registry
const DefaultRegistryURL = "https://plugins.tagforge.org/registry.json"

// Paths resolves the on-disk layout rooted at a base directory, so tests
// can point everything at a temp dir.
type Paths struct {
	Base string
}

// DefaultPaths roots the layout at ~/.config/plugman
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	return Paths{Base: filepath.Join(home, ".config", "plugman")}
}

// ConfigPath is the persisted manager state
// <base>/config.json
func (p Paths) ConfigPath() string {
	return filepath.Join(p.Base, "config.json")
}

// PluginsDir holds one git working copy per installed plugin
// <base>/plugins/
func (p Paths) PluginsDir() string {
	return filepath.Join(p.Base, "plugins")
}

// CacheDir holds rarely-rewritten downloads
// <base>/cache/
func (p Paths) CacheDir() string {
	return filepath.Join(p.Base, "cache")
}

// RegistryCachePath is the cached registry document
// <base>/cache/registry.json
func (p Paths) RegistryCachePath() string {
	return filepath.Join(p.CacheDir(), "registry.json")
}

// SettingsDir holds plugin-scoped settings files
// <base>/settings/
func (p Paths) SettingsDir() string {
	return filepath.Join(p.Base, "settings")
}

// PluginSettingsPath is one plugin's scoped settings file
func (p Paths) PluginSettingsPath(id string) string {
	return filepath.Join(p.SettingsDir(), id+".json")
}

// TempDir holds in-flight installs before their final move
// <base>/tmp/
func (p Paths) TempDir() string {
	return filepath.Join(p.Base, "tmp")
}

// RegistryURL resolves the registry URL: environment override first, then
// the configured value, then the default.
func RegistryURL(configured string) string {
	if url := os.Getenv(RegistryURLEnv); url != "" {
		return url
	}
	if configured != "" {
		return configured
	}
	return DefaultRegistryURL
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
