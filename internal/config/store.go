package config

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
)

// PluginEntry is the persisted metadata of one installed plugin
type PluginEntry struct {
	URL          string `json:"url"`
	Ref          string `json:"ref,omitempty"`
	Commit       string `json:"commit"`
	UUID         string `json:"uuid"`
	OriginalURL  string `json:"original_url,omitempty"`
	OriginalUUID string `json:"original_uuid,omitempty"`
	// BlacklistBypassed records that the install went through despite a
	// blacklist match; the override must stay visible after the fact.
	BlacklistBypassed bool `json:"blacklist_bypassed,omitempty"`
}

// Config is the process-wide persisted state
type Config struct {
	RegistryURL string                 `json:"registryUrl,omitempty"`
	Locale      string                 `json:"locale,omitempty"` // "auto" or empty detects the system locale
	Enabled     []string               `json:"enabled"`
	Plugins     map[string]PluginEntry `json:"plugins"`
}

// NewConfig creates a Config with initialized containers
func NewConfig() *Config {
	return &Config{Plugins: make(map[string]PluginEntry)}
}

// IsEnabled reports whether a plugin id is in the enabled set
func (c *Config) IsEnabled(id string) bool {
	for _, e := range c.Enabled {
		if e == id {
			return true
		}
	}
	return false
}

// Store loads and persists the configuration file. All mutations go through
// Mutate, which holds an exclusive lock for the read-modify-write-flush and
// replaces the file atomically, so concurrent invocations never interleave.
type Store struct {
	paths Paths
	mu    sync.Mutex
}

// NewStore creates a store over the given layout
func NewStore(paths Paths) *Store {
	return &Store{paths: paths}
}

// Paths exposes the layout the store was built with
func (s *Store) Paths() Paths {
	return s.paths
}

// Load reads the configuration, returning defaults when none exists yet
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Config, error) {
	data, err := os.ReadFile(s.paths.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Plugins == nil {
		cfg.Plugins = make(map[string]PluginEntry)
	}
	return &cfg, nil
}

// Mutate applies fn to the current config and flushes the result
func (s *Store) Mutate(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.flush(cfg)
}

// flush writes via temp file and rename; readers always see a complete file
func (s *Store) flush(cfg *Config) error {
	if err := EnsureDir(s.paths.Base); err != nil {
		return err
	}

	sort.Strings(cfg.Enabled)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.paths.Base, ".config-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), s.paths.ConfigPath())
}

// SetEnabled adds or removes a plugin id from the enabled set
func (s *Store) SetEnabled(id string, enabled bool) error {
	return s.Mutate(func(cfg *Config) error {
		kept := cfg.Enabled[:0]
		for _, e := range cfg.Enabled {
			if e != id {
				kept = append(kept, e)
			}
		}
		cfg.Enabled = kept
		if enabled {
			cfg.Enabled = append(cfg.Enabled, id)
		}
		return nil
	})
}

// PutPlugin records an installed plugin's metadata
func (s *Store) PutPlugin(id string, entry PluginEntry) error {
	return s.Mutate(func(cfg *Config) error {
		cfg.Plugins[id] = entry
		return nil
	})
}

// RemovePlugin drops a plugin's metadata and enabled flag
func (s *Store) RemovePlugin(id string) error {
	return s.Mutate(func(cfg *Config) error {
		delete(cfg.Plugins, id)
		kept := cfg.Enabled[:0]
		for _, e := range cfg.Enabled {
			if e != id {
				kept = append(kept, e)
			}
		}
		cfg.Enabled = kept
		return nil
	})
}

// CleanPluginSettings removes a plugin's scoped settings file. Usable after
// uninstall, so a plain uninstall can leave settings behind and a later
// clean-config can still purge them.
func (s *Store) CleanPluginSettings(id string) error {
	err := os.Remove(s.paths.PluginSettingsPath(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SavePluginSettings writes a plugin's scoped settings
func (s *Store) SavePluginSettings(id string, settings map[string]any) error {
	if err := EnsureDir(s.paths.SettingsDir()); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.paths.SettingsDir(), ".settings-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.paths.PluginSettingsPath(id))
}

// LoadPluginSettings reads a plugin's scoped settings, empty when absent
func (s *Store) LoadPluginSettings(id string) (map[string]any, error) {
	data, err := os.ReadFile(s.paths.PluginSettingsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}
