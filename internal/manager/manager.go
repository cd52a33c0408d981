// Package manager orchestrates plugin installation, updates and lifecycle:
// it consults the registry for blacklist/trust/ref decisions, delegates
// repository work to gitsource, validates manifests and records state
// transitions, persisting every successful mutation to the config store.
package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tagforge/plugman/internal/config"
	"github.com/tagforge/plugman/internal/gitsource"
	"github.com/tagforge/plugman/internal/loader"
	"github.com/tagforge/plugman/internal/manifest"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/registry"
	"github.com/tagforge/plugman/internal/state"
)

// Plugin is an installed extension unit
type Plugin struct {
	ID                string
	UUID              string
	Name              string
	Manifest          *manifest.Manifest
	URL               string
	Ref               string
	Commit            string
	OriginalURL       string
	OriginalUUID      string
	BlacklistBypassed bool
	InstallPath       string

	machine *state.Machine
}

// State returns the plugin's current lifecycle state
func (p *Plugin) State() state.State {
	return p.machine.Current()
}

// FailureReason returns why the plugin is in Error state, if it is
func (p *Plugin) FailureReason() string {
	return p.machine.FailureReason()
}

func (p *Plugin) checkout() gitsource.Checkout {
	return gitsource.Checkout{Path: p.InstallPath, URL: p.URL, Ref: p.Ref}
}

// Manager composes the registry client, git source, manifest validation and
// per-plugin state machines into the install/update/uninstall/enable/disable
// workflows, and owns the persisted configuration.
type Manager struct {
	store    *config.Store
	reg      *registry.Client
	src      *gitsource.Source
	units    *loader.Registry
	factory  loader.Factory
	log      *zap.Logger
	hostAPIs []string
	parallel int

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// Options configures a Manager
type Options struct {
	Store    *config.Store
	Registry *registry.Client
	Source   *gitsource.Source
	Factory  loader.Factory // nil skips lifecycle hooks
	Logger   *zap.Logger
	HostAPIs []string // supported host API versions, oldest first
	Parallel int      // batch fan-out width, default 4
}

// New creates a manager; call LoadInstalled before operating on plugins
func New(opts Options) *Manager {
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	return &Manager{
		store:    opts.Store,
		reg:      opts.Registry,
		src:      opts.Source,
		units:    loader.NewRegistry(),
		factory:  opts.Factory,
		log:      opts.Logger,
		hostAPIs: opts.HostAPIs,
		parallel: parallel,
		plugins:  make(map[string]*Plugin),
	}
}

// hostAPI is the version used for registry ref selection
func (m *Manager) hostAPI() string {
	if len(m.hostAPIs) == 0 {
		return ""
	}
	return m.hostAPIs[len(m.hostAPIs)-1]
}

// LoadInstalled builds the in-memory plugin set from the persisted config,
// re-reading each checkout's manifest. Plugins whose manifest or API
// compatibility fails land in Error instead of aborting the load.
func (m *Manager) LoadInstalled(ctx context.Context) error {
	cfg, err := m.store.Load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.plugins = make(map[string]*Plugin, len(cfg.Plugins))
	for id, entry := range cfg.Plugins {
		p := &Plugin{
			ID:                id,
			UUID:              entry.UUID,
			URL:               entry.URL,
			Ref:               entry.Ref,
			Commit:            entry.Commit,
			OriginalURL:       entry.OriginalURL,
			OriginalUUID:      entry.OriginalUUID,
			BlacklistBypassed: entry.BlacklistBypassed,
			InstallPath:       m.installPath(id),
			machine:           state.New(id, m.log),
		}
		m.loadPlugin(p)
		if p.UUID == "" {
			p.machine.Fail((&plugerr.NoUUIDError{ID: id}).Error())
		}
		m.plugins[id] = p
	}

	return nil
}

// loadPlugin validates the checkout's manifest and gates API compatibility,
// driving the machine to Loaded or Error.
func (m *Manager) loadPlugin(p *Plugin) {
	mf, err := manifest.Load(p.InstallPath)
	if err != nil {
		p.machine.Fail(err.Error())
		return
	}

	p.Manifest = mf
	p.Name = mf.Name
	if p.UUID == "" {
		p.UUID = mf.UUID
	}

	if !m.apiCompatible(mf.API) {
		p.machine.Fail((&plugerr.IncompatibleAPIError{
			ID: p.ID, PluginAPIs: mf.API, HostVersion: m.hostAPI(),
		}).Error())
		return
	}

	if err := p.machine.MarkLoaded(); err != nil {
		m.log.Warn("plugin not reloadable", zap.String("plugin", p.ID), zap.Error(err))
	}
}

// apiCompatible reports whether any declared plugin API version matches one
// of the host's supported versions.
func (m *Manager) apiCompatible(pluginAPIs []string) bool {
	for _, pv := range pluginAPIs {
		for _, hv := range m.hostAPIs {
			if registry.CompareAPIVersions(pv, hv) == 0 {
				return true
			}
		}
	}
	return false
}

// Get returns an installed plugin by id
func (m *Manager) Get(id string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[id]
	if !ok {
		return nil, &plugerr.NotFoundError{Kind: "plugin", Key: id}
	}
	return p, nil
}

// List returns all installed plugins sorted by id
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enable transitions a plugin to Enabled, runs its OnEnable hook and
// persists the enabled set. Hook failure sends the plugin to Error.
func (m *Manager) Enable(ctx context.Context, id string) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}

	if err := p.machine.Enable(); err != nil {
		return err
	}

	if m.factory != nil {
		unit, ok := m.units.Get(id)
		if !ok {
			unit, err = m.factory(ctx, p.InstallPath)
			if err != nil {
				p.machine.Fail("module initialization failed: " + err.Error())
				return err
			}
			m.units.Put(id, unit)
		}
		if err := unit.OnEnable(ctx); err != nil {
			p.machine.Fail("enable hook failed: " + err.Error())
			return err
		}
	}

	return m.store.SetEnabled(id, true)
}

// Disable transitions a plugin to Disabled and persists the enabled set
func (m *Manager) Disable(id string) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}

	if err := p.machine.Disable(); err != nil {
		return err
	}

	if err := m.units.Remove(id); err != nil {
		m.log.Warn("disable hook failed", zap.String("plugin", id), zap.Error(err))
	}

	return m.store.SetEnabled(id, false)
}

// RestoreEnabled enables exactly the plugins whose persisted state is
// enabled, skipping the rest. Failures are collected, not fatal, so one
// broken plugin cannot block process start.
func (m *Manager) RestoreEnabled(ctx context.Context) []error {
	cfg, err := m.store.Load()
	if err != nil {
		return []error{err}
	}

	var errs []error
	for _, p := range m.List() {
		if !cfg.IsEnabled(p.ID) {
			continue
		}
		if err := m.Enable(ctx, p.ID); err != nil {
			var stateErr *plugerr.StateError
			if errors.As(err, &stateErr) && stateErr.Message == "already enabled" {
				continue
			}
			errs = append(errs, fmt.Errorf("restore %s: %w", p.ID, err))
		}
	}
	return errs
}

// Validate runs the standalone manifest validation on a checkout, reporting
// every violation at once.
func (m *Manager) Validate(dir string) []plugerr.Violation {
	if _, err := manifest.Load(dir); err != nil {
		var inv *plugerr.ManifestInvalidError
		if errors.As(err, &inv) {
			return inv.Violations
		}
		return []plugerr.Violation{{Field: "", Message: err.Error()}}
	}
	return nil
}

func (m *Manager) newMachine(id string) *state.Machine {
	return state.New(id, m.log)
}

func (m *Manager) installPath(id string) string {
	return filepath.Join(m.store.Paths().PluginsDir(), id)
}

var idSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// deriveID builds the stable directory key: sanitized name plus a UUID
// prefix, which keeps ids collision-free across same-named plugins.
func deriveID(name, uuid string) string {
	sanitized := idSanitizer.ReplaceAllString(strings.ToLower(name), "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "plugin"
	}
	short := strings.ReplaceAll(uuid, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return sanitized + "-" + short
}
