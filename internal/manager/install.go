package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tagforge/plugman/internal/config"
	"github.com/tagforge/plugman/internal/gitsource"
	"github.com/tagforge/plugman/internal/manifest"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/registry"
)

// InstallOptions controls a single install
type InstallOptions struct {
	// Source is a bare registry id, a git URL or a local repository path
	Source string
	// Ref pins a branch, tag or commit; empty picks the registry's choice
	Ref string
	// Reinstall replaces an existing install of the same plugin
	Reinstall bool
	// ForceBlacklisted proceeds past a blacklist match; the bypass is recorded
	ForceBlacklisted bool
}

// Install resolves the source, clones into a temporary directory, validates
// the manifest, and only then moves the checkout into its final location.
// Any failure before the final move deletes the temporary directory, so a
// failed install leaves no partial state.
//
// An API-incompatible plugin still installs but lands in Error state; the
// returned IncompatibleAPIError tells the caller it cannot be enabled.
func (m *Manager) Install(ctx context.Context, opts InstallOptions) (*Plugin, error) {
	url, ref, entry, err := m.resolveSource(ctx, opts.Source, opts.Ref)
	if err != nil {
		return nil, err
	}

	// URL blacklist gate before any network work
	bypassed, err := m.blacklistGate(ctx, url, "", opts.ForceBlacklisted)
	if err != nil {
		return nil, err
	}

	tmpRoot := m.store.Paths().TempDir()
	if err := config.EnsureDir(tmpRoot); err != nil {
		return nil, err
	}
	tmpDir, err := os.MkdirTemp(tmpRoot, "install-*")
	if err != nil {
		return nil, err
	}
	moved := false
	defer func() {
		if !moved {
			os.RemoveAll(tmpDir)
		}
	}()

	// clone into the scratch directory; an empty ref lands on the default
	// branch and may be upgraded to a version tag below
	dest := filepath.Join(tmpDir, "checkout")
	commit, err := m.src.Clone(ctx, url, ref, dest)
	if err != nil {
		return nil, err
	}

	co := gitsource.Checkout{Path: dest, URL: url, Ref: ref}
	if ref == "" && entry != nil && entry.VersioningScheme != "" {
		if tag, ok, err := m.src.LatestForScheme(ctx, co); err == nil && ok {
			if res, err := m.src.SwitchRef(ctx, co, tag); err == nil {
				ref, commit = tag, res.NewCommit
			}
		}
	}

	mf, err := manifest.Load(dest)
	if err != nil {
		return nil, err
	}

	// second blacklist gate now that the manifest's UUID is known
	uuidBypassed, err := m.blacklistGate(ctx, url, mf.UUID, opts.ForceBlacklisted)
	if err != nil {
		return nil, err
	}
	bypassed = bypassed || uuidBypassed

	id := deriveID(mf.Name, mf.UUID)

	if err := m.checkDuplicate(ctx, id, mf.UUID, url, opts.Reinstall); err != nil {
		return nil, err
	}

	finalPath := m.installPath(id)
	if err := config.EnsureDir(m.store.Paths().PluginsDir()); err != nil {
		return nil, err
	}
	if opts.Reinstall {
		if err := m.removeExisting(id, mf.UUID, url); err != nil {
			return nil, err
		}
	}
	if err := os.Rename(dest, finalPath); err != nil {
		return nil, err
	}
	moved = true
	os.RemoveAll(tmpDir)

	p := &Plugin{
		ID:                id,
		UUID:              mf.UUID,
		Name:              mf.Name,
		Manifest:          mf,
		URL:               url,
		Ref:               ref,
		Commit:            commit,
		BlacklistBypassed: bypassed,
		InstallPath:       finalPath,
		machine:           m.newMachine(id),
	}

	var apiErr error
	if !m.apiCompatible(mf.API) {
		apiErr = &plugerr.IncompatibleAPIError{ID: id, PluginAPIs: mf.API, HostVersion: m.hostAPI()}
		p.machine.Fail(apiErr.Error())
	} else if err := p.machine.MarkLoaded(); err != nil {
		return nil, err
	}

	if err := m.store.PutPlugin(id, config.PluginEntry{
		URL:               url,
		Ref:               ref,
		Commit:            commit,
		UUID:              mf.UUID,
		BlacklistBypassed: bypassed,
	}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.plugins[id] = p
	m.mu.Unlock()

	m.log.Info("plugin installed",
		zap.String("plugin", id),
		zap.String("url", url),
		zap.String("ref", ref),
		zap.String("commit", commit),
		zap.Bool("blacklist_bypassed", bypassed),
	)

	return p, apiErr
}

// resolveSource classifies the source argument. A bare name with no path
// separator or scheme is a registry id; everything else is a direct URL or
// local path.
func (m *Manager) resolveSource(ctx context.Context, source, ref string) (string, string, *registry.Entry, error) {
	if source == "" {
		return "", "", nil, &plugerr.NoGitSourceError{Source: source}
	}

	if isRegistryID(source) {
		entry, err := m.reg.FindPlugin(ctx, source)
		if err != nil {
			return "", "", nil, err
		}
		if ref == "" {
			if selected, ok := registry.SelectRef(entry, m.hostAPI()); ok {
				ref = selected
			}
		}
		return entry.GitURL, ref, entry, nil
	}

	// direct URL or local path; a registry entry is still consulted for
	// the versioning scheme, but its absence is fine
	entry, err := m.reg.FindPlugin(ctx, source)
	if err != nil {
		var notFound *plugerr.NotFoundError
		if !errors.As(err, &notFound) {
			return "", "", nil, err
		}
		entry = nil
	}

	if isLocalPath(source) {
		if !m.src.IsRepository(source) {
			return "", "", nil, &plugerr.NoGitSourceError{Source: source}
		}
		return source, ref, entry, nil
	}

	return source, ref, entry, nil
}

func isRegistryID(source string) bool {
	return !strings.ContainsAny(source, "/\\:@") && !strings.HasPrefix(source, ".")
}

func isLocalPath(source string) bool {
	if strings.Contains(source, "://") || strings.HasPrefix(source, "git@") {
		return false
	}
	_, err := os.Stat(source)
	return err == nil
}

// blacklistGate fails with BlacklistedError on a match unless the caller
// forces past it, in which case the bypass is surfaced for recording.
func (m *Manager) blacklistGate(ctx context.Context, url, uuid string, force bool) (bool, error) {
	blocked, reason, err := m.reg.IsBlacklisted(ctx, url, uuid)
	if err != nil {
		// an unreachable registry must not brick local installs of
		// already-vetted sources; the blacklist is best effort then
		var netErr *plugerr.NetworkError
		if errors.As(err, &netErr) {
			m.log.Warn("blacklist check skipped, registry unreachable", zap.Error(err))
			return false, nil
		}
		return false, err
	}
	if !blocked {
		return false, nil
	}
	if !force {
		return false, &plugerr.BlacklistedError{URL: url, UUID: uuid, Reason: reason}
	}

	m.log.Warn("blacklist match bypassed by caller",
		zap.String("url", url),
		zap.String("uuid", uuid),
		zap.String("reason", reason),
	)
	return true, nil
}

// checkDuplicate rejects installs whose UUID or URL is already present
func (m *Manager) checkDuplicate(ctx context.Context, id, uuid, url string, reinstall bool) error {
	if reinstall {
		return nil
	}

	normalized := registry.NormalizeURL(url)
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.plugins {
		if p.UUID == uuid || registry.NormalizeURL(p.URL) == normalized {
			return &plugerr.AlreadyInstalledError{ID: p.ID, UUID: p.UUID, URL: p.URL}
		}
	}
	return nil
}

// removeExisting clears the prior install during a reinstall, refusing to
// discard uncommitted local changes.
func (m *Manager) removeExisting(id, uuid, url string) error {
	m.mu.Lock()
	var old *Plugin
	normalized := registry.NormalizeURL(url)
	for _, p := range m.plugins {
		if p.ID == id || p.UUID == uuid || registry.NormalizeURL(p.URL) == normalized {
			old = p
			break
		}
	}
	m.mu.Unlock()

	if old == nil {
		return nil
	}

	if m.src.IsRepository(old.InstallPath) {
		dirty, err := m.src.IsDirty(old.checkout())
		if err != nil {
			return err
		}
		if dirty {
			return &plugerr.DirtyCheckoutError{Path: old.InstallPath}
		}
	}

	if err := os.RemoveAll(old.InstallPath); err != nil {
		return err
	}
	if err := m.store.RemovePlugin(old.ID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.plugins, old.ID)
	m.mu.Unlock()
	return nil
}
