package manager

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tagforge/plugman/internal/config"
	"github.com/tagforge/plugman/internal/gitsource"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/registry"
	"github.com/tagforge/plugman/internal/state"
)

// UpdateReport is the outcome of updating (or checking) one plugin
type UpdateReport struct {
	ID        string
	OldRef    string
	NewRef    string
	OldCommit string
	NewCommit string
	Changed   bool
	Err       error
}

// Update brings one plugin to its newest allowed state. A non-empty ref
// performs an explicit ref switch instead of a same-ref update.
func (m *Manager) Update(ctx context.Context, id, ref string) (UpdateReport, error) {
	if ref != "" {
		return m.SwitchRef(ctx, id, ref)
	}

	p, err := m.Get(id)
	if err != nil {
		return UpdateReport{ID: id, Err: err}, err
	}

	dirty, err := m.src.IsDirty(p.checkout())
	if err != nil {
		return UpdateReport{ID: id, Err: err}, err
	}
	if dirty {
		err := &plugerr.DirtyCheckoutError{Path: p.InstallPath}
		return UpdateReport{ID: id, Err: err}, err
	}

	m.syncRedirect(ctx, p)

	res, err := m.src.Update(ctx, p.checkout())
	report := reportFrom(id, res)
	if err != nil {
		report.Err = err
		return report, err
	}

	if res.Changed {
		if err := m.afterCheckoutMoved(p, res); err != nil {
			report.Err = err
			return report, err
		}
	}
	return report, nil
}

// UpdateAll updates every installed plugin with bounded parallelism. Each
// plugin touches only its own directory, so failures stay isolated: one
// plugin's network error never aborts the rest.
func (m *Manager) UpdateAll(ctx context.Context) []UpdateReport {
	return m.fanOut(ctx, func(ctx context.Context, id string) UpdateReport {
		report, _ := m.Update(ctx, id, "")
		return report
	})
}

// CheckUpdates reports available updates without mutating any checkout.
// The check is restricted to each plugin's currently installed ref.
func (m *Manager) CheckUpdates(ctx context.Context) []UpdateReport {
	return m.fanOut(ctx, func(ctx context.Context, id string) UpdateReport {
		p, err := m.Get(id)
		if err != nil {
			return UpdateReport{ID: id, Err: err}
		}
		res, err := m.src.CheckUpdate(ctx, p.checkout())
		report := reportFrom(id, res)
		report.Err = err
		return report
	})
}

// fanOut runs fn per installed plugin, collecting per-plugin reports into
// an aggregate instead of aborting on first failure.
func (m *Manager) fanOut(ctx context.Context, fn func(context.Context, string) UpdateReport) []UpdateReport {
	plugins := m.List()
	reports := make([]UpdateReport, len(plugins))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for i, p := range plugins {
		g.Go(func() error {
			reports[i] = fn(ctx, p.ID)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in the reports

	return reports
}

// SwitchRef validates the new ref against the registry's declared refs (or
// the version-tag families when a versioning scheme applies) before
// mutating the checkout. Invalid refs carry the valid alternatives.
func (m *Manager) SwitchRef(ctx context.Context, id, newRef string) (UpdateReport, error) {
	p, err := m.Get(id)
	if err != nil {
		return UpdateReport{ID: id, Err: err}, err
	}

	if err := m.validateRefChoice(ctx, p, newRef); err != nil {
		return UpdateReport{ID: id, Err: err}, err
	}

	dirty, err := m.src.IsDirty(p.checkout())
	if err != nil {
		return UpdateReport{ID: id, Err: err}, err
	}
	if dirty {
		err := &plugerr.DirtyCheckoutError{Path: p.InstallPath}
		return UpdateReport{ID: id, Err: err}, err
	}

	res, err := m.src.SwitchRef(ctx, p.checkout(), newRef)
	report := reportFrom(id, res)
	if err != nil {
		alternatives, _ := m.src.Tags(ctx, p.checkout())
		err = &plugerr.RefSwitchFailedError{Ref: newRef, Alternatives: alternatives}
		report.Err = err
		return report, err
	}

	if err := m.afterCheckoutMoved(p, res); err != nil {
		report.Err = err
		return report, err
	}
	return report, nil
}

// validateRefChoice enforces the registry's declared ref list or the
// version-tag pattern when the entry declares a versioning scheme.
func (m *Manager) validateRefChoice(ctx context.Context, p *Plugin, newRef string) error {
	entry, err := m.reg.FindPlugin(ctx, p.URL)
	if err != nil {
		var notFound *plugerr.NotFoundError
		if errors.As(err, &notFound) {
			return nil // unregistered plugins may switch to any ref
		}
		var netErr *plugerr.NetworkError
		if errors.As(err, &netErr) {
			return nil
		}
		return err
	}

	if len(entry.Refs) > 0 {
		for _, name := range entry.RefNames() {
			if name == newRef {
				return nil
			}
		}
		if entry.VersioningScheme == "" || !gitsource.IsVersionTag(newRef) {
			return &plugerr.RefSwitchFailedError{Ref: newRef, Alternatives: entry.RefNames()}
		}
	}

	if entry.VersioningScheme != "" && !gitsource.IsVersionTag(newRef) && !gitsource.IsCommitHash(newRef) {
		tags, _ := m.src.Tags(ctx, p.checkout())
		return &plugerr.RefSwitchFailedError{Ref: newRef, Alternatives: tags}
	}

	return nil
}

// afterCheckoutMoved re-validates the manifest at the new commit and
// persists the new ref/commit. A manifest broken by the update sends the
// plugin to Error but keeps the checkout where it landed.
func (m *Manager) afterCheckoutMoved(p *Plugin, res gitsource.UpdateResult) error {
	p.Ref = res.NewRef
	p.Commit = res.NewCommit
	m.loadPlugin(p)

	return m.store.Mutate(func(cfg *config.Config) error {
		entry := cfg.Plugins[p.ID]
		entry.Ref = p.Ref
		entry.Commit = p.Commit
		entry.URL = p.URL
		entry.UUID = p.UUID
		entry.OriginalURL = p.OriginalURL
		entry.OriginalUUID = p.OriginalUUID
		cfg.Plugins[p.ID] = entry
		return nil
	})
}

// syncRedirect adopts the registry's current URL/UUID for a plugin that was
// redirected, persisting the originals once. Registry trouble is not fatal
// to an update.
func (m *Manager) syncRedirect(ctx context.Context, p *Plugin) {
	r, err := m.reg.ResolveRedirect(ctx, p.URL, p.UUID)
	if err != nil || !r.Moved {
		return
	}

	if r.OriginalURL != "" && p.OriginalURL == "" {
		p.OriginalURL = r.OriginalURL
	}
	if r.OriginalUUID != "" && p.OriginalUUID == "" {
		p.OriginalUUID = r.OriginalUUID
	}
	p.URL = r.Entry.GitURL
	p.UUID = r.Entry.UUID

	m.log.Info("plugin source redirected",
		zap.String("plugin", p.ID),
		zap.String("url", p.URL),
		zap.String("original_url", p.OriginalURL),
	)

	if err := m.store.Mutate(func(cfg *config.Config) error {
		entry := cfg.Plugins[p.ID]
		entry.URL = p.URL
		entry.UUID = p.UUID
		entry.OriginalURL = p.OriginalURL
		entry.OriginalUUID = p.OriginalUUID
		cfg.Plugins[p.ID] = entry
		return nil
	}); err != nil {
		m.log.Warn("failed to persist redirect", zap.String("plugin", p.ID), zap.Error(err))
	}
}

// Uninstall removes the install directory and config entry. With purge the
// plugin-scoped settings go too; without it they survive for a reinstall
// or a later clean-config.
func (m *Manager) Uninstall(ctx context.Context, id string, purge bool) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}

	if p.State() == state.Enabled {
		if err := m.Disable(id); err != nil {
			m.log.Warn("disable before uninstall failed", zap.String("plugin", id), zap.Error(err))
		}
	}

	if err := os.RemoveAll(p.InstallPath); err != nil {
		return err
	}
	if err := m.store.RemovePlugin(id); err != nil {
		return err
	}
	if purge {
		if err := m.store.CleanPluginSettings(id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.plugins, id)
	m.mu.Unlock()

	m.log.Info("plugin uninstalled", zap.String("plugin", id), zap.Bool("purge", purge))
	return nil
}

// CleanConfig removes a plugin's scoped settings after the fact, with the
// same deletion semantics as uninstall --purge.
func (m *Manager) CleanConfig(id string) error {
	return m.store.CleanPluginSettings(id)
}

func reportFrom(id string, res gitsource.UpdateResult) UpdateReport {
	return UpdateReport{
		ID:        id,
		OldRef:    res.OldRef,
		NewRef:    res.NewRef,
		OldCommit: res.OldCommit,
		NewCommit: res.NewCommit,
		Changed:   res.Changed,
	}
}

// RefreshRegistry bypasses the registry cache
func (m *Manager) RefreshRegistry(ctx context.Context) error {
	_, err := m.reg.Refresh(ctx)
	return err
}

// TrustLevel reports the registry trust tier of an installed plugin
func (m *Manager) TrustLevel(ctx context.Context, id string) (registry.TrustLevel, error) {
	p, err := m.Get(id)
	if err != nil {
		return "", err
	}
	return m.reg.TrustLevel(ctx, p.URL)
}

// FindRegistryEntry looks up a registry entry by id, UUID or git URL
func (m *Manager) FindRegistryEntry(ctx context.Context, source string) (*registry.Entry, error) {
	return m.reg.FindPlugin(ctx, source)
}

// RegistryEntries returns every plugin the registry currently lists
func (m *Manager) RegistryEntries(ctx context.Context) ([]registry.Entry, error) {
	doc, err := m.reg.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Plugins, nil
}
