package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tagforge/plugman/internal/config"
	"github.com/tagforge/plugman/internal/gitsource"
	"github.com/tagforge/plugman/internal/loader"
	"github.com/tagforge/plugman/internal/manifest"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/registry"
	"github.com/tagforge/plugman/internal/state"
)

const (
	coverArtUUID = "b9a7f9d2-3c1e-4f6a-9d2b-1a2b3c4d5e6f"
	coverArtURL  = "https://example.org/plugins/cover-art-fetcher.git"
	blockedUUID  = "deaddead-dead-4ead-8ead-deaddeaddead"
)

func manifestFor(uuid, name string, apis ...string) string {
	if len(apis) == 0 {
		apis = []string{"3.0", "3.1"}
	}
	apiList := ""
	for i, a := range apis {
		if i > 0 {
			apiList += ", "
		}
		apiList += fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf(`
uuid = %q
name = %q
description = "A test plugin"
api = [%s]
`, uuid, name, apiList)
}

// fakeGit simulates clone/fetch/checkout against in-memory repositories
type fakeGit struct {
	mu        sync.Mutex
	manifests map[string]string // url -> manifest content written on clone
	commit    string
	remote    string
	tags      []string
	dirty     map[string]bool
	cloneErr  error
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		manifests: map[string]string{},
		commit:    "commit-1",
		remote:    "commit-1",
		dirty:     map[string]bool{},
	}
}

func (f *fakeGit) writeCheckout(url, dest string) error {
	if f.cloneErr != nil {
		return f.cloneErr
	}
	content, ok := f.manifests[url]
	if !ok {
		return &plugerr.GitError{Op: "clone", Stderr: "repository not found: " + url}
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	if content == "" {
		return nil // repo without a manifest
	}
	return os.WriteFile(filepath.Join(dest, manifest.FileName), []byte(content), 0644)
}

func (f *fakeGit) Clone(ctx context.Context, url, dest string) error { return f.writeCheckout(url, dest) }
func (f *fakeGit) CloneBranch(ctx context.Context, url, ref, dest string) error {
	return f.writeCheckout(url, dest)
}
func (f *fakeGit) Fetch(ctx context.Context, repoPath string) error     { return nil }
func (f *fakeGit) FetchTags(ctx context.Context, repoPath string) error { return nil }
func (f *fakeGit) Checkout(ctx context.Context, repoPath, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commit = "commit-" + ref
	return nil
}
func (f *fakeGit) ResetHard(ctx context.Context, repoPath, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commit = target
	return nil
}
func (f *fakeGit) CurrentCommit(repoPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit, nil
}
func (f *fakeGit) RemoteCommit(ctx context.Context, repoPath, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote, nil
}
func (f *fakeGit) LsRemote(ctx context.Context, url, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote, nil
}
func (f *fakeGit) Tags(repoPath string) ([]string, error) { return f.tags, nil }
func (f *fakeGit) RemoteBranchExists(ctx context.Context, repoPath, ref string) bool {
	return ref == "main"
}
func (f *fakeGit) TagExists(repoPath, ref string) bool {
	for _, t := range f.tags {
		if t == ref {
			return true
		}
	}
	return false
}
func (f *fakeGit) IsDirty(repoPath string) (bool, error) { return f.dirty[repoPath], nil }
func (f *fakeGit) IsGitRepository(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type fixture struct {
	mgr   *Manager
	git   *fakeGit
	store *config.Store
	paths config.Paths
}

func testRegistryDoc() registry.Document {
	return registry.Document{
		APIVersion: "1",
		Plugins: []registry.Entry{
			{
				ID:         "cover-art-fetcher",
				UUID:       coverArtUUID,
				GitURL:     coverArtURL,
				TrustLevel: registry.TrustOfficial,
				Refs: []registry.Ref{
					{Name: "main", MinAPIVersion: "4.0"},
					{Name: "tagforge-v3", MinAPIVersion: "3.0", MaxAPIVersion: "3.99"},
				},
			},
			{
				ID:           "lyrics-lookup",
				UUID:         "1c2d3e4f-aaaa-4bbb-8ccc-0d1e2f3a4b5c",
				GitURL:       "https://example.org/plugins/lyrics-lookup.git",
				TrustLevel:   registry.TrustCommunity,
				RedirectFrom: []string{"https://old.example.org/lyrics.git"},
			},
		},
		Blacklist: []registry.BlacklistEntry{
			{UUID: blockedUUID, Reason: "exfiltrates tags"},
		},
	}
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(testRegistryDoc())
	}))
	t.Cleanup(srv.Close)

	paths := config.Paths{Base: t.TempDir()}
	store := config.NewStore(paths)
	git := newFakeGit()
	git.manifests[coverArtURL] = manifestFor(coverArtUUID, "Cover Art Fetcher")

	logger := zap.NewNop()
	mo := Options{
		Store:    store,
		Registry: registry.NewClient(srv.URL, paths.RegistryCachePath(), logger),
		Source:   gitsource.NewSource(git, logger),
		Logger:   logger,
		HostAPIs: []string{"3.0", "3.1"},
	}
	for _, o := range opts {
		o(&mo)
	}

	mgr := New(mo)
	require.NoError(t, mgr.LoadInstalled(context.Background()))
	return &fixture{mgr: mgr, git: git, store: store, paths: paths}
}

func (f *fixture) installCoverArt(t *testing.T) *Plugin {
	t.Helper()
	p, err := f.mgr.Install(context.Background(), InstallOptions{Source: "cover-art-fetcher"})
	require.NoError(t, err)
	return p
}

func TestInstallFromRegistryID(t *testing.T) {
	f := newFixture(t)

	p := f.installCoverArt(t)

	assert.Equal(t, "cover-art-fetcher-b9a7f9d2", p.ID)
	assert.Equal(t, coverArtUUID, p.UUID)
	// host 3.1 selects the 3.x ref, not main
	assert.Equal(t, "tagforge-v3", p.Ref)
	assert.Equal(t, state.Loaded, p.State())
	assert.DirExists(t, p.InstallPath)

	cfg, err := f.store.Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.Plugins, p.ID)

	// temp dir left empty
	entries, _ := os.ReadDir(f.paths.TempDir())
	assert.Empty(t, entries)
}

func TestInstallUninstallPurgeRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)
	require.NoError(t, f.store.SavePluginSettings(p.ID, map[string]any{"k": "v"}))

	require.NoError(t, f.mgr.Uninstall(ctx, p.ID, true))

	entries, err := os.ReadDir(f.paths.PluginsDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "plugins root must be back to pristine")

	cfg, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Plugins)
	assert.Empty(t, cfg.Enabled)

	_, err = os.Stat(f.paths.PluginSettingsPath(p.ID))
	assert.True(t, os.IsNotExist(err), "purged settings must be gone")
}

func TestUninstallWithoutPurgeKeepsSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)
	require.NoError(t, f.store.SavePluginSettings(p.ID, map[string]any{"k": "v"}))

	require.NoError(t, f.mgr.Uninstall(ctx, p.ID, false))
	assert.FileExists(t, f.paths.PluginSettingsPath(p.ID))

	// standalone cleanup afterwards
	require.NoError(t, f.mgr.CleanConfig(p.ID))
	_, err := os.Stat(f.paths.PluginSettingsPath(p.ID))
	assert.True(t, os.IsNotExist(err))
}

func TestInstallBlacklistedUUIDViaCleanURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url := "https://clean.example.org/sneaky.git"
	f.git.manifests[url] = manifestFor(blockedUUID, "Sneaky")

	_, err := f.mgr.Install(ctx, InstallOptions{Source: url})
	var blocked *plugerr.BlacklistedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "exfiltrates tags", blocked.Reason)

	// rollback: nothing installed
	entries, _ := os.ReadDir(f.paths.PluginsDir())
	assert.Empty(t, entries)

	// explicit override proceeds and the bypass is recorded durably
	p, err := f.mgr.Install(ctx, InstallOptions{Source: url, ForceBlacklisted: true})
	require.NoError(t, err)
	assert.Equal(t, blockedUUID, p.UUID)
	assert.True(t, p.BlacklistBypassed)

	cfg, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Plugins[p.ID].BlacklistBypassed)

	// a clean install carries no bypass mark
	clean, err := f.mgr.Install(ctx, InstallOptions{Source: coverArtURL})
	require.NoError(t, err)
	cfg, err = f.store.Load()
	require.NoError(t, err)
	assert.False(t, cfg.Plugins[clean.ID].BlacklistBypassed)
}

func TestInstallInvalidManifestRollsBack(t *testing.T) {
	f := newFixture(t)

	url := "https://example.org/broken.git"
	f.git.manifests[url] = `uuid = "12345678"` + "\n" + `name = "Broken"` + "\n"

	_, err := f.mgr.Install(context.Background(), InstallOptions{Source: url})
	var inv *plugerr.ManifestInvalidError
	require.ErrorAs(t, err, &inv)
	assert.GreaterOrEqual(t, len(inv.Violations), 2)

	entries, _ := os.ReadDir(f.paths.TempDir())
	assert.Empty(t, entries, "failed install must leave no temp state")

	_, statErr := os.Stat(f.paths.PluginsDir())
	if statErr == nil {
		entries, _ := os.ReadDir(f.paths.PluginsDir())
		assert.Empty(t, entries)
	}
}

func TestInstallDuplicateRejectedUnlessReinstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.installCoverArt(t)

	_, err := f.mgr.Install(ctx, InstallOptions{Source: "cover-art-fetcher"})
	var dup *plugerr.AlreadyInstalledError
	require.ErrorAs(t, err, &dup)

	p, err := f.mgr.Install(ctx, InstallOptions{Source: "cover-art-fetcher", Reinstall: true})
	require.NoError(t, err)
	assert.Equal(t, "cover-art-fetcher-b9a7f9d2", p.ID)
	assert.Len(t, f.mgr.List(), 1)
}

func TestReinstallRefusesDirtyCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)
	f.git.dirty[p.InstallPath] = true

	_, err := f.mgr.Install(ctx, InstallOptions{Source: "cover-art-fetcher", Reinstall: true})
	var dirty *plugerr.DirtyCheckoutError
	require.ErrorAs(t, err, &dirty)

	// previous install untouched
	assert.DirExists(t, p.InstallPath)
}

func TestInstallIncompatibleAPIEntersErrorState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url := "https://example.org/futuristic.git"
	f.git.manifests[url] = manifestFor("0a1b2c3d-1111-4222-8333-444455556666", "Futuristic", "9.0")

	p, err := f.mgr.Install(ctx, InstallOptions{Source: url})
	var incompat *plugerr.IncompatibleAPIError
	require.ErrorAs(t, err, &incompat)

	// installed but unusable until reloaded under a compatible host
	require.NotNil(t, p)
	assert.Equal(t, state.Error, p.State())
	assert.DirExists(t, p.InstallPath)

	err = f.mgr.Enable(ctx, p.ID)
	var stateErr *plugerr.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestEnableDisableIdempotenceRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)

	require.NoError(t, f.mgr.Enable(ctx, p.ID))
	assert.Equal(t, state.Enabled, p.State())

	err := f.mgr.Enable(ctx, p.ID)
	var stateErr *plugerr.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, state.Enabled, p.State(), "state unchanged after rejected double enable")

	require.NoError(t, f.mgr.Disable(p.ID))
	err = f.mgr.Disable(p.ID)
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, state.Disabled, p.State())
}

type fakeUnit struct {
	enabled  int
	disabled int
	fail     bool
}

func (u *fakeUnit) OnEnable(ctx context.Context) error {
	if u.fail {
		return fmt.Errorf("boom")
	}
	u.enabled++
	return nil
}
func (u *fakeUnit) OnDisable() error {
	u.disabled++
	return nil
}

func TestEnableDrivesLifecycleHooks(t *testing.T) {
	unit := &fakeUnit{}
	f := newFixture(t, func(o *Options) {
		o.Factory = func(ctx context.Context, installPath string) (loader.Loadable, error) {
			return unit, nil
		}
	})
	ctx := context.Background()

	p := f.installCoverArt(t)
	require.NoError(t, f.mgr.Enable(ctx, p.ID))
	assert.Equal(t, 1, unit.enabled)

	require.NoError(t, f.mgr.Disable(p.ID))
	assert.Equal(t, 1, unit.disabled)
}

func TestEnableHookFailureEntersError(t *testing.T) {
	unit := &fakeUnit{fail: true}
	f := newFixture(t, func(o *Options) {
		o.Factory = func(ctx context.Context, installPath string) (loader.Loadable, error) {
			return unit, nil
		}
	})
	ctx := context.Background()

	p := f.installCoverArt(t)
	require.Error(t, f.mgr.Enable(ctx, p.ID))
	assert.Equal(t, state.Error, p.State())
}

func TestLoadInstalledFailsEntryWithoutUUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// hand-edited config: entry with neither UUID nor a checkout on disk
	require.NoError(t, f.store.PutPlugin("mystery-plugin", config.PluginEntry{
		URL: "https://example.org/mystery.git",
	}))
	require.NoError(t, f.mgr.LoadInstalled(ctx))

	p, err := f.mgr.Get("mystery-plugin")
	require.NoError(t, err)
	assert.Equal(t, state.Error, p.State())
	assert.Contains(t, p.FailureReason(), "has no uuid")
}

func TestRestoreEnabledOnlyRestoresPersistedEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)

	url := "https://example.org/plugins/lyrics-lookup.git"
	f.git.manifests[url] = manifestFor("1c2d3e4f-aaaa-4bbb-8ccc-0d1e2f3a4b5c", "Lyrics Lookup")
	p2, err := f.mgr.Install(ctx, InstallOptions{Source: url})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Enable(ctx, p.ID))

	// simulate process restart
	require.NoError(t, f.mgr.LoadInstalled(ctx))
	errs := f.mgr.RestoreEnabled(ctx)
	assert.Empty(t, errs)

	restored, err := f.mgr.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, state.Enabled, restored.State())

	other, err := f.mgr.Get(p2.ID)
	require.NoError(t, err)
	assert.Equal(t, state.Loaded, other.State())
}

func TestUpdateBranchPluginAndPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url := "https://example.org/branchy.git"
	f.git.manifests[url] = manifestFor("3e4f5a6b-2222-4333-8444-555566667777", "Branchy")
	p, err := f.mgr.Install(ctx, InstallOptions{Source: url, Ref: "main"})
	require.NoError(t, err)

	f.git.remote = "commit-2"
	report, err := f.mgr.Update(ctx, p.ID, "")
	require.NoError(t, err)
	assert.True(t, report.Changed)
	assert.Equal(t, "commit-2", report.NewCommit)

	cfg, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "commit-2", cfg.Plugins[p.ID].Commit)
}

func TestUpdateDirtyCheckoutFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)
	f.git.dirty[p.InstallPath] = true

	_, err := f.mgr.Update(ctx, p.ID, "")
	var dirty *plugerr.DirtyCheckoutError
	require.ErrorAs(t, err, &dirty)
}

func TestUpdateAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)

	url := "https://example.org/plugins/lyrics-lookup.git"
	f.git.manifests[url] = manifestFor("1c2d3e4f-aaaa-4bbb-8ccc-0d1e2f3a4b5c", "Lyrics Lookup")
	p2, err := f.mgr.Install(ctx, InstallOptions{Source: url, Ref: "main"})
	require.NoError(t, err)

	// first plugin dirty (fails), second clean (updates)
	f.git.dirty[p.InstallPath] = true
	f.git.remote = "commit-2"

	reports := f.mgr.UpdateAll(ctx)
	require.Len(t, reports, 2)

	byID := map[string]UpdateReport{}
	for _, r := range reports {
		byID[r.ID] = r
	}
	assert.Error(t, byID[p.ID].Err)
	assert.NoError(t, byID[p2.ID].Err)
}

func TestCheckUpdatesDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url := "https://example.org/branchy.git"
	f.git.manifests[url] = manifestFor("3e4f5a6b-2222-4333-8444-555566667777", "Branchy")
	p, err := f.mgr.Install(ctx, InstallOptions{Source: url, Ref: "main"})
	require.NoError(t, err)

	f.git.remote = "commit-2"
	reports := f.mgr.CheckUpdates(ctx)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Changed)

	// persisted commit untouched
	cfg, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "commit-1", cfg.Plugins[p.ID].Commit)
}

func TestSwitchRefValidatesAgainstRegistryRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.installCoverArt(t)

	_, err := f.mgr.SwitchRef(ctx, p.ID, "nonsense")
	var refErr *plugerr.RefSwitchFailedError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, []string{"main", "tagforge-v3"}, refErr.Alternatives)

	report, err := f.mgr.SwitchRef(ctx, p.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, "main", report.NewRef)
}

func TestUpdateSyncsRedirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldURL := "https://old.example.org/lyrics.git"
	f.git.manifests[oldURL] = manifestFor("1c2d3e4f-aaaa-4bbb-8ccc-0d1e2f3a4b5c", "Lyrics Lookup")
	p, err := f.mgr.Install(ctx, InstallOptions{Source: oldURL, Ref: "main"})
	require.NoError(t, err)

	_, err = f.mgr.Update(ctx, p.ID, "")
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/plugins/lyrics-lookup.git", p.URL)
	assert.Equal(t, oldURL, p.OriginalURL)

	cfg, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, oldURL, cfg.Plugins[p.ID].OriginalURL)
}

func TestInstallFromUnknownSourceFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Install(context.Background(), InstallOptions{Source: "no-such-plugin"})
	var notFound *plugerr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestValidateStandalone(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	vs := f.mgr.Validate(dir)
	require.Len(t, vs, 1) // manifest missing

	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName),
		[]byte(manifestFor(coverArtUUID, "Fine")), 0644))
	assert.Empty(t, f.mgr.Validate(dir))
}
