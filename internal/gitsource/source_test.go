package gitsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient simulates a repository with a remote tip and a tag list
type fakeClient struct {
	head        string
	remoteHead  string
	tags        []string
	tagCommits  map[string]string
	branches    map[string]bool
	dirty       bool
	resetCount  int
	checkouts   []string
	fetchedTags bool
}

func (f *fakeClient) Clone(ctx context.Context, url, dest string) error            { return nil }
func (f *fakeClient) CloneBranch(ctx context.Context, url, ref, dest string) error { return nil }
func (f *fakeClient) Fetch(ctx context.Context, repoPath string) error             { return nil }
func (f *fakeClient) FetchTags(ctx context.Context, repoPath string) error {
	f.fetchedTags = true
	return nil
}

func (f *fakeClient) Checkout(ctx context.Context, repoPath, ref string) error {
	f.checkouts = append(f.checkouts, ref)
	if c, ok := f.tagCommits[ref]; ok {
		f.head = c
	}
	return nil
}

func (f *fakeClient) ResetHard(ctx context.Context, repoPath, target string) error {
	f.resetCount++
	f.head = target
	return nil
}

func (f *fakeClient) CurrentCommit(repoPath string) (string, error) { return f.head, nil }

func (f *fakeClient) RemoteCommit(ctx context.Context, repoPath, branch string) (string, error) {
	return f.remoteHead, nil
}

func (f *fakeClient) LsRemote(ctx context.Context, url, ref string) (string, error) {
	return f.remoteHead, nil
}

func (f *fakeClient) Tags(repoPath string) ([]string, error) { return f.tags, nil }

func (f *fakeClient) RemoteBranchExists(ctx context.Context, repoPath, ref string) bool {
	return f.branches[ref]
}

func (f *fakeClient) TagExists(repoPath, ref string) bool {
	for _, t := range f.tags {
		if t == ref {
			return true
		}
	}
	return false
}

func (f *fakeClient) IsDirty(repoPath string) (bool, error) { return f.dirty, nil }
func (f *fakeClient) IsGitRepository(path string) bool      { return true }

func newTestSource(f *fakeClient) *Source {
	return NewSource(f, zap.NewNop())
}

func TestUpdateBranchFastForwards(t *testing.T) {
	f := &fakeClient{head: "aaa111", remoteHead: "bbb222", branches: map[string]bool{"main": true}}
	s := newTestSource(f)

	res, err := s.Update(context.Background(), Checkout{Path: "/p", Ref: "main"})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, "aaa111", res.OldCommit)
	assert.Equal(t, "bbb222", res.NewCommit)
	assert.Equal(t, 1, f.resetCount)
}

func TestUpdateVersionTagPicksHighestInFamily(t *testing.T) {
	f := &fakeClient{
		head:       "c1",
		tags:       []string{"v1.0.0", "v1.2.0", "v2.0.0", "stable"},
		tagCommits: map[string]string{"v2.0.0": "c2"},
	}
	s := newTestSource(f)

	res, err := s.Update(context.Background(), Checkout{Path: "/p", Ref: "v1.0.0"})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, "v2.0.0", res.NewRef)
	assert.Equal(t, "c2", res.NewCommit)
	assert.Equal(t, []string{"v2.0.0"}, f.checkouts)
}

func TestUpdateNonVersionTagIsImmutable(t *testing.T) {
	f := &fakeClient{head: "c1", tags: []string{"stable", "v2.0.0"}}
	s := newTestSource(f)

	res, err := s.Update(context.Background(), Checkout{Path: "/p", Ref: "stable"})
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Empty(t, f.checkouts)
	assert.Equal(t, res.OldCommit, res.NewCommit)
}

func TestUpdateCommitIsImmutable(t *testing.T) {
	f := &fakeClient{head: "a1b2c3d4e5f", remoteHead: "fff000"}
	s := newTestSource(f)

	res, err := s.Update(context.Background(), Checkout{Path: "/p", Ref: "a1b2c3d4e5f"})
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Zero(t, f.resetCount)
}

func TestCheckUpdateNeverMutates(t *testing.T) {
	f := &fakeClient{head: "aaa111", remoteHead: "bbb222", branches: map[string]bool{"main": true}}
	s := newTestSource(f)

	res, err := s.CheckUpdate(context.Background(), Checkout{Path: "/p", Ref: "main"})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Zero(t, f.resetCount)
	assert.Empty(t, f.checkouts)
	assert.Equal(t, "aaa111", f.head)
}

func TestSwitchRef(t *testing.T) {
	f := &fakeClient{
		head:       "c1",
		tags:       []string{"v1.0.0", "v2.0.0"},
		tagCommits: map[string]string{"v2.0.0": "c2"},
	}
	s := newTestSource(f)

	res, err := s.SwitchRef(context.Background(), Checkout{Path: "/p", Ref: "v1.0.0"}, "v2.0.0")
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, "v1.0.0", res.OldRef)
	assert.Equal(t, "v2.0.0", res.NewRef)
	assert.Equal(t, "c2", res.NewCommit)
}

func TestKindOf(t *testing.T) {
	f := &fakeClient{tags: []string{"stable"}, branches: map[string]bool{"develop": true}}
	s := newTestSource(f)
	ctx := context.Background()

	assert.Equal(t, KindVersionTag, s.KindOf(ctx, Checkout{Ref: "v1.2.3"}))
	assert.Equal(t, KindCommit, s.KindOf(ctx, Checkout{Ref: "0123456789abcdef0123456789abcdef01234567"}))
	assert.Equal(t, KindTag, s.KindOf(ctx, Checkout{Ref: "stable"}))
	assert.Equal(t, KindBranch, s.KindOf(ctx, Checkout{Ref: "develop"}))
	assert.Equal(t, KindBranch, s.KindOf(ctx, Checkout{Ref: ""}))
}
