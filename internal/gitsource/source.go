package gitsource

import (
	"context"

	"go.uber.org/zap"
)

// Checkout is a local working copy of a plugin repository
type Checkout struct {
	Path string
	URL  string
	Ref  string
}

// UpdateResult reports what an update did (or would do)
type UpdateResult struct {
	OldRef    string
	NewRef    string
	OldCommit string
	NewCommit string
	Changed   bool
}

// Source performs repository operations for the plugin manager on top of
// a git Client, applying the ref-kind update semantics.
type Source struct {
	git Client
	log *zap.Logger
}

// NewSource creates a Source backed by the given client
func NewSource(client Client, logger *zap.Logger) *Source {
	return &Source{git: client, log: logger}
}

// Clone clones url into dest checked out at ref (empty ref = default branch)
// and returns the resulting commit.
func (s *Source) Clone(ctx context.Context, url, ref, dest string) (string, error) {
	var err error
	switch {
	case ref == "":
		err = s.git.Clone(ctx, url, dest)
	case IsCommitHash(ref):
		if err = s.git.Clone(ctx, url, dest); err == nil {
			err = s.git.Checkout(ctx, dest, ref)
		}
	default:
		err = s.git.CloneBranch(ctx, url, ref, dest)
	}
	if err != nil {
		return "", err
	}

	commit, err := s.git.CurrentCommit(dest)
	if err != nil {
		return "", err
	}

	s.log.Debug("cloned plugin repository",
		zap.String("url", url),
		zap.String("ref", ref),
		zap.String("commit", commit),
	)
	return commit, nil
}

// FetchRemoteRef resolves a ref on the remote without cloning
func (s *Source) FetchRemoteRef(ctx context.Context, url, ref string) (string, error) {
	return s.git.LsRemote(ctx, url, ref)
}

// KindOf classifies the installed ref of a checkout. Pattern checks come
// first; ambiguous names are resolved against the repository's actual refs.
func (s *Source) KindOf(ctx context.Context, co Checkout) RefKind {
	switch {
	case co.Ref == "":
		return KindBranch
	case IsVersionTag(co.Ref):
		return KindVersionTag
	case IsCommitHash(co.Ref):
		return KindCommit
	case s.git.TagExists(co.Path, co.Ref):
		return KindTag
	case s.git.RemoteBranchExists(ctx, co.Path, co.Ref):
		return KindBranch
	default:
		return KindBranch
	}
}

// Update brings a checkout to its newest allowed state per ref kind:
// branches fast-forward to the remote tip, version tags move to the highest
// newer tag in the same family, plain tags and commits never move.
func (s *Source) Update(ctx context.Context, co Checkout) (UpdateResult, error) {
	return s.update(ctx, co, true)
}

// CheckUpdate reports what Update would do without touching the working
// tree. It is restricted to the currently installed ref and never switches
// branches or tag families.
func (s *Source) CheckUpdate(ctx context.Context, co Checkout) (UpdateResult, error) {
	return s.update(ctx, co, false)
}

func (s *Source) update(ctx context.Context, co Checkout, apply bool) (UpdateResult, error) {
	current, err := s.git.CurrentCommit(co.Path)
	if err != nil {
		return UpdateResult{}, err
	}

	res := UpdateResult{OldRef: co.Ref, NewRef: co.Ref, OldCommit: current, NewCommit: current}

	switch s.KindOf(ctx, co) {
	case KindCommit, KindTag:
		// immutable; only an explicit ref switch moves these
		return res, nil

	case KindBranch:
		if err := s.git.Fetch(ctx, co.Path); err != nil {
			return res, err
		}
		remote, err := s.git.RemoteCommit(ctx, co.Path, co.Ref)
		if err != nil {
			return res, err
		}
		if remote == current {
			return res, nil
		}
		res.NewCommit = remote
		res.Changed = true
		if apply {
			if err := s.git.ResetHard(ctx, co.Path, remote); err != nil {
				return res, err
			}
		}

	case KindVersionTag:
		if err := s.git.FetchTags(ctx, co.Path); err != nil {
			return res, err
		}
		tags, err := s.git.Tags(co.Path)
		if err != nil {
			return res, err
		}
		newest, ok := LatestInFamily(tags, co.Ref)
		if !ok {
			return res, nil
		}
		res.NewRef = newest
		res.Changed = true
		if apply {
			if err := s.git.Checkout(ctx, co.Path, newest); err != nil {
				return res, err
			}
			if res.NewCommit, err = s.git.CurrentCommit(co.Path); err != nil {
				return res, err
			}
		}
	}

	if res.Changed {
		s.log.Info("checkout updated",
			zap.String("path", co.Path),
			zap.String("old_ref", res.OldRef),
			zap.String("new_ref", res.NewRef),
			zap.String("old_commit", res.OldCommit),
			zap.String("new_commit", res.NewCommit),
			zap.Bool("applied", apply),
		)
	}
	return res, nil
}

// SwitchRef moves a checkout to an explicitly chosen ref
func (s *Source) SwitchRef(ctx context.Context, co Checkout, newRef string) (UpdateResult, error) {
	current, err := s.git.CurrentCommit(co.Path)
	if err != nil {
		return UpdateResult{}, err
	}
	res := UpdateResult{OldRef: co.Ref, NewRef: newRef, OldCommit: current}

	if err := s.git.FetchTags(ctx, co.Path); err != nil {
		return res, err
	}
	if err := s.git.Checkout(ctx, co.Path, newRef); err != nil {
		// checkout of a remote-only branch needs the origin/ prefix
		if err2 := s.git.Checkout(ctx, co.Path, "origin/"+newRef); err2 != nil {
			return res, err
		}
	}

	if res.NewCommit, err = s.git.CurrentCommit(co.Path); err != nil {
		return res, err
	}
	res.Changed = res.NewCommit != res.OldCommit

	s.log.Info("checkout switched ref",
		zap.String("path", co.Path),
		zap.String("old_ref", res.OldRef),
		zap.String("new_ref", res.NewRef),
	)
	return res, nil
}

// Tags fetches and lists all tags of a checkout
func (s *Source) Tags(ctx context.Context, co Checkout) ([]string, error) {
	if err := s.git.FetchTags(ctx, co.Path); err != nil {
		return nil, err
	}
	return s.git.Tags(co.Path)
}

// LatestForScheme picks the newest version tag of a remote repository,
// used at install time when the registry declares a versioning scheme.
func (s *Source) LatestForScheme(ctx context.Context, co Checkout) (string, bool, error) {
	tags, err := s.Tags(ctx, co)
	if err != nil {
		return "", false, err
	}
	tag, ok := LatestVersionTag(tags)
	return tag, ok, nil
}

// IsDirty reports uncommitted local modifications in a checkout
func (s *Source) IsDirty(co Checkout) (bool, error) {
	return s.git.IsDirty(co.Path)
}

// IsRepository reports whether path holds a git working copy
func (s *Source) IsRepository(path string) bool {
	return s.git.IsGitRepository(path)
}

// CurrentCommit returns the commit a checkout is at
func (s *Source) CurrentCommit(co Checkout) (string, error) {
	return s.git.CurrentCommit(co.Path)
}
