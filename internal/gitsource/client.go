package gitsource

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/tagforge/plugman/internal/plugerr"
)

// Client is the interface for git operations
type Client interface {
	Clone(ctx context.Context, url, dest string) error
	CloneBranch(ctx context.Context, url, ref, dest string) error
	Fetch(ctx context.Context, repoPath string) error
	FetchTags(ctx context.Context, repoPath string) error
	Checkout(ctx context.Context, repoPath, ref string) error
	ResetHard(ctx context.Context, repoPath, target string) error
	CurrentCommit(repoPath string) (string, error)
	RemoteCommit(ctx context.Context, repoPath, branch string) (string, error)
	LsRemote(ctx context.Context, url, ref string) (string, error)
	Tags(repoPath string) ([]string, error)
	RemoteBranchExists(ctx context.Context, repoPath, ref string) bool
	TagExists(repoPath, ref string) bool
	IsDirty(repoPath string) (bool, error)
	IsGitRepository(path string) bool
}

// DefaultClient shells out to the git binary. Every network command runs
// under a deadline so a stuck clone or fetch times out instead of hanging.
type DefaultClient struct {
	Timeout time.Duration
}

// NewClient creates a new git client
func NewClient() *DefaultClient {
	return &DefaultClient{
		Timeout: 5 * time.Minute,
	}
}

func (c *DefaultClient) network(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// run executes git with the given arguments, returning trimmed stdout
func (c *DefaultClient) run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		errMsg := stderr.String()
		if isNetworkError(errMsg) || ctx.Err() != nil {
			return "", &plugerr.NetworkError{URL: op, Err: &plugerr.GitError{Op: op, Stderr: errMsg, Err: err}}
		}
		return "", &plugerr.GitError{Op: op, Stderr: errMsg, Err: err}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Clone clones a repository at its default branch
func (c *DefaultClient) Clone(ctx context.Context, url, dest string) error {
	ctx, cancel := c.network(ctx)
	defer cancel()
	_, err := c.run(ctx, "clone", "clone", url, dest)
	return err
}

// CloneBranch clones a repository checked out at a branch or tag
func (c *DefaultClient) CloneBranch(ctx context.Context, url, ref, dest string) error {
	ctx, cancel := c.network(ctx)
	defer cancel()
	_, err := c.run(ctx, "clone", "clone", "--branch", ref, url, dest)
	return err
}

// Fetch fetches changes from remote without merging
func (c *DefaultClient) Fetch(ctx context.Context, repoPath string) error {
	ctx, cancel := c.network(ctx)
	defer cancel()
	_, err := c.run(ctx, "fetch", "-C", repoPath, "fetch", "--quiet", "--prune")
	return err
}

// FetchTags fetches all tags from remote
func (c *DefaultClient) FetchTags(ctx context.Context, repoPath string) error {
	ctx, cancel := c.network(ctx)
	defer cancel()
	_, err := c.run(ctx, "fetch", "-C", repoPath, "fetch", "--quiet", "--tags", "--prune")
	return err
}

// Checkout checks out a ref (branch, tag or commit) in a repository
func (c *DefaultClient) Checkout(ctx context.Context, repoPath, ref string) error {
	_, err := c.run(ctx, "checkout", "-C", repoPath, "checkout", "--quiet", ref)
	return err
}

// ResetHard resets the working tree to the given target
func (c *DefaultClient) ResetHard(ctx context.Context, repoPath, target string) error {
	_, err := c.run(ctx, "reset", "-C", repoPath, "reset", "--hard", "--quiet", target)
	return err
}

// CurrentCommit returns the current commit SHA
func (c *DefaultClient) CurrentCommit(repoPath string) (string, error) {
	return c.run(context.Background(), "rev-parse", "-C", repoPath, "rev-parse", "HEAD")
}

// RemoteCommit returns the latest commit SHA of a remote branch
func (c *DefaultClient) RemoteCommit(ctx context.Context, repoPath, branch string) (string, error) {
	if branch == "" {
		branch = "origin/HEAD"
	} else {
		branch = "origin/" + branch
	}
	return c.run(ctx, "rev-parse", "-C", repoPath, "rev-parse", branch)
}

// LsRemote resolves a ref on a remote repository without cloning it
func (c *DefaultClient) LsRemote(ctx context.Context, url, ref string) (string, error) {
	ctx, cancel := c.network(ctx)
	defer cancel()

	out, err := c.run(ctx, "ls-remote", "ls-remote", url, ref)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", &plugerr.GitError{Op: "ls-remote", Stderr: "ref " + ref + " not found on " + url}
	}

	fields := strings.Fields(out)
	return fields[0], nil
}

// Tags lists all local tags (fetch tags first to see remote state)
func (c *DefaultClient) Tags(repoPath string) ([]string, error) {
	out, err := c.run(context.Background(), "tag", "-C", repoPath, "tag", "--list")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// RemoteBranchExists reports whether origin has a branch with this name
func (c *DefaultClient) RemoteBranchExists(ctx context.Context, repoPath, ref string) bool {
	_, err := c.run(ctx, "show-ref", "-C", repoPath, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+ref)
	return err == nil
}

// TagExists reports whether a local tag with this name exists
func (c *DefaultClient) TagExists(repoPath, ref string) bool {
	_, err := c.run(context.Background(), "show-ref", "-C", repoPath, "show-ref", "--verify", "--quiet", "refs/tags/"+ref)
	return err == nil
}

// IsDirty reports whether the working tree has uncommitted modifications
func (c *DefaultClient) IsDirty(repoPath string) (bool, error) {
	out, err := c.run(context.Background(), "status", "-C", repoPath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// IsGitRepository checks if the given path is a git repository
func (c *DefaultClient) IsGitRepository(path string) bool {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--is-inside-work-tree")
	return cmd.Run() == nil
}

// isNetworkError checks if the error message indicates a transient network failure
func isNetworkError(msg string) bool {
	networkPatterns := []string{
		"Could not resolve host",
		"unable to access",
		"Connection refused",
		"Connection timed out",
		"Operation timed out",
		"early EOF",
		"The remote end hung up unexpectedly",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
