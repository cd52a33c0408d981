package plugerr

import (
	"fmt"
	"strings"
)

// Violation is a single manifest validation failure
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// BlacklistedError indicates the plugin is blocked by the registry blacklist
type BlacklistedError struct {
	URL      string
	UUID     string
	Reason   string
	Bypassed bool
}

func (e *BlacklistedError) Error() string {
	if e.Bypassed {
		return fmt.Sprintf("blacklist match bypassed: %s", e.Reason)
	}
	return fmt.Sprintf("plugin is blacklisted: %s", e.Reason)
}

// AlreadyInstalledError indicates a plugin with the same UUID or URL exists
type AlreadyInstalledError struct {
	ID   string
	UUID string
	URL  string
}

func (e *AlreadyInstalledError) Error() string {
	return fmt.Sprintf("plugin %s is already installed", e.ID)
}

// DirtyCheckoutError indicates local uncommitted changes block a destructive operation
type DirtyCheckoutError struct {
	Path string
}

func (e *DirtyCheckoutError) Error() string {
	return fmt.Sprintf("checkout at %s has uncommitted local changes", e.Path)
}

// ManifestNotFoundError indicates the manifest file is missing from the checkout
type ManifestNotFoundError struct {
	Path string
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found: %s", e.Path)
}

// ManifestInvalidError carries every validation violation found in one pass
type ManifestInvalidError struct {
	Violations []Violation
}

func (e *ManifestInvalidError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid manifest (%d problems): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// NoGitSourceError indicates the source is neither a registry id, git URL nor local repo
type NoGitSourceError struct {
	Source string
}

func (e *NoGitSourceError) Error() string {
	return fmt.Sprintf("no git source for %q", e.Source)
}

// RefSwitchFailedError carries the valid alternatives for the caller to surface
type RefSwitchFailedError struct {
	Ref          string
	Alternatives []string
}

func (e *RefSwitchFailedError) Error() string {
	if len(e.Alternatives) == 0 {
		return fmt.Sprintf("ref %q does not exist", e.Ref)
	}
	return fmt.Sprintf("ref %q does not exist, valid refs: %s", e.Ref, strings.Join(e.Alternatives, ", "))
}

// NoUUIDError indicates an installed plugin has no recorded UUID
type NoUUIDError struct {
	ID string
}

func (e *NoUUIDError) Error() string {
	return fmt.Sprintf("plugin %s has no uuid", e.ID)
}

// IncompatibleAPIError indicates no overlap between the manifest's api list
// and the host's supported versions
type IncompatibleAPIError struct {
	ID          string
	PluginAPIs  []string
	HostVersion string
}

func (e *IncompatibleAPIError) Error() string {
	return fmt.Sprintf("plugin %s supports api versions %s, host is %s",
		e.ID, strings.Join(e.PluginAPIs, ", "), e.HostVersion)
}

// NetworkError wraps a transient network failure; retrying the operation is safe
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// GitError wraps a failed git invocation with its captured stderr
type GitError struct {
	Op     string
	Path   string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("git %s failed: %s", e.Op, msg)
}

func (e *GitError) Unwrap() error { return e.Err }

// NotFoundError indicates no installed plugin or registry entry matches
type NotFoundError struct {
	Kind string // "plugin" or "registry entry"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// CancelledError indicates the user aborted an interactive operation
type CancelledError struct{}

func (e *CancelledError) Error() string { return "cancelled" }

// RegistryInvalidError indicates the registry document itself is malformed,
// e.g. two entries claiming the same redirect source or a redirect cycle
type RegistryInvalidError struct {
	Reason string
}

func (e *RegistryInvalidError) Error() string {
	return fmt.Sprintf("invalid registry: %s", e.Reason)
}

// StateError indicates an illegal lifecycle transition, e.g. double enable
type StateError struct {
	ID      string
	From    string
	Event   string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin %s: %s (state %s)", e.ID, e.Message, e.From)
}
