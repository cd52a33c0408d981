package registry

import (
	"context"
	"fmt"

	"github.com/tagforge/plugman/internal/plugerr"
)

// maxRedirectHops bounds redirect-chain traversal; longer chains are a
// registry fault, not something to follow indefinitely.
const maxRedirectHops = 50

// Redirect is the outcome of resolving an installed plugin against the
// registry's redirect records.
type Redirect struct {
	Entry        *Entry
	OriginalURL  string // set when the URL was redirected
	OriginalUUID string // set when the UUID was redirected
	Moved        bool
}

// ResolveRedirect maps an installed plugin's UUID/URL to its current
// registry entry, following redirect_from / redirect_from_uuid chains with
// a hop limit and cycle detection. A stale entry whose own identity appears
// in another entry's redirect lists is chased until the chain settles. No
// match at all returns a NotFoundError.
func (c *Client) ResolveRedirect(ctx context.Context, url, uuid string) (*Redirect, error) {
	doc, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	cur := findDirect(doc, NormalizeURL(url), uuid)
	if cur == nil {
		cur, err = findRedirected(doc, NormalizeURL(url), uuid)
		if err != nil {
			return nil, err
		}
	}
	if cur == nil {
		return nil, &plugerr.NotFoundError{Kind: "registry entry", Key: url}
	}

	seen := make(map[string]bool)
	for hop := 0; hop < maxRedirectHops; hop++ {
		k := key(NormalizeURL(cur.GitURL), cur.UUID)
		if seen[k] {
			return nil, &plugerr.RegistryInvalidError{Reason: "redirect cycle involving " + cur.GitURL}
		}
		seen[k] = true

		next, err := findRedirected(doc, NormalizeURL(cur.GitURL), cur.UUID)
		if err != nil {
			return nil, err
		}
		// next == cur is an entry listing its own URL as a prior
		// identity (moved away and back), not a further hop
		if next == nil || next == cur {
			r := &Redirect{Entry: cur}
			if url != "" && NormalizeURL(cur.GitURL) != NormalizeURL(url) {
				r.OriginalURL = url
				r.Moved = true
			}
			if uuid != "" && cur.UUID != uuid {
				r.OriginalUUID = uuid
				r.Moved = true
			}
			return r, nil
		}
		cur = next
	}

	return nil, &plugerr.RegistryInvalidError{
		Reason: fmt.Sprintf("redirect chain longer than %d hops from %s", maxRedirectHops, url),
	}
}

func key(url, uuid string) string { return url + "\x00" + uuid }

func findDirect(doc *Document, url, uuid string) *Entry {
	for i := range doc.Plugins {
		e := &doc.Plugins[i]
		if (uuid != "" && e.UUID == uuid) || (url != "" && NormalizeURL(e.GitURL) == url) {
			return e
		}
	}
	return nil
}

// findRedirected locates the entry claiming url/uuid as a prior identity.
// Two entries claiming the same source is a registry fault.
func findRedirected(doc *Document, url, uuid string) (*Entry, error) {
	var found *Entry
	for i := range doc.Plugins {
		e := &doc.Plugins[i]
		if !claimsRedirect(e, url, uuid) {
			continue
		}
		if found != nil {
			return nil, &plugerr.RegistryInvalidError{
				Reason: fmt.Sprintf("entries %s and %s both redirect from %s", found.ID, e.ID, url),
			}
		}
		found = e
	}
	return found, nil
}

func claimsRedirect(e *Entry, url, uuid string) bool {
	for _, from := range e.RedirectFrom {
		if url != "" && NormalizeURL(from) == url {
			return true
		}
	}
	for _, from := range e.RedirectFromUUID {
		if uuid != "" && from == uuid {
			return true
		}
	}
	return false
}

// Validate checks registry-level consistency: unique ids and uuids, and no
// redirect source claimed by more than one entry.
func Validate(doc *Document) error {
	ids := make(map[string]bool)
	uuids := make(map[string]bool)
	redirectURLs := make(map[string]string)  // normalized source url -> entry id
	redirectUUIDs := make(map[string]string) // source uuid -> entry id

	for i := range doc.Plugins {
		e := &doc.Plugins[i]

		if ids[e.ID] {
			return &plugerr.RegistryInvalidError{Reason: "duplicate plugin id " + e.ID}
		}
		ids[e.ID] = true

		if e.UUID != "" {
			if uuids[e.UUID] {
				return &plugerr.RegistryInvalidError{Reason: "duplicate plugin uuid " + e.UUID}
			}
			uuids[e.UUID] = true
		}

		for _, from := range e.RedirectFrom {
			n := NormalizeURL(from)
			if prev, ok := redirectURLs[n]; ok {
				return &plugerr.RegistryInvalidError{
					Reason: fmt.Sprintf("entries %s and %s both redirect from %s", prev, e.ID, from),
				}
			}
			redirectURLs[n] = e.ID
		}
		for _, from := range e.RedirectFromUUID {
			if prev, ok := redirectUUIDs[from]; ok {
				return &plugerr.RegistryInvalidError{
					Reason: fmt.Sprintf("entries %s and %s both redirect from uuid %s", prev, e.ID, from),
				}
			}
			redirectUUIDs[from] = e.ID
		}
	}

	return nil
}
