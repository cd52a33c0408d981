package search

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/tagforge/plugman/internal/registry"
)

// Doc is one searchable plugin, built from a registry entry or an
// installed plugin's manifest.
type Doc struct {
	ID          string
	Name        string
	Description string
	Extra       []string // categories, ref names, trust level
}

// Result pairs a matched doc with its fuzzy score
type Result struct {
	Doc   Doc
	Score int // higher is better
}

// docSource wraps docs for fuzzy searching
type docSource []Doc

// String returns the searchable string for a doc
func (d docSource) String(i int) string {
	doc := d[i]
	parts := []string{doc.ID}

	if doc.Name != "" {
		parts = append(parts, doc.Name)
	}
	if doc.Description != "" {
		parts = append(parts, doc.Description)
	}
	parts = append(parts, doc.Extra...)

	return strings.ToLower(strings.Join(parts, " "))
}

// Len returns the number of docs
func (d docSource) Len() int {
	return len(d)
}

// FromEntries builds search docs from registry entries
func FromEntries(entries []registry.Entry) []Doc {
	docs := make([]Doc, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, Doc{
			ID:          e.ID,
			Name:        strings.ReplaceAll(e.ID, "-", " "),
			Description: e.GitURL,
			Extra:       append(e.RefNames(), string(e.TrustLevel)),
		})
	}
	return docs
}

// FuzzySearch performs a fuzzy search across all docs
func FuzzySearch(docs []Doc, query string) []Result {
	var results []Result
	query = strings.ToLower(query)

	matches := fuzzy.FindFrom(query, docSource(docs))
	for _, match := range matches {
		results = append(results, Result{
			Doc:   docs[match.Index],
			Score: match.Score,
		})
	}

	// Sort by score (descending)
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// SimpleSearch performs a simple substring search
func SimpleSearch(docs []Doc, query string) []Result {
	var results []Result
	query = strings.ToLower(query)

	for _, doc := range docs {
		if matchesQuery(doc, query) {
			results = append(results, Result{
				Doc:   doc,
				Score: 100, // Default score for simple matches
			})
		}
	}

	return results
}

// matchesQuery checks if a doc matches the search query
func matchesQuery(doc Doc, query string) bool {
	if strings.Contains(strings.ToLower(doc.ID), query) {
		return true
	}
	if strings.Contains(strings.ToLower(doc.Name), query) {
		return true
	}
	if strings.Contains(strings.ToLower(doc.Description), query) {
		return true
	}
	for _, extra := range doc.Extra {
		if strings.Contains(strings.ToLower(extra), query) {
			return true
		}
	}
	return false
}
