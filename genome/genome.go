// Package genome maps source-specific sequence names to the canonical names
// of a reference genome. Alignment inputs commonly disagree on naming ("1"
// vs. "chr1", "MT" vs. "chrM"); a Resolver reconciles them so that records
// from different inputs can be compared by sequence name.
package genome

import (
	"strings"
)

// Resolver maps a sequence name used by one input to the genome's canonical
// name. Implementations must be pure: the same input always yields the same
// output for the lifetime of the resolver.
type Resolver interface {
	// CanonicalName returns the canonical name for the given name. Names
	// with no known canonical form are returned unchanged.
	CanonicalName(name string) string
}

type identity struct{}

func (identity) CanonicalName(name string) string { return name }

// Identity returns a Resolver that treats every name as already canonical.
func Identity() Resolver {
	return identity{}
}

type aliasResolver struct {
	aliases map[string]string
}

// NewResolver creates a Resolver for a genome whose sequences have the given
// canonical names. Each canonical name resolves to itself, and the standard
// naming variants are registered as aliases: the "chr" prefix may be added
// or dropped ("1" for "chr1"), the mitochondrial contig may be named "MT" or
// "chrM", and lookups fall back to case-insensitive matching. Entries in
// extra override and extend the generated table; keys are alias names,
// values canonical names.
func NewResolver(canonicalNames []string, extra map[string]string) Resolver {
	aliases := make(map[string]string, 4*len(canonicalNames))
	put := func(alias, canonical string) {
		aliases[alias] = canonical
		aliases[strings.ToLower(alias)] = canonical
	}
	for _, name := range canonicalNames {
		put(name, name)
		if stripped := strings.TrimPrefix(name, "chr"); stripped != name {
			put(stripped, name)
		} else {
			put("chr"+name, name)
		}
		switch name {
		case "chrM", "M":
			put("MT", name)
		case "MT":
			put("chrM", name)
			put("M", name)
		}
	}
	for alias, canonical := range extra {
		put(alias, canonical)
	}
	return &aliasResolver{aliases: aliases}
}

func (r *aliasResolver) CanonicalName(name string) string {
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	if canonical, ok := r.aliases[strings.ToLower(name)]; ok {
		return canonical
	}
	return name
}
