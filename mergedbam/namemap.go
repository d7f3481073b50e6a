package mergedbam

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bammerge/align"
	"github.com/grailbio/bammerge/genome"
)

// nameMaps holds the per-source sequence-name translations and the merged
// name catalogue. Built once at construction and immutable afterwards.
type nameMaps struct {
	// perSource[i] maps a canonical name to source i's own name for it.
	// If a source reports two names that canonicalize to the same name,
	// the one reported last wins.
	perSource []map[string]string
	// catalogue is the union of canonical names across all sources,
	// ordered by first discovery while scanning sources in input order.
	catalogue []string
}

func buildNameMaps(resolver genome.Resolver, readers []align.Reader) (*nameMaps, error) {
	m := &nameMaps{perSource: make([]map[string]string, len(readers))}
	seen := map[string]bool{}
	for i, reader := range readers {
		names, err := reader.SequenceNames()
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("listing sequence names of source %s", sourceLabel(i, reader)))
		}
		localNames := make(map[string]string, len(names))
		for _, name := range names {
			canonical := resolver.CanonicalName(name)
			localNames[canonical] = name
			if !seen[canonical] {
				seen[canonical] = true
				m.catalogue = append(m.catalogue, canonical)
			}
		}
		m.perSource[i] = localNames
	}
	return m, nil
}

// localName returns source i's own name for the given canonical name, and
// whether the source knows the sequence at all.
func (m *nameMaps) localName(i int, canonical string) (string, bool) {
	name, ok := m.perSource[i][canonical]
	return name, ok
}
