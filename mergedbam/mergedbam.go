// Package mergedbam performs a logical merge of sorted alignment sources.
//
// A Reader presents any number of align.Readers — each independently sorted
// and possibly using its own sequence naming convention — as one stream
// sorted by (canonical sequence name, start position). Records are pulled
// lazily from each source through a k-way merge; the full record sets are
// never materialized.
//
// Sequence names are reconciled through a genome.Resolver: the merged
// catalogue uses canonical names, and range queries are translated back to
// each source's own naming before the source is consulted. A source that
// has no name for the queried sequence simply contributes no records.
package mergedbam

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bammerge/align"
	"github.com/grailbio/bammerge/genome"
	"github.com/grailbio/hts/sam"
)

// ErrRemoveUnsupported is returned by Iterator.Remove. The merged stream is
// read-only.
var ErrRemoveUnsupported = stderrors.New("mergedbam: removing records from a merged stream is not supported")

// sourceLabel identifies a source in error messages. Sources that expose a
// Name, such as align.BAMReader, get it quoted next to their position in
// the input list; others are identified by position alone.
func sourceLabel(i int, r align.Reader) string {
	if named, ok := r.(interface{ Name() string }); ok {
		if name := named.Name(); name != "" {
			return fmt.Sprintf("%d (%s)", i, name)
		}
	}
	return strconv.Itoa(i)
}

// Reader is the merged view over a set of sources. It implements
// align.Reader itself, so merged readers compose with single-source ones.
// The reader is read-only after construction and supports multiple
// concurrently open iterators, provided the underlying sources do. Thread
// safe.
type Reader struct {
	resolver genome.Resolver
	readers  []align.Reader
	maps     *nameMaps
	headers  []*sam.Header

	mu           sync.Mutex
	headerMerged bool
	header       *sam.Header
	headerErr    error
	closed       bool
	closeErr     error
}

// New creates a merged Reader over the given sources. The sequence-name
// catalogue and each source's header are loaded eagerly: if either fails
// for any source, New fails and no partially initialized reader is
// returned. Each source must already be sorted in coordinate order; the
// merge interleaves, it does not sort.
func New(resolver genome.Resolver, readers ...align.Reader) (*Reader, error) {
	if len(readers) == 0 {
		return nil, stderrors.New("mergedbam: no sources given")
	}
	maps, err := buildNameMaps(resolver, readers)
	if err != nil {
		return nil, err
	}
	headers := make([]*sam.Header, len(readers))
	for i, reader := range readers {
		if headers[i], err = reader.Header(); err != nil {
			return nil, errors.E(err, fmt.Sprintf("loading header of source %s", sourceLabel(i, reader)))
		}
	}
	return &Reader{
		resolver: resolver,
		readers:  readers,
		maps:     maps,
		headers:  headers,
	}, nil
}

// SequenceNames implements the align.Reader interface. It returns the
// canonical names of all sequences across all sources, ordered by first
// discovery while scanning sources in input order. The result is stable for
// the lifetime of the reader.
func (r *Reader) SequenceNames() ([]string, error) {
	names := make([]string, len(r.maps.catalogue))
	copy(names, r.maps.catalogue)
	return names, nil
}

// Platforms implements the align.Reader interface. It returns the union of
// the sources' platform tags, sorted.
func (r *Reader) Platforms() []string {
	seen := map[string]bool{}
	for _, reader := range r.readers {
		for _, platform := range reader.Platforms() {
			seen[platform] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	platforms := make([]string, 0, len(seen))
	for platform := range seen {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// HasIndex implements the align.Reader interface. It reports the index
// state of the first source only; the other sources are not checked for
// agreement. Known limitation.
func (r *Reader) HasIndex() bool {
	return r.readers[0].HasIndex()
}

// Header implements the align.Reader interface. The merge is computed on
// first call and cached. If no source header declares a sort order there is
// no merged header, and Header returns (nil, nil) rather than fabricating
// one.
func (r *Reader) Header() (*sam.Header, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.headerMerged {
		r.header, r.headerErr = mergeHeaders(r.headers)
		r.headerMerged = true
	}
	return r.header, r.headerErr
}

// Iterator implements the align.Reader interface. It merges full scans of
// every source. The returned iterator is a *Iterator.
func (r *Reader) Iterator() align.Iterator {
	return newMergedIterator(r.readers, r.maps, r.resolver, nil)
}

// Query implements the align.Reader interface. "name" is a canonical
// sequence name; it is translated to each source's own naming before the
// source's index is consulted. The returned iterator is a *Iterator.
func (r *Reader) Query(name string, start, end int, contained bool) align.Iterator {
	return newMergedIterator(r.readers, r.maps, r.resolver,
		&querySpec{name: name, start: start, end: end, contained: contained})
}

// Close implements the align.Reader interface. It closes every source
// exactly once. Safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		for i, reader := range r.readers {
			if err := reader.Close(); err != nil && r.closeErr == nil {
				r.closeErr = errors.E(err, fmt.Sprintf("closing source %s", sourceLabel(i, reader)))
			}
		}
	}
	return r.closeErr
}
