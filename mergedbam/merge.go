package mergedbam

import (
	"fmt"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/bammerge/align"
	"github.com/grailbio/bammerge/genome"
	"github.com/grailbio/hts/sam"
)

// querySpec describes a range restriction on a merged iteration. nil means
// a full scan.
type querySpec struct {
	name       string // canonical sequence name
	start, end int
	contained  bool
}

// Iterator merges the streams of several child iterators into one stream
// ordered by (canonical sequence name, start position). The leaves tree
// holds one mergeLeaf per child that still has a buffered record, keyed by
// the buffered record's ordering key; allIters additionally retains every
// child iterator ever opened, including exhausted ones, so that Close can
// release them all. Thread compatible.
type Iterator struct {
	allIters []align.Iterator
	leaves   llrb.Tree
	rec      *sam.Record
	err      error
	closed   bool
}

// mergeLeaf pairs one child iterator with its currently buffered record.
// The record's canonical sequence name is resolved once per advance, not on
// every comparison.
type mergeLeaf struct {
	// seq is the index of the originating source. It breaks ties between
	// records with equal ordering keys so that the merge order is
	// reproducible.
	seq int
	// label identifies the source in error messages.
	label    string
	iter     align.Iterator
	resolver genome.Resolver

	rec      *sam.Record
	name     string
	unmapped bool
}

// advance pulls the child's next record into the leaf. It returns false
// when the child is exhausted or fails; the caller distinguishes the two
// via iter.Err.
func (l *mergeLeaf) advance() bool {
	if !l.iter.Scan() {
		return false
	}
	l.rec = l.iter.Record()
	if l.rec.Ref == nil {
		l.name, l.unmapped = "", true
	} else {
		l.name, l.unmapped = l.resolver.CanonicalName(l.rec.Ref.Name()), false
	}
	return true
}

// Compare implements llrb.Comparable. Records order by canonical sequence
// name, then start position; unmapped records sort after all mapped ones.
func (l *mergeLeaf) Compare(c1 llrb.Comparable) int {
	o := c1.(*mergeLeaf)
	if l.unmapped != o.unmapped {
		if l.unmapped {
			return 1
		}
		return -1
	}
	if c := strings.Compare(l.name, o.name); c != 0 {
		return c
	}
	if l.rec.Pos != o.rec.Pos {
		return l.rec.Pos - o.rec.Pos
	}
	return l.seq - o.seq
}

// newMergedIterator opens one child iterator per source and primes the
// merge. For a range query, the canonical target name is translated to each
// source's own name; sources with no name for it are skipped and contribute
// no records. Sources with no records never enter the leaves tree. A
// failure while opening or priming fails the whole iterator; children
// opened before the failure remain on allIters and are released by Close.
func newMergedIterator(readers []align.Reader, maps *nameMaps, resolver genome.Resolver, q *querySpec) *Iterator {
	it := &Iterator{}
	for i, reader := range readers {
		var child align.Iterator
		if q == nil {
			child = reader.Iterator()
		} else {
			local, ok := maps.localName(i, q.name)
			if !ok {
				continue
			}
			child = reader.Query(local, q.start, q.end, q.contained)
		}
		it.allIters = append(it.allIters, child)
		leaf := &mergeLeaf{seq: i, label: sourceLabel(i, reader), iter: child, resolver: resolver}
		if leaf.advance() {
			it.leaves.Insert(leaf)
			continue
		}
		if err := child.Err(); err != nil {
			it.err = errors.E(err, fmt.Sprintf("opening source %s", leaf.label))
			break
		}
	}
	return it
}

// Scan implements the align.Iterator interface. It extracts the record with
// the globally minimal ordering key and advances its originating child. The
// ordering guarantee holds only if every child's own stream is sorted; the
// merge interleaves and never re-sorts.
func (it *Iterator) Scan() bool {
	if it.closed || it.err != nil {
		return false
	}
	min := it.leaves.Min()
	if min == nil {
		return false
	}
	leaf := min.(*mergeLeaf)
	it.leaves.DeleteMin()
	it.rec = leaf.rec
	if leaf.advance() {
		it.leaves.Insert(leaf)
	} else if err := leaf.iter.Err(); err != nil {
		// A failing child fails the whole merged iteration; the next Scan
		// reports it. The child iterator stays open until Close.
		it.err = errors.E(err, fmt.Sprintf("reading source %s", leaf.label))
	}
	return true
}

// Record implements the align.Iterator interface.
func (it *Iterator) Record() *sam.Record {
	return it.rec
}

// Err implements the align.Iterator interface.
func (it *Iterator) Err() error {
	return it.err
}

// Close implements the align.Iterator interface. It closes every child
// iterator that was opened, whether or not it was exhausted. Safe to call
// more than once.
func (it *Iterator) Close() error {
	if !it.closed {
		it.closed = true
		for _, child := range it.allIters {
			if err := child.Close(); err != nil && it.err == nil {
				it.err = err
			}
		}
		it.allIters = nil
		it.leaves = llrb.Tree{}
	}
	return it.err
}

// Remove is unsupported: the merge engine never mutates its sources. It
// always returns ErrRemoveUnsupported.
func (it *Iterator) Remove() error {
	return ErrRemoveUnsupported
}
