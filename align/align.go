// Package align defines the interfaces for sorted, queryable alignment
// record sources. A Reader wraps one input (typically a coordinate-sorted
// BAM file) and exposes its sequence-name catalogue, a full-scan iterator,
// and indexed range queries. The mergedbam package consumes Readers to
// present several inputs as one sorted stream.
package align

import (
	"github.com/grailbio/hts/sam"
)

// Reader is a single sorted provider of alignment records. Implementations
// must yield records in ascending (reference, position) order from both
// Iterator and Query. A Reader may serve multiple concurrently open
// iterators. Thread safe.
type Reader interface {
	// SequenceNames returns the reference sequence names known to this
	// source, in the source's own order.
	//
	// REQUIRES: Close has not been called.
	SequenceNames() ([]string, error)

	// Iterator returns an iterator over every record in the source.
	//
	// REQUIRES: Close has not been called.
	Iterator() Iterator

	// Query returns an iterator over records on the named sequence within
	// the 0-based half-open interval [start, end). If contained is true,
	// only records lying entirely within the interval are yielded;
	// otherwise any record overlapping it is. "name" is the source's own
	// local sequence name. Open failures are reported through the returned
	// iterator's Err and Close.
	//
	// REQUIRES: Close has not been called.
	Query(name string, start, end int, contained bool) Iterator

	// Header returns the source's SAM header, or (nil, nil) if the source
	// has none. The caller must not modify the returned header.
	//
	// REQUIRES: Close has not been called.
	Header() (*sam.Header, error)

	// HasIndex reports whether the source supports indexed range queries.
	HasIndex() bool

	// Platforms returns the sequencing platform tags (@RG PL values)
	// declared by the source, or nil if unknown.
	Platforms() []string

	// Close releases the source. Iterators created by the Reader must be
	// closed first.
	Close() error
}

// Iterator iterates over sam.Records in coordinate order. Thread compatible.
type Iterator interface {
	// Scan returns whether there are any records remaining, and if so,
	// advances the iterator to the next record. If an error occurs, Scan
	// returns false and the error can be retrieved by calling Err.
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record. It must be called only after a
	// call to Scan returns true.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encountered during iteration, or nil if none
	// occurred. An io.EOF error is translated to nil.
	Err() error

	// Close releases the iterator. It returns the value of Err.
	Close() error
}

// NewErrorIterator returns an Iterator that is exhausted from the start:
// Scan reports false immediately, and Err and Close both return err.
// Readers use it to surface open failures through the iterator protocol,
// and, with a nil err, to answer queries that cannot match any record.
func NewErrorIterator(err error) Iterator {
	return errorIterator{err}
}

type errorIterator struct{ err error }

func (i errorIterator) Scan() bool          { return false }
func (i errorIterator) Record() *sam.Record { panic("Record called on an exhausted iterator") }
func (i errorIterator) Err() error          { return i.err }
func (i errorIterator) Close() error        { return i.err }
