package align

import (
	"sync"

	"github.com/grailbio/hts/sam"
)

// Fake is an in-memory Reader for unittests. It yields the given records,
// which must be sorted in coordinate order, and counts iterator opens and
// closes so that tests can verify resource lifecycles.
type Fake struct {
	header    *sam.Header
	recs      []*sam.Record
	name      string
	platforms []string
	indexed   bool

	namesErr  error
	scanErr   error
	failAfter int

	mu           sync.Mutex
	opened       int
	closedOnce   int
	doubleClosed bool
	closeCalls   int
}

// NewFake creates a Reader that reports the header's reference names as its
// sequence names and yields recs from Iterator and Query calls.
func NewFake(header *sam.Header, recs ...*sam.Record) *Fake {
	return &Fake{header: header, recs: recs, indexed: true}
}

// SetName sets the name reported by Name, for tests that assert on error
// messages.
func (f *Fake) SetName(name string) *Fake {
	f.name = name
	return f
}

// Name returns the name given to SetName, or "".
func (f *Fake) Name() string {
	return f.name
}

// SetPlatforms sets the platform tags reported by Platforms.
func (f *Fake) SetPlatforms(platforms ...string) *Fake {
	f.platforms = platforms
	return f
}

// SetIndexed sets the value reported by HasIndex.
func (f *Fake) SetIndexed(indexed bool) *Fake {
	f.indexed = indexed
	return f
}

// FailSequenceNames causes SequenceNames to return err.
func (f *Fake) FailSequenceNames(err error) *Fake {
	f.namesErr = err
	return f
}

// FailScanAfter causes every iterator to fail with err after yielding n
// records.
func (f *Fake) FailScanAfter(n int, err error) *Fake {
	f.failAfter = n
	f.scanErr = err
	return f
}

// SequenceNames implements the Reader interface.
func (f *Fake) SequenceNames() ([]string, error) {
	if f.namesErr != nil {
		return nil, f.namesErr
	}
	var names []string
	for _, ref := range f.header.Refs() {
		names = append(names, ref.Name())
	}
	return names, nil
}

// Header implements the Reader interface.
func (f *Fake) Header() (*sam.Header, error) {
	return f.header, nil
}

// HasIndex implements the Reader interface.
func (f *Fake) HasIndex() bool {
	return f.indexed
}

// Platforms implements the Reader interface.
func (f *Fake) Platforms() []string {
	return f.platforms
}

// Iterator implements the Reader interface.
func (f *Fake) Iterator() Iterator {
	return f.newIterator(f.recs)
}

// Query implements the Reader interface.
func (f *Fake) Query(name string, start, end int, contained bool) Iterator {
	var recs []*sam.Record
	for _, rec := range f.recs {
		if rec.Ref == nil || rec.Ref.Name() != name {
			continue
		}
		if contained {
			if rec.Start() >= start && rec.End() <= end {
				recs = append(recs, rec)
			}
		} else if rec.Start() < end && rec.End() > start {
			recs = append(recs, rec)
		}
	}
	return f.newIterator(recs)
}

// Close implements the Reader interface.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	return nil
}

// OpenedIterators returns the number of iterators created so far.
func (f *Fake) OpenedIterators() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// OutstandingIterators returns the number of iterators that have been
// opened but not yet closed.
func (f *Fake) OutstandingIterators() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened - f.closedOnce
}

// DoubleClosed reports whether any iterator was closed more than once.
func (f *Fake) DoubleClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubleClosed
}

// CloseCalls returns the number of times Close has been called on the
// reader itself.
func (f *Fake) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *Fake) newIterator(recs []*sam.Record) Iterator {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &fakeIterator{fake: f, recs: recs}
}

type fakeIterator struct {
	fake   *Fake
	recs   []*sam.Record
	rec    *sam.Record
	served int
	err    error
	closed bool
}

// Scan implements the Iterator interface.
func (i *fakeIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	if i.fake.scanErr != nil && i.served == i.fake.failAfter {
		i.err = i.fake.scanErr
		return false
	}
	if len(i.recs) == 0 {
		return false
	}
	i.rec = i.recs[0]
	i.recs = i.recs[1:]
	i.served++
	return true
}

// Record implements the Iterator interface.
func (i *fakeIterator) Record() *sam.Record {
	return i.rec
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return i.err
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	i.fake.mu.Lock()
	if i.closed {
		i.fake.doubleClosed = true
	} else {
		i.closed = true
		i.fake.closedOnce++
	}
	i.fake.mu.Unlock()
	return i.err
}
