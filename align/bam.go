package align

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMReader implements Reader for coordinate-sorted BAM files. Both the BAM
// and the index pathnames are allowed to be S3 URLs, in which case the data
// will be read from S3. Otherwise the data will be read from the local
// filesystem. Each Iterator or Query call opens an independent reader on the
// file, so multiple iterators may be open at once.
type BAMReader struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of the *.bam.bai file. If "", Path + ".bai".
	Index string

	err errors.Once

	mu       sync.Mutex
	header   *sam.Header
	hasIndex *bool
}

// NewBAMReader creates a Reader for the BAM file at path. If indexPath is
// "", it defaults to path + ".bai".
func NewBAMReader(path, indexPath string) *BAMReader {
	return &BAMReader{Path: path, Index: indexPath}
}

// Name returns the BAM pathname. Error messages about this source quote it.
func (b *BAMReader) Name() string {
	return b.Path
}

func (b *BAMReader) indexPath() string {
	if b.Index == "" {
		return b.Path + ".bai"
	}
	return b.Index
}

// Header implements the Reader interface. The header is read once and
// cached.
func (b *BAMReader) Header() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		err = errors.E(err, b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close() // nolint: errcheck
	b.header = reader.Header()
	return b.header, nil
}

// SequenceNames implements the Reader interface. The names are the header's
// reference names, in header order.
func (b *BAMReader) SequenceNames() ([]string, error) {
	header, err := b.Header()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(header.Refs()))
	for _, ref := range header.Refs() {
		names = append(names, ref.Name())
	}
	return names, nil
}

// HasIndex implements the Reader interface. It reports whether the index
// file exists and is readable.
func (b *BAMReader) HasIndex() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasIndex != nil {
		return *b.hasIndex
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.indexPath())
	ok := err == nil
	if ok {
		in.Close(ctx) // nolint: errcheck
	}
	b.hasIndex = &ok
	return ok
}

// Platforms implements the Reader interface. The tags are the distinct PL
// values of the header's read groups, in order of appearance.
func (b *BAMReader) Platforms() []string {
	header, err := b.Header()
	if err != nil {
		return nil
	}
	text, err := header.MarshalText()
	if err != nil {
		vlog.Errorf("%v: marshaling header: %v", b.Path, err)
		return nil
	}
	var platforms []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "@RG") {
			continue
		}
		for _, field := range strings.Split(line, "\t") {
			if strings.HasPrefix(field, "PL:") {
				if pl := field[len("PL:"):]; pl != "" && !seen[pl] {
					seen[pl] = true
					platforms = append(platforms, pl)
				}
			}
		}
	}
	return platforms
}

// Iterator implements the Reader interface. It streams the whole file.
func (b *BAMReader) Iterator() Iterator {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return NewErrorIterator(err)
	}
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		err = errors.E(err, b.Path)
		b.err.Set(err)
		return NewErrorIterator(err)
	}
	return &bamFullIterator{in: in, reader: reader}
}

// Query implements the Reader interface. It requires the BAM index.
func (b *BAMReader) Query(name string, start, end int, contained bool) Iterator {
	header, err := b.Header()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := refByName(header, name)
	if ref == nil {
		return NewErrorIterator(fmt.Errorf("%v: reference %q not found", b.Path, name))
	}
	if start < 0 {
		start = 0
	}
	if end > ref.Len() {
		end = ref.Len()
	}
	if start >= end {
		return NewErrorIterator(nil)
	}

	ctx := vcontext.Background()
	indexIn, err := file.Open(ctx, b.indexPath())
	if err != nil {
		b.err.Set(err)
		return NewErrorIterator(err)
	}
	idx, err := bam.ReadIndex(indexIn.Reader(ctx))
	indexIn.Close(ctx) // nolint: errcheck
	if err != nil {
		err = errors.E(err, b.indexPath())
		b.err.Set(err)
		return NewErrorIterator(err)
	}
	chunks, err := idx.Chunks(ref, start, end)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		// No reads in the interval.
		return NewErrorIterator(nil)
	}
	if err != nil {
		err = errors.E(err, b.indexPath())
		b.err.Set(err)
		return NewErrorIterator(err)
	}

	in, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return NewErrorIterator(err)
	}
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		err = errors.E(err, b.Path)
		b.err.Set(err)
		return NewErrorIterator(err)
	}
	iter, err := bam.NewIterator(reader, chunks)
	if err != nil {
		reader.Close() // nolint: errcheck
		in.Close(ctx)  // nolint: errcheck
		err = errors.E(err, b.Path)
		b.err.Set(err)
		return NewErrorIterator(err)
	}
	return &bamQueryIterator{
		in:        in,
		iter:      iter,
		start:     start,
		end:       end,
		contained: contained,
	}
}

// Close implements the Reader interface. It returns any error encountered
// by the reader or its iterators so far. Safe to call more than once.
func (b *BAMReader) Close() error {
	return b.err.Err()
}

func refByName(header *sam.Header, name string) *sam.Reference {
	for _, ref := range header.Refs() {
		if ref.Name() == name {
			return ref
		}
	}
	return nil
}

// bamFullIterator scans every record in the file in file order.
type bamFullIterator struct {
	in     file.File
	reader *bam.Reader
	rec    *sam.Record
	err    error
	done   bool
	closed bool
}

func (i *bamFullIterator) Scan() bool {
	if i.done || i.err != nil {
		return false
	}
	rec, err := i.reader.Read()
	if err != nil {
		if err != io.EOF {
			i.err = err
		}
		i.done = true
		return false
	}
	i.rec = rec
	return true
}

func (i *bamFullIterator) Record() *sam.Record { return i.rec }

func (i *bamFullIterator) Err() error { return i.err }

func (i *bamFullIterator) Close() error {
	if !i.closed {
		i.closed = true
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		ctx := vcontext.Background()
		if err := i.in.Close(ctx); err != nil && i.err == nil {
			i.err = err
		}
	}
	return i.err
}

// bamQueryIterator yields records in [start, end) on one reference,
// filtering the index chunks to the contained or overlap semantics.
type bamQueryIterator struct {
	in        file.File
	iter      *bam.Iterator
	start     int
	end       int
	contained bool

	rec    *sam.Record
	err    error
	done   bool
	closed bool
}

func (i *bamQueryIterator) Scan() bool {
	for {
		if i.done || i.err != nil {
			return false
		}
		if !i.iter.Next() {
			i.err = i.iter.Error()
			i.done = true
			return false
		}
		rec := i.iter.Record()
		if rec.Start() >= i.end {
			// Records are sorted; nothing further can match.
			i.done = true
			return false
		}
		if i.contained {
			if rec.Start() >= i.start && rec.End() <= i.end {
				i.rec = rec
				return true
			}
		} else if rec.End() > i.start {
			i.rec = rec
			return true
		}
	}
}

func (i *bamQueryIterator) Record() *sam.Record { return i.rec }

func (i *bamQueryIterator) Err() error { return i.err }

func (i *bamQueryIterator) Close() error {
	if !i.closed {
		i.closed = true
		// bam.Iterator.Close also releases the underlying bam.Reader.
		if err := i.iter.Close(); err != nil && i.err == nil {
			i.err = err
		}
		ctx := vcontext.Background()
		if err := i.in.Close(ctx); err != nil && i.err == nil {
			i.err = err
		}
	}
	return i.err
}
