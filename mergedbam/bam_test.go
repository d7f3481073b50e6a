package mergedbam_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/bammerge/align"
	"github.com/grailbio/bammerge/mergedbam"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIndexedBAM writes recs to path and builds path + ".bai" alongside.
// recs must be coordinate sorted.
func writeIndexedBAM(t *testing.T, path string, header *sam.Header, recs []*sam.Record) {
	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	reader, err := bam.NewReader(in, 1)
	require.NoError(t, err)
	var idx bam.Index
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, idx.Add(rec, reader.LastChunk()))
	}
	require.NoError(t, reader.Close())
	require.NoError(t, in.Close())
	idxOut, err := os.Create(path + ".bai")
	require.NoError(t, err)
	require.NoError(t, bam.WriteIndex(idxOut, &idx))
	require.NoError(t, idxOut.Close())
}

// diskRec builds a record the BAM writer accepts: sequence and qualities
// match the 10M cigar.
func diskRec(name string, ref *sam.Reference, pos int) *sam.Record {
	rec := newRec(name, ref, pos)
	rec.Seq = sam.NewSeq([]byte("ACGTACGTAC"))
	rec.Qual = make([]byte, 10)
	return rec
}

// Writes two BAM files with differing naming conventions and merges them
// through real file-backed readers end to end.
func TestMergeBAMFiles(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	a1 := newRef(t, "1", 1000)
	a2 := newRef(t, "2", 2000)
	headerA := newHeader(t, a1, a2)
	// MarshalText only emits the @HD line (which carries SO:) when Version
	// is set, so the sort order would be dropped on write without this.
	headerA.Version = "1.6"
	headerA.SortOrder = sam.Coordinate
	pathA := filepath.Join(tempDir, "a.bam")
	writeIndexedBAM(t, pathA, headerA, []*sam.Record{
		diskRec("a0", a1, 100),
		diskRec("a1", a1, 300),
		diskRec("a2", a2, 50),
	})

	b2 := newRef(t, "chr2", 2000)
	b3 := newRef(t, "chr3", 3000)
	headerB := newHeader(t, b2, b3)
	headerB.Version = "1.6"
	headerB.SortOrder = sam.Coordinate
	pathB := filepath.Join(tempDir, "b.bam")
	writeIndexedBAM(t, pathB, headerB, []*sam.Record{
		diskRec("b0", b2, 10),
		diskRec("b1", b2, 200),
		diskRec("b2", b3, 5),
	})

	srcA := align.NewBAMReader(pathA, "")
	srcB := align.NewBAMReader(pathB, "")
	merged, err := mergedbam.New(testResolver, srcA, srcB)
	require.NoError(t, err)

	names, err := merged.SequenceNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr2", "chr3"}, names)
	assert.True(t, merged.HasIndex())

	header, err := merged.Header()
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.Equal(t, sam.Coordinate, header.SortOrder)
	assert.Equal(t, 4, len(header.Refs()))

	// The full scan interleaves the two files in canonical (name, pos)
	// order: chr1 a0@100 a1@300; chr2 b0@10 a2@50 b1@200; chr3 b2@5.
	assert.Equal(t,
		[]string{"a0", "a1", "b0", "a2", "b1", "b2"},
		readAll(t, merged.Iterator()))

	// Range queries translate "chr2" to each file's own naming ("2" in
	// a.bam) and go through the .bai indexes.
	assert.Equal(t,
		[]string{"b0", "a2", "b1"},
		readAll(t, merged.Query("chr2", 0, 2000, false)))
	assert.Equal(t,
		[]string{"a2"},
		readAll(t, merged.Query("chr2", 40, 100, false)))
	// "chr1" exists only in a.bam; b.bam contributes nothing.
	assert.Equal(t,
		[]string{"a0", "a1"},
		readAll(t, merged.Query("chr1", 0, 1000, false)))

	require.NoError(t, merged.Close())
}
