package main

// bam-merge performs a logical merge of coordinate-sorted BAM files and
// writes the merged stream as SAM text or BAM.
//
// Usage: bam-merge [-region chr1:100-200] [-o out.sam] in1.bam in2.bam ...

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bammerge/align"
	"github.com/grailbio/bammerge/genome"
	"github.com/grailbio/bammerge/mergedbam"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

var (
	regionFlag = flag.String("region", "",
		"Restrict the merge to a region, e.g. chr1:100-200 (1-based, inclusive) or chr1. "+
			"Sequence names are canonical names; requires a .bai index next to each input.")
	containedFlag = flag.Bool("contained", false,
		"With -region, emit only records lying entirely within the region instead of all overlapping ones")
	outFlag = flag.String("o", "-",
		"Output path. '-' writes SAM text to stdout; a path ending in .bam writes BAM. "+
			"BAM output requires all inputs to share an identical reference dictionary")
)

// parseRegion parses "chr", "chr:start-end" (1-based, inclusive) into a
// canonical name and a 0-based half-open interval.
func parseRegion(s string) (name string, start, end int, err error) {
	colon := strings.LastIndex(s, ":")
	if colon < 0 {
		return s, 0, math.MaxInt32, nil
	}
	name = s[:colon]
	span := s[colon+1:]
	dash := strings.Index(span, "-")
	if name == "" || dash <= 0 || dash == len(span)-1 {
		return "", 0, 0, fmt.Errorf("malformed region %q", s)
	}
	first, err := strconv.Atoi(span[:dash])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed region %q: %v", s, err)
	}
	last, err := strconv.Atoi(span[dash+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed region %q: %v", s, err)
	}
	if first < 1 || last < first {
		return "", 0, 0, fmt.Errorf("malformed region %q", s)
	}
	return name, first - 1, last, nil
}

type recordWriter interface {
	Write(*sam.Record) error
}

func openOutput(path string, header *sam.Header) (recordWriter, func() error) {
	if path == "-" {
		w, err := sam.NewWriter(os.Stdout, header, sam.FlagDecimal)
		if err != nil {
			log.Fatalf("writing SAM header: %v", err)
		}
		return w, func() error { return nil }
	}
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	if err != nil {
		log.Fatalf("create %v: %v", path, err)
	}
	if strings.HasSuffix(path, ".bam") {
		w, err := bam.NewWriter(out.Writer(ctx), header, 1)
		if err != nil {
			log.Fatalf("%v: writing BAM header: %v", path, err)
		}
		return w, func() error {
			if err := w.Close(); err != nil {
				return err
			}
			return out.Close(ctx)
		}
	}
	w, err := sam.NewWriter(out.Writer(ctx), header, sam.FlagDecimal)
	if err != nil {
		log.Fatalf("%v: writing SAM header: %v", path, err)
	}
	return w, func() error { return out.Close(ctx) }
}

func main() {
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage: bam-merge [flags] <input.bam...>

Merges the given coordinate-sorted BAM files into one sorted stream without
re-sorting, reconciling sequence naming differences between the inputs
("1" vs "chr1", "MT" vs "chrM"). The first input's sequence names define the
canonical naming.
`)
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	readers := make([]align.Reader, len(paths))
	for i, path := range paths {
		readers[i] = align.NewBAMReader(path, "")
	}
	canonicalNames, err := readers[0].SequenceNames()
	if err != nil {
		log.Fatalf("%v: %v", paths[0], err)
	}
	resolver := genome.NewResolver(canonicalNames, nil)

	merged, err := mergedbam.New(resolver, readers...)
	if err != nil {
		log.Fatalf("merging %v: %v", paths, err)
	}
	defer func() {
		if err := merged.Close(); err != nil {
			log.Fatalf("close: %v", err)
		}
	}()

	header, err := merged.Header()
	if err != nil {
		log.Fatalf("merging headers: %v", err)
	}
	if header == nil {
		log.Fatalf("no input declares a sort order; refusing to write a merged header")
	}

	var iter align.Iterator
	if *regionFlag != "" {
		name, start, end, err := parseRegion(*regionFlag)
		if err != nil {
			log.Fatalf("%v", err)
		}
		iter = merged.Query(name, start, end, *containedFlag)
	} else {
		iter = merged.Iterator()
	}

	w, finish := openOutput(*outFlag, header)
	nRecs := 0
	for iter.Scan() {
		if err := w.Write(iter.Record()); err != nil {
			log.Fatalf("write: %v", err)
		}
		nRecs++
	}
	if err := iter.Close(); err != nil {
		log.Fatalf("read: %v", err)
	}
	if err := finish(); err != nil {
		log.Fatalf("close %v: %v", *outFlag, err)
	}
	log.Printf("wrote %d records", nRecs)
}
