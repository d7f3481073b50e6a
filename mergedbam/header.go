package mergedbam

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// mergeHeaders combines the given per-source headers (nil entries are
// skipped) into one merged header. If at least one header declares a sort
// order, the merged header carries the last-seen declared order; if none
// does, there is no meaningful merged header and (nil, nil) is returned.
func mergeHeaders(headers []*sam.Header) (*sam.Header, error) {
	var present []*sam.Header
	sortOrder := sam.UnknownOrder
	for _, header := range headers {
		if header == nil {
			continue
		}
		present = append(present, header)
		if header.SortOrder != sam.UnknownOrder {
			sortOrder = header.SortOrder
		}
	}
	if sortOrder == sam.UnknownOrder {
		return nil, nil
	}
	merged, _, err := sam.MergeHeaders(present)
	if err != nil {
		return nil, errors.E(err, "merging source headers")
	}
	merged.SortOrder = sortOrder
	return merged, nil
}
