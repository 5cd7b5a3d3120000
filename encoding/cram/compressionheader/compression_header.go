// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// CompressionHeader governs the decoding of every record in one container.
// It is immutable and may be shared by concurrent readers.
type CompressionHeader struct {
	preservationMap     PreservationMap
	dataSeriesEncodings DataSeriesEncodings
	tagEncodings        TagEncodings
}

// New assembles a compression header from its three parts.
func New(pm PreservationMap, ds DataSeriesEncodings, tags TagEncodings) *CompressionHeader {
	return &CompressionHeader{
		preservationMap:     pm,
		dataSeriesEncodings: ds,
		tagEncodings:        tags,
	}
}

// PreservationMap returns the container-wide encoding policy.
func (h *CompressionHeader) PreservationMap() *PreservationMap {
	return &h.preservationMap
}

// DataSeriesEncodings returns the data series encoding table.
func (h *CompressionHeader) DataSeriesEncodings() DataSeriesEncodings {
	return h.dataSeriesEncodings
}

// TagEncodings returns the tag encoding table.
func (h *CompressionHeader) TagEncodings() TagEncodings {
	return h.tagEncodings
}

// DataSeriesEncoding returns the encoding of ds, or ErrUnknownSeriesOrTag.
func (h *CompressionHeader) DataSeriesEncoding(ds DataSeries) (Encoding, error) {
	return h.dataSeriesEncodings.Get(ds)
}

// TagEncoding returns the encoding of the values of key on records whose
// tag-ids dictionary index is schema. It fails with ErrUnknownSeriesOrTag if
// the schema does not exist, does not contain key, or key has no encoding.
func (h *CompressionHeader) TagEncoding(schema int, key Key) (Encoding, error) {
	keys, err := h.preservationMap.tagIDsDictionary.Schema(schema)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k == key {
			return h.tagEncodings.Get(key)
		}
	}
	return nil, errors.Wrapf(ErrUnknownSeriesOrTag, "tag %v is not in schema %d", key, schema)
}

// String returns a multi-line human-readable summary of the header.
func (h *CompressionHeader) String() string {
	var b strings.Builder
	pm := &h.preservationMap
	fmt.Fprintf(&b, "preservation map: RN=%v AP=%v RR=%v\n",
		pm.readNamesIncluded, pm.apDataSeriesDelta, pm.referenceRequired)
	fmt.Fprintf(&b, "substitution matrix: %v\n", pm.substitutionMatrix)
	fmt.Fprintf(&b, "tag ids dictionary: %d schemas\n", pm.tagIDsDictionary.Len())
	for i, schema := range pm.tagIDsDictionary.schemas {
		ks := make([]string, len(schema))
		for j, k := range schema {
			ks[j] = k.String()
		}
		fmt.Fprintf(&b, "  %d: [%s]\n", i, strings.Join(ks, ","))
	}
	fmt.Fprintf(&b, "data series encodings: %d\n", h.dataSeriesEncodings.Len())
	for _, ds := range h.dataSeriesEncodings.DataSeries() {
		fmt.Fprintf(&b, "  %v: %v\n", ds, h.dataSeriesEncodings.m[ds])
	}
	fmt.Fprintf(&b, "tag encodings: %d\n", h.tagEncodings.Len())
	for _, k := range h.tagEncodings.Keys() {
		fmt.Fprintf(&b, "  %v: %v\n", k, h.tagEncodings.m[k])
	}
	return b.String()
}
