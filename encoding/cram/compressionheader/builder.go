// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// Builder accumulates per-record statistics and produces the compression
// header of one container. Update must observe records in the order they
// will be written, and calls must be serialized. A Builder is single use.
//
// Example:
//
//	b := compressionheader.NewBuilder().SetReferenceRequired(false)
//	for _, rec := range records {
//	  if err := b.Update(ref, rec); err != nil {
//	    ...
//	  }
//	}
//	h := b.Build()
type Builder struct {
	pm *PreservationMapBuilder
}

// NewBuilder returns an empty builder. All preservation flags default to
// true.
func NewBuilder() *Builder {
	return &Builder{pm: NewPreservationMapBuilder()}
}

// SetReadNamesIncluded sets the RN preservation flag.
func (b *Builder) SetReadNamesIncluded(v bool) *Builder {
	b.pm.SetReadNamesIncluded(v)
	return b
}

// SetAPDataSeriesDelta sets the AP preservation flag.
func (b *Builder) SetAPDataSeriesDelta(v bool) *Builder {
	b.pm.SetAPDataSeriesDelta(v)
	return b
}

// SetReferenceRequired sets the RR preservation flag.
func (b *Builder) SetReferenceRequired(v bool) *Builder {
	b.pm.SetReferenceRequired(v)
	return b
}

// Update adds rec, aligned to the reference sequence ref, to the statistics.
// ref may be nil if rec is unmapped.
func (b *Builder) Update(ref []byte, rec *sam.Record) error {
	return b.pm.Update(ref, rec)
}

// Build finalizes the header. Every standard data series is assigned an
// encoding that reads from its own external block, and every key of the
// tag-ids dictionary is assigned a length-prefixed byte array stored in the
// external block whose content id is the key's ID.
func (b *Builder) Build() *CompressionHeader {
	pm := b.pm.Build()
	ds := defaultDataSeriesEncodings()
	keys := pm.tagIDsDictionary.Keys()
	tags := make(map[Key]Encoding, len(keys))
	for _, k := range keys {
		tags[k] = ByteArrayLenEncoding{
			Lengths: ExternalEncoding{BlockContentID: k.ID()},
			Values:  ExternalEncoding{BlockContentID: k.ID()},
		}
	}
	log.Debug.Printf("compression header: built %d data series, %d tag schemas, %d tag keys",
		ds.Len(), pm.tagIDsDictionary.Len(), len(tags))
	return New(pm, ds, TagEncodings{m: tags})
}

// DataSeriesContentID returns the external block content id that a Builder
// assigns to ds.
func DataSeriesContentID(ds DataSeries) int32 {
	return int32(ds) + 1
}

func defaultDataSeriesEncodings() DataSeriesEncodings {
	m := make(map[DataSeries]Encoding, numStandardDataSeries)
	for ds := BAMFlags; ds < numStandardDataSeries; ds++ {
		id := DataSeriesContentID(ds)
		switch ds {
		case ReadName, Insertion, SoftClip:
			m[ds] = ByteArrayStopEncoding{Stop: 0, BlockContentID: id}
		case StretchesOfBases, StretchesOfQualityScores:
			m[ds] = ByteArrayLenEncoding{
				Lengths: ExternalEncoding{BlockContentID: id},
				Values:  ExternalEncoding{BlockContentID: id},
			}
		default:
			m[ds] = ExternalEncoding{BlockContentID: id}
		}
	}
	return DataSeriesEncodings{m: m}
}
