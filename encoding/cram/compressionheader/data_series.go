// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// DataSeries identifies one record field that is encoded as a separate stream
// across all records of a container.
type DataSeries uint8

const (
	// BAMFlags (BF) holds the BAM bit flags.
	BAMFlags DataSeries = iota
	// CRAMFlags (CF) holds the CRAM bit flags.
	CRAMFlags
	// ReferenceID (RI) holds the reference sequence id.
	ReferenceID
	// ReadLength (RL) holds the read length.
	ReadLength
	// AlignmentStart (AP) holds the alignment start, possibly delta coded.
	AlignmentStart
	// ReadGroup (RG) holds the read group index.
	ReadGroup
	// ReadName (RN) holds the read name.
	ReadName
	// MateFlags (MF) holds the next mate bit flags.
	MateFlags
	// MateReferenceID (NS) holds the next fragment's reference sequence id.
	MateReferenceID
	// MateAlignmentStart (NP) holds the next mate's alignment start.
	MateAlignmentStart
	// TemplateLength (TS) holds the template size.
	TemplateLength
	// MateDistance (NF) holds the distance to the next fragment.
	MateDistance
	// TagSetID (TL) holds the record's tag-ids dictionary index.
	TagSetID
	// FeatureCount (FN) holds the number of read features.
	FeatureCount
	// FeatureCode (FC) holds read feature codes.
	FeatureCode
	// FeaturePosition (FP) holds in-read positions of features.
	FeaturePosition
	// DeletionLength (DL) holds deletion lengths.
	DeletionLength
	// StretchesOfBases (BB) holds runs of bases.
	StretchesOfBases
	// StretchesOfQualityScores (QQ) holds runs of quality scores.
	StretchesOfQualityScores
	// BaseSubstitutionCode (BS) holds substitution matrix ranks.
	BaseSubstitutionCode
	// Insertion (IN) holds inserted bases.
	Insertion
	// ReferenceSkipLength (RS) holds reference skip lengths.
	ReferenceSkipLength
	// Padding (PD) holds padding lengths.
	Padding
	// HardClip (HC) holds hard clip lengths.
	HardClip
	// SoftClip (SC) holds soft clipped bases.
	SoftClip
	// MappingQuality (MQ) holds mapping qualities.
	MappingQuality
	// Bases (BA) holds single bases.
	Bases
	// QualityScores (QS) holds quality scores.
	QualityScores
	// ReservedTC (TC) is a legacy key accepted on read.
	ReservedTC
	// ReservedTN (TN) is a legacy key accepted on read.
	ReservedTN

	// numDataSeries is a sentinel.
	numDataSeries
	// numStandardDataSeries counts the series written by a Builder.
	numStandardDataSeries = ReservedTC
)

var dataSeriesKeys = [numDataSeries]string{
	"BF", "CF", "RI", "RL", "AP", "RG", "RN", "MF", "NS", "NP",
	"TS", "NF", "TL", "FN", "FC", "FP", "DL", "BB", "QQ", "BS",
	"IN", "RS", "PD", "HC", "SC", "MQ", "BA", "QS", "TC", "TN",
}

// String returns the two-letter key of ds, e.g. "BF".
func (ds DataSeries) String() string {
	if ds < numDataSeries {
		return dataSeriesKeys[ds]
	}
	return fmt.Sprintf("DataSeries%d", ds)
}

// ParseDataSeries converts a two-letter key to a DataSeries.
func ParseDataSeries(key string) (DataSeries, error) {
	for ds, k := range dataSeriesKeys {
		if k == key {
			return DataSeries(ds), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidHeader, "unknown data series %q", key)
}

// DataSeriesEncodings maps each data series of a container to its encoding.
// It is never modified after construction.
type DataSeriesEncodings struct {
	m map[DataSeries]Encoding
}

// NewDataSeriesEncodings returns a table holding a copy of m.
func NewDataSeriesEncodings(m map[DataSeries]Encoding) DataSeriesEncodings {
	e := DataSeriesEncodings{m: make(map[DataSeries]Encoding, len(m))}
	for ds, enc := range m {
		e.m[ds] = enc
	}
	return e
}

// Get returns the encoding of ds. It fails with ErrUnknownSeriesOrTag if ds
// has no entry.
func (e DataSeriesEncodings) Get(ds DataSeries) (Encoding, error) {
	enc, ok := e.m[ds]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSeriesOrTag, "data series %v", ds)
	}
	return enc, nil
}

// Len returns the number of entries.
func (e DataSeriesEncodings) Len() int {
	return len(e.m)
}

// DataSeries returns the series that have an entry, in declaration order.
func (e DataSeriesEncodings) DataSeries() []DataSeries {
	list := make([]DataSeries, 0, len(e.m))
	for ds := range e.m {
		list = append(list, ds)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// TagEncodings maps each tag key of a container to the encoding of its
// values. It is never modified after construction.
type TagEncodings struct {
	m map[Key]Encoding
}

// NewTagEncodings returns a table holding a copy of m.
func NewTagEncodings(m map[Key]Encoding) TagEncodings {
	e := TagEncodings{m: make(map[Key]Encoding, len(m))}
	for k, enc := range m {
		e.m[k] = enc
	}
	return e
}

// Get returns the encoding of key. It fails with ErrUnknownSeriesOrTag if
// key has no entry.
func (e TagEncodings) Get(key Key) (Encoding, error) {
	enc, ok := e.m[key]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSeriesOrTag, "tag %v", key)
	}
	return enc, nil
}

// Len returns the number of entries.
func (e TagEncodings) Len() int {
	return len(e.m)
}

// Keys returns the keys that have an entry, ordered by Key.ID.
func (e TagEncodings) Keys() []Key {
	list := make([]Key, 0, len(e.m))
	for k := range e.m {
		list = append(list, k)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}
