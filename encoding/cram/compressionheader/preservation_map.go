// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// PreservationMap holds the container-wide encoding policy: three flags, the
// substitution matrix and the tag-ids dictionary. It is never modified after
// it is built or parsed.
type PreservationMap struct {
	readNamesIncluded  bool
	apDataSeriesDelta  bool
	referenceRequired  bool
	substitutionMatrix SubstitutionMatrix
	tagIDsDictionary   TagIDsDictionary
}

// NewPreservationMap assembles a preservation map.
func NewPreservationMap(readNamesIncluded, apDataSeriesDelta, referenceRequired bool,
	substitutionMatrix SubstitutionMatrix, tagIDsDictionary TagIDsDictionary) PreservationMap {
	return PreservationMap{
		readNamesIncluded:  readNamesIncluded,
		apDataSeriesDelta:  apDataSeriesDelta,
		referenceRequired:  referenceRequired,
		substitutionMatrix: substitutionMatrix,
		tagIDsDictionary:   tagIDsDictionary,
	}
}

// ReadNamesIncluded reports whether read names are stored (RN).
func (p *PreservationMap) ReadNamesIncluded() bool { return p.readNamesIncluded }

// APDataSeriesDelta reports whether alignment starts are delta coded (AP).
func (p *PreservationMap) APDataSeriesDelta() bool { return p.apDataSeriesDelta }

// ReferenceRequired reports whether decoding needs the reference (RR).
func (p *PreservationMap) ReferenceRequired() bool { return p.referenceRequired }

// SubstitutionMatrix returns the substitution matrix (SM).
func (p *PreservationMap) SubstitutionMatrix() *SubstitutionMatrix { return &p.substitutionMatrix }

// TagIDsDictionary returns the tag-ids dictionary (TD).
func (p *PreservationMap) TagIDsDictionary() *TagIDsDictionary { return &p.tagIDsDictionary }

// PreservationMapBuilder accumulates the statistics of a stream of records
// and finalizes them into a PreservationMap. The flags default to true, as
// the CRAM format treats absent flags as true. A builder is single use:
// calling any method after Build panics.
type PreservationMapBuilder struct {
	readNamesIncluded bool
	apDataSeriesDelta bool
	referenceRequired bool
	substitutions     SubstitutionMatrixBuilder
	tagIDs            TagIDsDictionaryBuilder
	built             bool
}

// NewPreservationMapBuilder returns a builder with all flags set to true.
func NewPreservationMapBuilder() *PreservationMapBuilder {
	return &PreservationMapBuilder{
		readNamesIncluded: true,
		apDataSeriesDelta: true,
		referenceRequired: true,
	}
}

func (b *PreservationMapBuilder) checkNotBuilt() {
	if b.built {
		log.Panicf("compression header: preservation map builder used after Build")
	}
}

// SetReadNamesIncluded sets the RN flag.
func (b *PreservationMapBuilder) SetReadNamesIncluded(v bool) *PreservationMapBuilder {
	b.checkNotBuilt()
	b.readNamesIncluded = v
	return b
}

// SetAPDataSeriesDelta sets the AP flag.
func (b *PreservationMapBuilder) SetAPDataSeriesDelta(v bool) *PreservationMapBuilder {
	b.checkNotBuilt()
	b.apDataSeriesDelta = v
	return b
}

// SetReferenceRequired sets the RR flag.
func (b *PreservationMapBuilder) SetReferenceRequired(v bool) *PreservationMapBuilder {
	b.checkNotBuilt()
	b.referenceRequired = v
	return b
}

// Update adds rec to the statistics. ref is the reference sequence rec is
// aligned to; it may be nil for unmapped records. If Update returns an error,
// the statistics are unchanged.
func (b *PreservationMapBuilder) Update(ref []byte, rec *sam.Record) error {
	b.checkNotBuilt()
	if err := b.substitutions.Update(ref, rec); err != nil {
		return err
	}
	b.tagIDs.Update(rec)
	return nil
}

// Build finalizes the preservation map. The builder cannot be used
// afterward.
func (b *PreservationMapBuilder) Build() PreservationMap {
	b.checkNotBuilt()
	b.built = true
	return NewPreservationMap(
		b.readNamesIncluded,
		b.apDataSeriesDelta,
		b.referenceRequired,
		b.substitutions.Build(),
		b.tagIDs.Build())
}
