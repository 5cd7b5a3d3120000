// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// Base is a nucleotide as used by the substitution matrix.
type Base uint8

const (
	// BaseA represents an A base.
	BaseA Base = iota
	// BaseC represents a C base.
	BaseC
	// BaseG represents a G base.
	BaseG
	// BaseT represents a T base.
	BaseT
	// BaseN is a catch-all for every other base.
	BaseN
)

const (
	// numBases is the number of rows in the substitution matrix.
	numBases = 5
	// numAlternates is the number of alternates ranked per reference base.
	numAlternates = numBases - 1
	// numCountedBases is the number of bases whose mismatches are counted.
	numCountedBases = 4
	// substitutionMatrixLen is the serialized size of the matrix.
	substitutionMatrixLen = numBases
)

var baseToASCII = [numBases]byte{'A', 'C', 'G', 'T', 'N'}

// asciiToBase maps ASCII to Base, case-insensitively. Everything that is not
// A, C, G or T maps to BaseN.
var asciiToBase = func() (t [256]Base) {
	for i := range t {
		t[i] = BaseN
	}
	for b, c := range baseToASCII[:numCountedBases] {
		t[c] = Base(b)
		t[c+'a'-'A'] = Base(b)
	}
	return
}()

// BaseFromASCII converts an ASCII nucleotide to a Base.
func BaseFromASCII(c byte) Base {
	return asciiToBase[c]
}

// ASCII returns the uppercase ASCII letter for b.
func (b Base) ASCII() byte {
	if b < numBases {
		return baseToASCII[b]
	}
	return '?'
}

func (b Base) String() string {
	return string(b.ASCII())
}

// alternates returns the bases other than ref, in base order.
func alternates(ref Base) (alts [numAlternates]Base) {
	i := 0
	for b := BaseA; b <= BaseN; b++ {
		if b != ref {
			alts[i] = b
			i++
		}
	}
	return
}

// SubstitutionMatrix ranks, for every reference base, the other four bases by
// how often they replaced it in the container's reads. A read base that
// differs from the reference is stored as its rank, which is 2 bits instead
// of a full base code.
type SubstitutionMatrix struct {
	// substitutions[ref][rank] is the alternate base with the given rank.
	substitutions [numBases][numAlternates]Base
}

// DefaultSubstitutionMatrix returns the matrix in which every reference base
// ranks its alternates in base order. It is what a builder produces when no
// mismatches are observed.
func DefaultSubstitutionMatrix() SubstitutionMatrix {
	var m SubstitutionMatrix
	for ref := BaseA; ref <= BaseN; ref++ {
		m.substitutions[ref] = alternates(ref)
	}
	return m
}

// Base returns the alternate base with the given rank for the reference base.
func (m *SubstitutionMatrix) Base(ref Base, rank int) (Base, error) {
	if ref > BaseN || rank < 0 || rank >= numAlternates {
		return BaseN, errors.Errorf("substitution matrix: invalid (reference, rank) (%v, %d)", ref, rank)
	}
	return m.substitutions[ref][rank], nil
}

// Rank returns the rank of read base alt for the reference base. The bases
// must differ.
func (m *SubstitutionMatrix) Rank(ref, alt Base) (int, error) {
	if ref <= BaseN && alt != ref {
		for rank, b := range m.substitutions[ref] {
			if b == alt {
				return rank, nil
			}
		}
	}
	return -1, errors.Errorf("substitution matrix: no substitution %v->%v", ref, alt)
}

// String shows the alternates of every reference base in rank order, e.g.
// "A:GCTN C:AGTN G:ACTN T:ACGN N:ACGT".
func (m SubstitutionMatrix) String() string {
	var s []byte
	for ref := BaseA; ref <= BaseN; ref++ {
		if ref > 0 {
			s = append(s, ' ')
		}
		s = append(s, ref.ASCII(), ':')
		for _, b := range m.substitutions[ref] {
			s = append(s, b.ASCII())
		}
	}
	return string(s)
}

// marshal encodes the matrix as one byte per reference base. Each byte holds
// the 2-bit rank of every alternate, in base order, most significant first.
func (m *SubstitutionMatrix) marshal() [substitutionMatrixLen]byte {
	var out [substitutionMatrixLen]byte
	for ref := BaseA; ref <= BaseN; ref++ {
		var ranks [numBases]uint8
		for rank, b := range m.substitutions[ref] {
			ranks[b] = uint8(rank)
		}
		var v uint8
		for _, b := range alternates(ref) {
			v = v<<2 | ranks[b]
		}
		out[ref] = v
	}
	return out
}

// unmarshalSubstitutionMatrix is the inverse of marshal. Each row must assign
// every rank exactly once.
func unmarshalSubstitutionMatrix(data []byte) (SubstitutionMatrix, error) {
	var m SubstitutionMatrix
	if len(data) != substitutionMatrixLen {
		return m, errors.Wrapf(ErrInvalidHeader, "substitution matrix: %d bytes, want %d", len(data), substitutionMatrixLen)
	}
	for ref := BaseA; ref <= BaseN; ref++ {
		var seen [numAlternates]bool
		for i, b := range alternates(ref) {
			rank := (data[ref] >> uint(2*(numAlternates-1-i))) & 0x3
			if seen[rank] {
				return m, errors.Wrapf(ErrInvalidHeader, "substitution matrix: reference %v: rank %d used twice in %#02x", ref, rank, data[ref])
			}
			seen[rank] = true
			m.substitutions[ref][rank] = b
		}
	}
	return m, nil
}

// SubstitutionMatrixBuilder counts base mismatches between reads and the
// reference. The zero value is ready to use. Counts depend only on the
// multiset of mismatches, not on the order records arrive in.
type SubstitutionMatrixBuilder struct {
	// frequencies[ref][alt] counts reads showing alt where the reference has
	// ref.
	frequencies [numCountedBases][numCountedBases]uint64
}

// Update counts every aligned position of rec where the read base differs
// from the reference base. Insertions, deletions, skips, clips and positions
// where either base is not A, C, G or T are ignored, as are unmapped records.
// ref is the full reference sequence the record is aligned to, indexed by
// 0-based position.
//
// Update returns an error, and counts nothing, if the alignment extends past
// the end of ref or of the read sequence.
func (b *SubstitutionMatrixBuilder) Update(ref []byte, rec *sam.Record) error {
	if rec.Flags&sam.Unmapped != 0 || len(rec.Cigar) == 0 || rec.Seq.Length == 0 {
		return nil
	}
	for _, co := range rec.Cigar {
		if co.Type() > sam.CigarMismatch {
			return errors.Errorf("substitution matrix: %s: unsupported cigar operation %v", rec.Name, co)
		}
	}
	refLen, readLen := rec.Cigar.Lengths()
	if rec.Pos < 0 || rec.Pos+refLen > len(ref) {
		return errors.Errorf("substitution matrix: %s: alignment [%d,%d) is outside the reference of length %d",
			rec.Name, rec.Pos, rec.Pos+refLen, len(ref))
	}
	if readLen > rec.Seq.Length {
		return errors.Errorf("substitution matrix: %s: cigar %v consumes %d bases, but the read has %d",
			rec.Name, rec.Cigar, readLen, rec.Seq.Length)
	}
	seq := rec.Seq.Expand()
	posInRef, posInRead := rec.Pos, 0
	for _, co := range rec.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < n; i++ {
				r, a := asciiToBase[ref[posInRef+i]], asciiToBase[seq[posInRead+i]]
				if r != a && r != BaseN && a != BaseN {
					b.frequencies[r][a]++
				}
			}
			posInRef += n
			posInRead += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			posInRead += n
		case sam.CigarDeletion, sam.CigarSkipped:
			posInRef += n
		}
	}
	return nil
}

// Build ranks the alternates of every reference base by descending frequency.
// Ties are broken by base order (A < C < G < T < N), so the result does not
// depend on the order mismatches were observed in.
func (b *SubstitutionMatrixBuilder) Build() SubstitutionMatrix {
	m := DefaultSubstitutionMatrix()
	for ref := BaseA; ref < numCountedBases; ref++ {
		alts := m.substitutions[ref][:]
		freq := func(alt Base) uint64 {
			if alt >= numCountedBases {
				return 0
			}
			return b.frequencies[ref][alt]
		}
		sort.SliceStable(alts, func(i, j int) bool {
			return freq(alts[i]) > freq(alts[j])
		})
	}
	log.Debug.Printf("substitution matrix: %v", m)
	return m
}

// Frequency returns the number of ref->alt mismatches counted so far.
func (b *SubstitutionMatrixBuilder) Frequency(ref, alt Base) uint64 {
	if ref >= numCountedBases || alt >= numCountedBases {
		return 0
	}
	return b.frequencies[ref][alt]
}
