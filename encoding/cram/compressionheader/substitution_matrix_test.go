package compressionheader_test

import (
	"testing"

	ch "github.com/grailbio/cram/encoding/cram/compressionheader"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func newRecord(name string, pos int, cigar []sam.CigarOp, seq string, aux ...sam.Aux) *sam.Record {
	return &sam.Record{
		Name:      name,
		Pos:       pos,
		Cigar:     cigar,
		Seq:       sam.NewSeq([]byte(seq)),
		AuxFields: aux,
	}
}

func match(n int) []sam.CigarOp {
	return []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, n)}
}

func buildMatrix(t *testing.T, ref string, recs ...*sam.Record) (ch.SubstitutionMatrix, *ch.SubstitutionMatrixBuilder) {
	b := &ch.SubstitutionMatrixBuilder{}
	for _, r := range recs {
		require.NoError(t, b.Update([]byte(ref), r), r.Name)
	}
	return b.Build(), b
}

func TestSubstitutionMatrixRanking(t *testing.T) {
	// Reference A mismatched as G x5, C x3, T x1.
	m, b := buildMatrix(t, "AAAAAAAAA", newRecord("r0", 0, match(9), "GGGGGCCCT"))
	expect.EQ(t, b.Frequency(ch.BaseA, ch.BaseG), uint64(5))
	expect.EQ(t, b.Frequency(ch.BaseA, ch.BaseC), uint64(3))
	expect.EQ(t, b.Frequency(ch.BaseA, ch.BaseT), uint64(1))

	for rank, want := range []ch.Base{ch.BaseG, ch.BaseC, ch.BaseT, ch.BaseN} {
		got, err := m.Base(ch.BaseA, rank)
		require.NoError(t, err)
		expect.EQ(t, got, want, "rank %d", rank)
		r, err := m.Rank(ch.BaseA, want)
		require.NoError(t, err)
		expect.EQ(t, r, rank)
	}
	expect.EQ(t, m.String(), "A:GCTN C:AGTN G:ACTN T:ACGN N:ACGT")
}

func TestSubstitutionMatrixDefault(t *testing.T) {
	m, _ := buildMatrix(t, "ACGT", newRecord("r0", 0, match(4), "ACGT"))
	expect.EQ(t, m, ch.DefaultSubstitutionMatrix())

	_, err := m.Rank(ch.BaseC, ch.BaseC)
	expect.NotNil(t, err)
	_, err = m.Base(ch.BaseG, 4)
	expect.NotNil(t, err)
	_, err = m.Base(ch.BaseG, -1)
	expect.NotNil(t, err)
}

func TestSubstitutionMatrixTieBreak(t *testing.T) {
	// Reference C: A x2, T x2, G x1. A and T tie; A comes first.
	m, _ := buildMatrix(t, "CCCCC", newRecord("r0", 0, match(5), "TATAG"))
	expect.EQ(t, m.String(), "A:CGTN C:ATGN G:ACTN T:ACGN N:ACGT")
}

func TestSubstitutionMatrixOrderInvariance(t *testing.T) {
	const ref = "ACGTACGTACGTACGT"
	recs := []*sam.Record{
		newRecord("r0", 0, match(8), "CCGTACTT"),
		newRecord("r1", 4, match(8), "AAGGACGA"),
		newRecord("r2", 8, match(8), "GCGAACGT"),
		newRecord("r3", 2, match(6), "GTTCGA"),
	}
	forward, _ := buildMatrix(t, ref, recs...)
	reversed, _ := buildMatrix(t, ref, recs[3], recs[2], recs[1], recs[0])
	shuffled, _ := buildMatrix(t, ref, recs[2], recs[0], recs[3], recs[1])
	expect.EQ(t, reversed, forward)
	expect.EQ(t, shuffled, forward)
}

func TestSubstitutionMatrixIgnoredBases(t *testing.T) {
	const ref = "ACGTACGTAC"
	cigar := []sam.CigarOp{
		sam.NewCigarOp(sam.CigarSoftClipped, 2),
		sam.NewCigarOp(sam.CigarMatch, 3),
		sam.NewCigarOp(sam.CigarInsertion, 1),
		sam.NewCigarOp(sam.CigarMatch, 2),
		sam.NewCigarOp(sam.CigarDeletion, 1),
		sam.NewCigarOp(sam.CigarMatch, 2),
	}
	// Soft clip "TT" and insertion "G" do not count. The final "CA" is
	// aligned to "TA".
	_, b := buildMatrix(t, ref, newRecord("r0", 1, cigar, "TTCGTGACCA"))
	for ref := ch.BaseA; ref <= ch.BaseT; ref++ {
		for alt := ch.BaseA; alt <= ch.BaseT; alt++ {
			want := uint64(0)
			if ref == ch.BaseT && alt == ch.BaseC {
				want = 1
			}
			expect.EQ(t, b.Frequency(ref, alt), want, "%v->%v", ref, alt)
		}
	}

	// Ambiguous bases on either side are ignored.
	m, b := buildMatrix(t, "ANAN", newRecord("r1", 0, match(4), "NANA"))
	for ref := ch.BaseA; ref <= ch.BaseN; ref++ {
		for alt := ch.BaseA; alt <= ch.BaseN; alt++ {
			expect.EQ(t, b.Frequency(ref, alt), uint64(0))
		}
	}
	expect.EQ(t, m, ch.DefaultSubstitutionMatrix())
}

func TestSubstitutionMatrixUnmapped(t *testing.T) {
	b := &ch.SubstitutionMatrixBuilder{}
	r := newRecord("r0", -1, nil, "ACGT")
	r.Flags = sam.Unmapped
	require.NoError(t, b.Update(nil, r))
	expect.EQ(t, b.Build(), ch.DefaultSubstitutionMatrix())
}

func TestSubstitutionMatrixUpdateErrors(t *testing.T) {
	const ref = "AAAAAAAAAA"
	tests := []struct {
		name string
		rec  *sam.Record
	}{
		{"past reference end", newRecord("r0", 5, match(8), "CCCCCCCC")},
		{"negative position", newRecord("r1", -1, match(2), "CC")},
		{"cigar longer than read", newRecord("r2", 0, match(6), "CCCC")},
		{"unsupported cigar", newRecord("r3", 0, []sam.CigarOp{
			sam.NewCigarOp(sam.CigarMatch, 2),
			sam.NewCigarOp(sam.CigarBack, 1),
		}, "CC")},
	}
	for _, test := range tests {
		b := &ch.SubstitutionMatrixBuilder{}
		expect.NotNil(t, b.Update([]byte(ref), test.rec), test.name)
		for alt := ch.BaseC; alt <= ch.BaseT; alt++ {
			expect.EQ(t, b.Frequency(ch.BaseA, alt), uint64(0), test.name)
		}
	}
}
