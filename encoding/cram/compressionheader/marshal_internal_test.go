package compressionheader

import (
	"testing"

	"github.com/grailbio/cram/encoding/cram/itf8"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// preservationMapNMC is a preservation map with all flags false, the default
// substitution matrix and the single schema [NM:C].
var preservationMapNMC = []byte{
	0x18, // size
	0x05, // count
	'R', 'N', 0x00,
	'A', 'P', 0x00,
	'R', 'R', 0x00,
	'S', 'M', 0x1b, 0x1b, 0x1b, 0x1b, 0x1b,
	'T', 'D', 0x04, 'N', 'M', 'C', 0x00,
}

func TestPreservationMapWireFormat(t *testing.T) {
	var b TagIDsDictionaryBuilder
	rec := &sam.Record{AuxFields: []sam.Aux{{'N', 'M', 'C', 2}}}
	b.Update(rec)
	pm := NewPreservationMap(false, false, false, DefaultSubstitutionMatrix(), b.Build())

	var buf itf8.Buffer
	putSegment(&buf, numPreservationEntries, marshalPreservationMap(&pm))
	expect.EQ(t, []byte(buf), preservationMapNMC)

	in := itf8.Buffer(preservationMapNMC)
	got, err := readPreservationMap(&in)
	require.NoError(t, err)
	expect.EQ(t, got, pm)
	expect.EQ(t, len(in), 0)
}

func TestSubstitutionMatrixWireFormat(t *testing.T) {
	m := DefaultSubstitutionMatrix()
	expect.EQ(t, m.marshal(), [5]byte{0x1b, 0x1b, 0x1b, 0x1b, 0x1b})

	// A: G, C, T, N gives C rank 1, G rank 0, T rank 2, N rank 3.
	var sb SubstitutionMatrixBuilder
	require.NoError(t, sb.Update([]byte("AAAAAAAAA"), &sam.Record{
		Cigar: []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 9)},
		Seq:   sam.NewSeq([]byte("GGGGGCCCT")),
	}))
	m = sb.Build()
	data := m.marshal()
	expect.EQ(t, data[BaseA], byte(1<<6|0<<4|2<<2|3))

	got, err := unmarshalSubstitutionMatrix(data[:])
	require.NoError(t, err)
	expect.EQ(t, got, m)

	// Rank 0 twice in the C row.
	data[BaseC] = 0x03
	_, err = unmarshalSubstitutionMatrix(data[:])
	expect.EQ(t, errors.Cause(err), ErrInvalidHeader)
}

func TestTagIDsDictionaryWireFormat(t *testing.T) {
	d, err := unmarshalTagIDsDictionary([]byte("NMiMDZ\x00\x00ASi\x00"))
	require.NoError(t, err)
	expect.EQ(t, d.String(), "[NM:i,MD:Z] [] [AS:i]")
	expect.EQ(t, d.marshal(), []byte("NMiMDZ\x00\x00ASi\x00"))

	// A repeated schema keeps its position.
	d, err = unmarshalTagIDsDictionary([]byte("NMi\x00NMi\x00ASi\x00"))
	require.NoError(t, err)
	expect.EQ(t, d.Len(), 3)
	nm := []Key{NewKey("NM", 'i')}
	for i, want := range [][]Key{nm, nm, {NewKey("AS", 'i')}} {
		got, err := d.Schema(i)
		require.NoError(t, err)
		expect.EQ(t, got, want, "schema %d", i)
	}
	i, ok := d.IndexOf(nm)
	expect.True(t, ok)
	expect.EQ(t, i, 0)
	expect.EQ(t, d.marshal(), []byte("NMi\x00NMi\x00ASi\x00"))

	for _, data := range []string{"NMiMD", "NMi"} {
		_, err := unmarshalTagIDsDictionary([]byte(data))
		expect.EQ(t, errors.Cause(err), ErrTruncatedHeader, data)
	}
}

func TestEncodingWireFormat(t *testing.T) {
	tests := []struct {
		enc  Encoding
		want []byte
	}{
		{NullEncoding{}, []byte{0, 0}},
		{ExternalEncoding{BlockContentID: 5}, []byte{1, 1, 5}},
		{ByteArrayStopEncoding{Stop: 0, BlockContentID: 12}, []byte{5, 2, 0, 12}},
		{BetaEncoding{Offset: 0, BitLen: 8}, []byte{6, 2, 0, 8}},
		{HuffmanEncoding{Alphabet: []int32{65}, BitLens: []int32{0}}, []byte{3, 4, 1, 65, 1, 0}},
		{ByteArrayLenEncoding{
			Lengths: ExternalEncoding{BlockContentID: 3},
			Values:  ExternalEncoding{BlockContentID: 4},
		}, []byte{4, 6, 1, 1, 3, 1, 1, 4}},
		// External block ids for tags are 3-byte values.
		{ExternalEncoding{BlockContentID: NewKey("NM", 'i').ID()}, []byte{1, 4, 0xe0, 'N', 'M', 'i'}},
	}
	for _, test := range tests {
		var buf itf8.Buffer
		putEncoding(&buf, test.enc)
		expect.EQ(t, []byte(buf), test.want, test.enc)

		got, err := readEncoding(&buf)
		require.NoError(t, err, test.enc)
		expect.EQ(t, got, test.enc)
		expect.EQ(t, len(buf), 0)
	}
}

func TestReadEncodingInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"unknown codec", []byte{10, 0}, ErrInvalidHeader},
		{"unused args", []byte{1, 2, 5, 5}, ErrInvalidHeader},
		{"huffman length mismatch", []byte{3, 5, 1, 65, 2, 0, 0}, ErrInvalidHeader},
		{"negative args length", []byte{1, 0xff, 0xff, 0xff, 0xff, 0x0f}, ErrInvalidHeader},
		{"short args", []byte{1, 3, 5}, itf8.ErrShortBuffer},
		{"args end early", []byte{6, 1, 0}, ErrInvalidHeader},
		{"huffman args end early", []byte{3, 2, 2, 65}, ErrInvalidHeader},
		{"nested args end early", []byte{4, 3, 1, 2, 7}, ErrInvalidHeader},
	}
	for _, test := range tests {
		b := itf8.Buffer(test.data)
		_, err := readEncoding(&b)
		expect.EQ(t, errors.Cause(err), test.want, test.name)
	}
}

// segment frames entries the way Marshal does.
func segment(count int, entries ...byte) []byte {
	var b itf8.Buffer
	putSegment(&b, count, entries)
	return b
}

func TestUnmarshalInvalid(t *testing.T) {
	sm := []byte{'S', 'M', 0x1b, 0x1b, 0x1b, 0x1b, 0x1b}
	td := []byte{'T', 'D', 0x00}
	empty := segment(0)
	header := func(pm []byte, rest ...[]byte) []byte {
		data := append([]byte(nil), pm...)
		for _, r := range rest {
			data = append(data, r...)
		}
		return data
	}
	pm := segment(2, append(append([]byte(nil), sm...), td...)...)

	tests := []struct {
		name string
		data []byte
	}{
		{"invalid boolean", header(segment(3, append([]byte{'R', 'N', 2}, append(sm, td...)...)...), empty, empty)},
		{"unknown key", header(segment(3, append([]byte{'X', 'X', 1}, append(sm, td...)...)...), empty, empty)},
		{"duplicate key", header(segment(3, append(append([]byte(nil), sm...), append(sm, td...)...)...), empty, empty)},
		{"missing substitution matrix", header(segment(1, td...), empty, empty)},
		{"missing tag ids dictionary", header(segment(1, sm...), empty, empty)},
		{"unknown data series", header(pm, segment(1, 'Z', 'Z', 1, 1, 1), empty)},
		{"duplicate data series", header(pm, segment(2, 'B', 'F', 1, 1, 1, 'B', 'F', 1, 1, 2), empty)},
		{"unknown codec", header(pm, segment(1, 'B', 'F', 12, 0), empty)},
		{"encoding args end inside a value", header(pm, segment(1, 'B', 'F', 6, 1, 0), empty)},
		{"bytes after last entry", header(pm, segment(1, 'B', 'F', 1, 1, 1, 0), empty)},
		{"duplicate tag", header(pm, empty, segment(2, 0x01, 0, 0, 0x01, 0, 0))},
	}
	for _, test := range tests {
		h, err := Unmarshal(test.data)
		expect.Nil(t, h, test.name)
		expect.EQ(t, errors.Cause(err), ErrInvalidHeader, "%s: %v", test.name, err)
	}
}

func TestUnmarshalDefaultsAndTrailingData(t *testing.T) {
	// Flags absent from the stream default to true.
	data := segment(2, 'S', 'M', 0x1b, 0x1b, 0x1b, 0x1b, 0x1b, 'T', 'D', 0x00)
	data = append(data, segment(0)...)
	data = append(data, segment(0)...)
	data = append(data, 0xff)
	h, err := Unmarshal(data)
	require.NoError(t, err)
	pm := h.PreservationMap()
	expect.True(t, pm.ReadNamesIncluded())
	expect.True(t, pm.APDataSeriesDelta())
	expect.True(t, pm.ReferenceRequired())
	expect.EQ(t, pm.TagIDsDictionary().Len(), 0)
}
