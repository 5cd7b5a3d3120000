package container_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/grailbio/cram/encoding/cram/block"
	"github.com/grailbio/cram/encoding/cram/container"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFileDefinition(t *testing.T) {
	d := container.NewFileDefinition("sample.cram")
	var buf bytes.Buffer
	require.NoError(t, container.WriteFileDefinition(&buf, d))
	expect.EQ(t, buf.Len(), container.FileDefinitionLen)
	expect.EQ(t, buf.Bytes()[:6], []byte{'C', 'R', 'A', 'M', 3, 0})

	got, err := container.ReadFileDefinition(&buf)
	require.NoError(t, err)
	expect.EQ(t, got, d)

	tests := []struct {
		data []byte
		want error
	}{
		{[]byte("CRAM\x03"), container.ErrTruncated},
		{append([]byte("BAM\x01\x03\x00"), make([]byte, 20)...), container.ErrInvalid},
		{append([]byte("CRAM\x02\x01"), make([]byte, 20)...), container.ErrInvalid},
	}
	for _, test := range tests {
		_, err := container.ReadFileDefinition(bytes.NewReader(test.data))
		expect.EQ(t, errors.Cause(err), test.want, "%q", test.data)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &container.Header{
		Length:         123456,
		ReferenceID:    2,
		AlignmentStart: 1000000,
		AlignmentSpan:  15000,
		NumRecords:     10000,
		RecordCounter:  1 << 40,
		Bases:          1500000,
		NumBlocks:      31,
		Landmarks:      []int32{0, 80000},
	}
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))
	serialized := append([]byte(nil), buf.Bytes()...)

	got, err := container.ReadHeader(&buf)
	require.NoError(t, err)
	expect.EQ(t, got, h)
	expect.False(t, got.IsEOF())

	_, err = container.ReadHeader(&buf)
	expect.EQ(t, err, io.EOF)

	for n := 1; n < len(serialized); n++ {
		_, err := container.ReadHeader(bytes.NewReader(serialized[:n]))
		expect.EQ(t, errors.Cause(err), container.ErrTruncated, "length %d", n)
	}

	serialized[5] ^= 1
	_, err = container.ReadHeader(bytes.NewReader(serialized))
	expect.EQ(t, errors.Cause(err), container.ErrInvalid)
}

func TestEOF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, container.WriteEOF(&buf))
	eof := append([]byte(nil), buf.Bytes()...)

	h, err := container.ReadHeader(&buf)
	require.NoError(t, err)
	expect.True(t, h.IsEOF())
	expect.EQ(t, h.Length, int32(buf.Len()))
	expect.EQ(t, h.NumBlocks, int32(1))
	expect.EQ(t, h.Marshal(), eof[:len(eof)-buf.Len()])

	b, err := block.Read(&buf)
	require.NoError(t, err)
	expect.EQ(t, b.ContentType, block.CompressionHeader)
	data, err := b.DecompressedData()
	require.NoError(t, err)
	expect.EQ(t, data, []byte{1, 0, 1, 0, 1, 0})
}

func TestSkip(t *testing.T) {
	h := &container.Header{Length: 10, NumBlocks: 1}
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))
	buf.Write(make([]byte, 10))
	require.NoError(t, container.WriteEOF(&buf))

	got, err := container.ReadHeader(&buf)
	require.NoError(t, err)
	require.NoError(t, container.Skip(&buf, got))
	got, err = container.ReadHeader(&buf)
	require.NoError(t, err)
	expect.True(t, got.IsEOF())

	err = container.Skip(bytes.NewReader(make([]byte, 4)), &container.Header{Length: 10})
	expect.EQ(t, errors.Cause(err), container.ErrTruncated)
}
