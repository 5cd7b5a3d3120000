package block_test

import (
	"bytes"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/grailbio/cram/encoding/cram/block"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var payload = []byte(strings.Repeat("ACGTTGCAACGGTTCA", 64))

// reseal recomputes the checksum of a block whose fields were edited by hand.
func reseal(b *block.Block) {
	buf := b.Marshal()
	b.CRC32 = crc32.ChecksumIEEE(buf[:len(buf)-4])
}

func TestRoundTrip(t *testing.T) {
	for _, method := range []block.Method{block.Raw, block.Gzip, block.Bzip2, block.LZMA} {
		b, err := block.New(method, block.ExternalData, 12, payload)
		require.NoError(t, err, method)
		expect.EQ(t, b.RawSize, int32(len(payload)))
		if method != block.Raw {
			expect.True(t, len(b.Data) < len(payload), method)
		}

		var buf bytes.Buffer
		require.NoError(t, b.Write(&buf))
		expect.EQ(t, buf.Len(), b.Size())

		b2, err := block.Read(&buf)
		require.NoError(t, err, method)
		expect.EQ(t, b2, b)
		expect.EQ(t, buf.Len(), 0)

		data, err := b2.DecompressedData()
		require.NoError(t, err, method)
		expect.EQ(t, data, payload)
	}
}

func TestEmptyPayload(t *testing.T) {
	b, err := block.New(block.Gzip, block.CompressionHeader, 0, nil)
	require.NoError(t, err)
	b2, err := block.Read(bytes.NewReader(b.Marshal()))
	require.NoError(t, err)
	data, err := b2.DecompressedData()
	require.NoError(t, err)
	expect.EQ(t, len(data), 0)
}

func TestReadTruncated(t *testing.T) {
	b, err := block.New(block.Gzip, block.CompressionHeader, 0, payload)
	require.NoError(t, err)
	serialized := b.Marshal()
	for n := 0; n < len(serialized); n++ {
		_, err := block.Read(bytes.NewReader(serialized[:n]))
		require.Error(t, err, "length %d", n)
		expect.EQ(t, errors.Cause(err), block.ErrTruncatedInput, "length %d", n)
	}
}

func TestUnsupportedMethod(t *testing.T) {
	b := &block.Block{
		Method:      block.NameTokenizer,
		ContentType: block.ExternalData,
		ContentID:   3,
		RawSize:     4,
		Data:        []byte{1, 2, 3, 4},
	}
	reseal(b)
	_, err := block.Read(bytes.NewReader(b.Marshal()))
	require.NoError(t, err)
	_, err = b.DecompressedData()
	expect.EQ(t, errors.Cause(err), block.ErrUnsupportedMethod)

	_, err = block.New(block.RANS4x8, block.ExternalData, 1, payload)
	expect.EQ(t, errors.Cause(err), block.ErrUnsupportedMethod)
}

func TestRawSizeMismatch(t *testing.T) {
	b := &block.Block{
		Method:      block.Raw,
		ContentType: block.ExternalData,
		ContentID:   1,
		RawSize:     100,
		Data:        make([]byte, 90),
	}
	reseal(b)
	_, err := b.DecompressedData()
	expect.EQ(t, errors.Cause(err), block.ErrCorruptPayload)

	gz, err := block.New(block.Gzip, block.ExternalData, 1, make([]byte, 90))
	require.NoError(t, err)
	gz.RawSize = 100
	reseal(gz)
	_, err = gz.DecompressedData()
	expect.EQ(t, errors.Cause(err), block.ErrCorruptPayload)
}

func TestChecksumMismatch(t *testing.T) {
	b, err := block.New(block.Raw, block.ExternalData, 5, payload)
	require.NoError(t, err)
	serialized := b.Marshal()
	serialized[10] ^= 0xff

	b2, err := block.Read(bytes.NewReader(serialized))
	require.NoError(t, err)
	_, err = b2.DecompressedData()
	expect.EQ(t, errors.Cause(err), block.ErrCorruptPayload)
}

func TestCorruptCompressedStream(t *testing.T) {
	b := &block.Block{
		Method:      block.Gzip,
		ContentType: block.ExternalData,
		RawSize:     10,
		Data:        []byte("not a gzip stream"),
	}
	reseal(b)
	_, err := b.DecompressedData()
	expect.EQ(t, errors.Cause(err), block.ErrCorruptPayload)
}

type xorCodec struct{}

func (xorCodec) Compress(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	for i, c := range raw {
		out[i] = c ^ 0x5a
	}
	return out, nil
}

func (c xorCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	return c.Compress(data)
}

func TestRegisterCodec(t *testing.T) {
	const custom = block.Method(42)
	_, ok := block.LookupCodec(custom)
	expect.False(t, ok)

	block.RegisterCodec(custom, xorCodec{})
	b, err := block.New(custom, block.CoreData, 0, payload)
	require.NoError(t, err)
	expect.EQ(t, b.Method.String(), "Method42")
	data, err := b.DecompressedData()
	require.NoError(t, err)
	expect.EQ(t, data, payload)
}

func TestMethodNames(t *testing.T) {
	for _, m := range []block.Method{block.Raw, block.Gzip, block.Bzip2, block.LZMA, block.RANS4x8} {
		got, err := block.ParseMethod(m.String())
		require.NoError(t, err)
		expect.EQ(t, got, m)
	}
	_, err := block.ParseMethod("snappy")
	require.Error(t, err)
	expect.True(t, strings.Contains(err.Error(), "snappy"), err)
	expect.EQ(t, block.CompressionHeader.String(), "compression-header")
}

func TestReadLongEncodedHeader(t *testing.T) {
	// Content id 5, compressed size 3 and raw size 3, each as two-byte ITF8.
	serialized := []byte{byte(block.Raw), byte(block.ExternalData), 0x80, 5, 0x80, 3, 0x80, 3, 'a', 'b', 'c'}
	crc := crc32.ChecksumIEEE(serialized)
	serialized = append(serialized, byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))

	r := bytes.NewReader(append(append([]byte(nil), serialized...), 0xff))
	b, err := block.Read(r)
	require.NoError(t, err)
	expect.EQ(t, b.ContentID, int32(5))
	expect.EQ(t, b.RawSize, int32(3))
	expect.EQ(t, b.Size(), len(serialized))
	expect.EQ(t, r.Len(), 1)
	expect.EQ(t, b.Marshal(), serialized)
	data, err := b.DecompressedData()
	require.NoError(t, err)
	expect.EQ(t, data, []byte("abc"))

	// Edited fields fall back to the shortest encoding.
	b.ContentID = 6
	reseal(b)
	expect.EQ(t, b.Size(), len(serialized)-3)
	_, err = b.DecompressedData()
	require.NoError(t, err)
}
