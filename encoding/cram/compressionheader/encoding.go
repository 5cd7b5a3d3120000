// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"fmt"

	"github.com/grailbio/cram/encoding/cram/itf8"
	"github.com/pkg/errors"
)

// Kind identifies the codec family of an Encoding. Its value is the codec id
// stored on the wire.
type Kind int32

const (
	// KindNull means the series has no values.
	KindNull Kind = 0
	// KindExternal reads values from an external block.
	KindExternal Kind = 1
	// KindGolomb is the Golomb code. Deprecated by CRAM 3.0, but still
	// parsed.
	KindGolomb Kind = 2
	// KindHuffman is a canonical Huffman code over an explicit alphabet.
	KindHuffman Kind = 3
	// KindByteArrayLen is a length-prefixed byte array.
	KindByteArrayLen Kind = 4
	// KindByteArrayStop is a terminator-delimited byte array.
	KindByteArrayStop Kind = 5
	// KindBeta is a fixed-width binary code with an offset.
	KindBeta Kind = 6
	// KindSubexp is the subexponential code.
	KindSubexp Kind = 7
	// KindGolombRice is the Golomb-Rice code. Deprecated by CRAM 3.0.
	KindGolombRice Kind = 8
	// KindGamma is the Elias gamma code.
	KindGamma Kind = 9
)

var kindNames = []string{
	"null",
	"external",
	"golomb",
	"huffman",
	"byte-array-len",
	"byte-array-stop",
	"beta",
	"subexp",
	"golomb-rice",
	"gamma",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind%d", k)
}

// Encoding describes the codec and parameters of one data series or tag.
// It is a closed set: the implementations are the *Encoding types of this
// package. Consumers dispatch on Kind.
type Encoding interface {
	// Kind returns the codec family.
	Kind() Kind
	// String formats the codec and its parameters, e.g. "external(12)".
	String() string
	// putArgs appends the codec parameters.
	putArgs(b *itf8.Buffer)
}

// NullEncoding describes a series with no values.
type NullEncoding struct{}

// ExternalEncoding reads each value from the external block with the given
// content id.
type ExternalEncoding struct {
	BlockContentID int32
}

// GolombEncoding describes Golomb coding with divisor M.
type GolombEncoding struct {
	Offset int32
	M      int32
}

// HuffmanEncoding describes a canonical Huffman code. Alphabet[i] is coded
// with BitLens[i] bits. A single-symbol alphabet with a zero bit length is the
// usual way to store a constant.
type HuffmanEncoding struct {
	Alphabet []int32
	BitLens  []int32
}

// ByteArrayLenEncoding stores a byte array as a length followed by its bytes.
type ByteArrayLenEncoding struct {
	Lengths Encoding
	Values  Encoding
}

// ByteArrayStopEncoding stores a byte array terminated by Stop in the external
// block with the given content id.
type ByteArrayStopEncoding struct {
	Stop           byte
	BlockContentID int32
}

// BetaEncoding stores value+Offset in BitLen bits.
type BetaEncoding struct {
	Offset int32
	BitLen int32
}

// SubexpEncoding describes subexponential coding with parameter K.
type SubexpEncoding struct {
	Offset int32
	K      int32
}

// GolombRiceEncoding describes Golomb coding with divisor 2^Log2M.
type GolombRiceEncoding struct {
	Offset int32
	Log2M  int32
}

// GammaEncoding describes Elias gamma coding.
type GammaEncoding struct {
	Offset int32
}

func (NullEncoding) Kind() Kind          { return KindNull }
func (ExternalEncoding) Kind() Kind      { return KindExternal }
func (GolombEncoding) Kind() Kind        { return KindGolomb }
func (HuffmanEncoding) Kind() Kind       { return KindHuffman }
func (ByteArrayLenEncoding) Kind() Kind  { return KindByteArrayLen }
func (ByteArrayStopEncoding) Kind() Kind { return KindByteArrayStop }
func (BetaEncoding) Kind() Kind          { return KindBeta }
func (SubexpEncoding) Kind() Kind        { return KindSubexp }
func (GolombRiceEncoding) Kind() Kind    { return KindGolombRice }
func (GammaEncoding) Kind() Kind         { return KindGamma }

func (NullEncoding) putArgs(b *itf8.Buffer) {}

func (e ExternalEncoding) putArgs(b *itf8.Buffer) {
	b.PutITF8(e.BlockContentID)
}

func (e GolombEncoding) putArgs(b *itf8.Buffer) {
	b.PutITF8(e.Offset)
	b.PutITF8(e.M)
}

func (e HuffmanEncoding) putArgs(b *itf8.Buffer) {
	b.PutITF8(int32(len(e.Alphabet)))
	for _, v := range e.Alphabet {
		b.PutITF8(v)
	}
	b.PutITF8(int32(len(e.BitLens)))
	for _, v := range e.BitLens {
		b.PutITF8(v)
	}
}

func (e ByteArrayLenEncoding) putArgs(b *itf8.Buffer) {
	putEncoding(b, e.Lengths)
	putEncoding(b, e.Values)
}

func (e ByteArrayStopEncoding) putArgs(b *itf8.Buffer) {
	b.PutUint8(e.Stop)
	b.PutITF8(e.BlockContentID)
}

func (e BetaEncoding) putArgs(b *itf8.Buffer) {
	b.PutITF8(e.Offset)
	b.PutITF8(e.BitLen)
}

func (e SubexpEncoding) putArgs(b *itf8.Buffer) {
	b.PutITF8(e.Offset)
	b.PutITF8(e.K)
}

func (e GolombRiceEncoding) putArgs(b *itf8.Buffer) {
	b.PutITF8(e.Offset)
	b.PutITF8(e.Log2M)
}

func (e GammaEncoding) putArgs(b *itf8.Buffer) {
	b.PutITF8(e.Offset)
}

// putEncoding appends e as codec_id:itf8 args_len:itf8 args.
func putEncoding(b *itf8.Buffer, e Encoding) {
	var args itf8.Buffer
	e.putArgs(&args)
	b.PutITF8(int32(e.Kind()))
	b.PutITF8(int32(len(args)))
	b.PutBytes(args)
}

// readEncoding parses one encoding descriptor. The declared args must be
// consumed exactly.
func readEncoding(b *itf8.Buffer) (Encoding, error) {
	id, err := b.ITF8()
	if err != nil {
		return nil, err
	}
	n, err := b.ITF8()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidHeader, "%v encoding: negative args length %d", Kind(id), n)
	}
	raw, err := b.RawBytes(int(n))
	if err != nil {
		return nil, err
	}
	args := itf8.Buffer(raw)
	var e Encoding
	switch kind := Kind(id); kind {
	case KindNull:
		e = NullEncoding{}
	case KindExternal:
		var x ExternalEncoding
		x.BlockContentID, err = args.ITF8()
		e = x
	case KindGolomb:
		var x GolombEncoding
		x.Offset, x.M, err = readPair(&args)
		e = x
	case KindHuffman:
		var x HuffmanEncoding
		if x.Alphabet, err = readInt32s(&args); err == nil {
			x.BitLens, err = readInt32s(&args)
		}
		if err == nil && len(x.Alphabet) != len(x.BitLens) {
			return nil, errors.Wrapf(ErrInvalidHeader, "huffman encoding: %d symbols but %d bit lengths", len(x.Alphabet), len(x.BitLens))
		}
		e = x
	case KindByteArrayLen:
		var x ByteArrayLenEncoding
		if x.Lengths, err = readEncoding(&args); err == nil {
			x.Values, err = readEncoding(&args)
		}
		e = x
	case KindByteArrayStop:
		var x ByteArrayStopEncoding
		if x.Stop, err = args.Uint8(); err == nil {
			x.BlockContentID, err = args.ITF8()
		}
		e = x
	case KindBeta:
		var x BetaEncoding
		x.Offset, x.BitLen, err = readPair(&args)
		e = x
	case KindSubexp:
		var x SubexpEncoding
		x.Offset, x.K, err = readPair(&args)
		e = x
	case KindGolombRice:
		var x GolombRiceEncoding
		x.Offset, x.Log2M, err = readPair(&args)
		e = x
	case KindGamma:
		var x GammaEncoding
		x.Offset, err = args.ITF8()
		e = x
	default:
		return nil, errors.Wrapf(ErrInvalidHeader, "unknown encoding codec id %d", id)
	}
	if errors.Cause(err) == itf8.ErrShortBuffer {
		// The args are complete; they just don't hold the values the codec
		// needs.
		return nil, errors.Wrapf(ErrInvalidHeader, "%v encoding: %d argument bytes end inside a value", Kind(id), n)
	}
	if err != nil {
		return nil, err
	}
	if len(args) != 0 {
		return nil, errors.Wrapf(ErrInvalidHeader, "%v encoding: %d unused argument bytes", e.Kind(), len(args))
	}
	return e, nil
}

func readPair(b *itf8.Buffer) (int32, int32, error) {
	v0, err := b.ITF8()
	if err != nil {
		return 0, 0, err
	}
	v1, err := b.ITF8()
	return v0, v1, err
}

// readInt32s reads an ITF8 count followed by that many ITF8 values.
func readInt32s(b *itf8.Buffer) ([]int32, error) {
	n, err := b.ITF8()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > len(*b) {
		// Every value takes at least one byte.
		if n < 0 {
			return nil, errors.Wrapf(ErrInvalidHeader, "negative array length %d", n)
		}
		return nil, itf8.ErrShortBuffer
	}
	var vs []int32
	for i := int32(0); i < n; i++ {
		v, err := b.ITF8()
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func (NullEncoding) String() string { return "null" }

func (e ExternalEncoding) String() string {
	return fmt.Sprintf("external(%d)", e.BlockContentID)
}

func (e GolombEncoding) String() string {
	return fmt.Sprintf("golomb(offset=%d, m=%d)", e.Offset, e.M)
}

func (e HuffmanEncoding) String() string {
	return fmt.Sprintf("huffman(alphabet=%v, bitlens=%v)", e.Alphabet, e.BitLens)
}

func (e ByteArrayLenEncoding) String() string {
	return fmt.Sprintf("byte-array-len(%v, %v)", e.Lengths, e.Values)
}

func (e ByteArrayStopEncoding) String() string {
	return fmt.Sprintf("byte-array-stop(%#02x, %d)", e.Stop, e.BlockContentID)
}

func (e BetaEncoding) String() string {
	return fmt.Sprintf("beta(offset=%d, bits=%d)", e.Offset, e.BitLen)
}

func (e SubexpEncoding) String() string {
	return fmt.Sprintf("subexp(offset=%d, k=%d)", e.Offset, e.K)
}

func (e GolombRiceEncoding) String() string {
	return fmt.Sprintf("golomb-rice(offset=%d, log2m=%d)", e.Offset, e.Log2M)
}

func (e GammaEncoding) String() string {
	return fmt.Sprintf("gamma(offset=%d)", e.Offset)
}
