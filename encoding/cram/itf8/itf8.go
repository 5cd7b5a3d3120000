// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package itf8 implements the variable-length integer encodings used
// throughout the CRAM format: ITF8 for 32-bit values and LTF8 for 64-bit
// values. See section 2.3 of https://samtools.github.io/hts-specs/CRAMv3.pdf.
//
// Both encodings store the number of continuation bytes as a unary prefix in
// the high bits of the first byte, followed by the value in big-endian order.
// Negative values are stored as their two's complement and always take the
// maximum width.
package itf8

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// MaxLen is the maximum encoded length of an ITF8 value.
	MaxLen = 5
	// MaxLTF8Len is the maximum encoded length of an LTF8 value.
	MaxLTF8Len = 9
)

// ErrShortBuffer is returned when a buffer ends in the middle of a value.
var ErrShortBuffer = errors.New("itf8: short buffer")

// Size returns the number of bytes needed to encode v as ITF8.
func Size(v int32) int {
	u := uint32(v)
	switch {
	case u < 1<<7:
		return 1
	case u < 1<<14:
		return 2
	case u < 1<<21:
		return 3
	case u < 1<<28:
		return 4
	}
	return 5
}

// LTF8Size returns the number of bytes needed to encode v as LTF8.
func LTF8Size(v int64) int {
	u := uint64(v)
	n := 1
	for shift := uint(7); n < 9 && u >= 1<<shift; shift += 7 {
		n++
	}
	return n
}

// Buffer is a growable byte slice with ITF8/LTF8 encoders and decoders. It
// can be used either for reading or writing, but not both at the same time.
// The read methods consume the bytes they decode.
type Buffer []byte

// Ensure that b can store at least "n" more bytes, and return the slice for
// those bytes.
func (b *Buffer) alloc(n int) []byte {
	blen := len(*b)
	newLen := blen + n
	if cap(*b) >= newLen {
		*b = (*b)[:newLen]
		return (*b)[blen:]
	}
	newCap := (newLen/16 + 1) * 16
	if newCap < cap(*b)*2 {
		newCap = cap(*b) * 2
	}
	newBuf := make([]byte, newLen, newCap)
	copy(newBuf, *b)
	*b = newBuf
	return (*b)[blen:]
}

// PutUint8 appends one byte.
func (b *Buffer) PutUint8(v uint8) {
	b.alloc(1)[0] = v
}

// PutBytes appends data raw, w/o prefixing its length.
func (b *Buffer) PutBytes(data []byte) {
	copy(b.alloc(len(data)), data)
}

// PutUint32 appends v as a little-endian fixed32.
func (b *Buffer) PutUint32(v uint32) {
	binary.LittleEndian.PutUint32(b.alloc(4), v)
}

// PutITF8 appends v in ITF8 encoding.
func (b *Buffer) PutITF8(v int32) {
	u := uint32(v)
	switch n := Size(v); n {
	case 1:
		b.PutUint8(uint8(u))
	case 2:
		x := b.alloc(2)
		x[0] = uint8(u>>8) | 0x80
		x[1] = uint8(u)
	case 3:
		x := b.alloc(3)
		x[0] = uint8(u>>16) | 0xc0
		x[1] = uint8(u >> 8)
		x[2] = uint8(u)
	case 4:
		x := b.alloc(4)
		x[0] = uint8(u>>24) | 0xe0
		x[1] = uint8(u >> 16)
		x[2] = uint8(u >> 8)
		x[3] = uint8(u)
	default:
		// The last byte only carries the low 4 bits.
		x := b.alloc(5)
		x[0] = uint8(u>>28) | 0xf0
		x[1] = uint8(u >> 20)
		x[2] = uint8(u >> 12)
		x[3] = uint8(u >> 4)
		x[4] = uint8(u) & 0x0f
	}
}

// PutLTF8 appends v in LTF8 encoding.
func (b *Buffer) PutLTF8(v int64) {
	u := uint64(v)
	n := LTF8Size(v)
	x := b.alloc(n)
	switch n {
	case 9:
		x[0] = 0xff
		binary.BigEndian.PutUint64(x[1:], u)
	case 8:
		x[0] = 0xfe
		for i := 1; i < 8; i++ {
			x[i] = uint8(u >> uint(8*(7-i)))
		}
	default:
		// (n-1) leading one bits, then a zero bit, then the value.
		prefix := uint8(0xff << uint(9-n))
		for i := n - 1; i > 0; i-- {
			x[i] = uint8(u)
			u >>= 8
		}
		x[0] = prefix | uint8(u)
	}
}

// Uint8 reads one byte.
func (b *Buffer) Uint8() (uint8, error) {
	if len(*b) < 1 {
		return 0, ErrShortBuffer
	}
	v := (*b)[0]
	*b = (*b)[1:]
	return v, nil
}

// RawBytes extracts the next n bytes. The result aliases the buffer.
func (b *Buffer) RawBytes(n int) ([]byte, error) {
	if n < 0 || len(*b) < n {
		return nil, ErrShortBuffer
	}
	v := (*b)[:n:n]
	*b = (*b)[n:]
	return v, nil
}

// Uint32 reads a little-endian fixed32.
func (b *Buffer) Uint32() (uint32, error) {
	if len(*b) < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v, nil
}

// ITF8 reads an ITF8-encoded value.
func (b *Buffer) ITF8() (int32, error) {
	v, n, err := Decode(*b)
	if err != nil {
		return 0, err
	}
	*b = (*b)[n:]
	return v, nil
}

// LTF8 reads an LTF8-encoded value.
func (b *Buffer) LTF8() (int64, error) {
	v, n, err := DecodeLTF8(*b)
	if err != nil {
		return 0, err
	}
	*b = (*b)[n:]
	return v, nil
}

// itf8Len returns the encoded length implied by the first byte of an ITF8
// value.
func itf8Len(b0 uint8) int {
	switch {
	case b0&0x80 == 0:
		return 1
	case b0&0x40 == 0:
		return 2
	case b0&0x20 == 0:
		return 3
	case b0&0x10 == 0:
		return 4
	}
	return 5
}

// Decode decodes one ITF8 value from the head of src. It returns the value and
// the number of bytes consumed.
func Decode(src []byte) (int32, int, error) {
	if len(src) == 0 {
		return 0, 0, ErrShortBuffer
	}
	n := itf8Len(src[0])
	if len(src) < n {
		return 0, 0, ErrShortBuffer
	}
	var u uint32
	switch n {
	case 1:
		u = uint32(src[0])
	case 2:
		u = uint32(src[0]&0x7f)<<8 | uint32(src[1])
	case 3:
		u = uint32(src[0]&0x3f)<<16 | uint32(src[1])<<8 | uint32(src[2])
	case 4:
		u = uint32(src[0]&0x1f)<<24 | uint32(src[1])<<16 | uint32(src[2])<<8 | uint32(src[3])
	default:
		u = uint32(src[0]&0x0f)<<28 | uint32(src[1])<<20 | uint32(src[2])<<12 |
			uint32(src[3])<<4 | uint32(src[4]&0x0f)
	}
	return int32(u), n, nil
}

// ltf8Len returns the encoded length implied by the first byte of an LTF8
// value.
func ltf8Len(b0 uint8) int {
	n := 1
	for mask := uint8(0x80); n < 9 && b0&mask != 0; mask >>= 1 {
		n++
	}
	return n
}

// DecodeLTF8 decodes one LTF8 value from the head of src. It returns the value
// and the number of bytes consumed.
func DecodeLTF8(src []byte) (int64, int, error) {
	if len(src) == 0 {
		return 0, 0, ErrShortBuffer
	}
	n := ltf8Len(src[0])
	if len(src) < n {
		return 0, 0, ErrShortBuffer
	}
	var u uint64
	switch n {
	case 9:
		u = binary.BigEndian.Uint64(src[1:9])
	case 8:
		for i := 1; i < 8; i++ {
			u = u<<8 | uint64(src[i])
		}
	default:
		u = uint64(src[0] & (0xff >> uint(n)))
		for i := 1; i < n; i++ {
			u = u<<8 | uint64(src[i])
		}
	}
	return int64(u), n, nil
}

// Read reads one ITF8 value from r. It returns io.EOF if r is exhausted before
// the first byte, and io.ErrUnexpectedEOF if it ends in the middle of a value.
func Read(r io.Reader) (int32, error) {
	var buf [MaxLen]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, err
	}
	n := itf8Len(buf[0])
	if _, err := io.ReadFull(r, buf[1:n]); err != nil {
		return 0, noEOF(err)
	}
	v, _, err := Decode(buf[:n])
	return v, err
}

// ReadLTF8 reads one LTF8 value from r. Errors are reported as in Read.
func ReadLTF8(r io.Reader) (int64, error) {
	var buf [MaxLTF8Len]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, err
	}
	n := ltf8Len(buf[0])
	if _, err := io.ReadFull(r, buf[1:n]); err != nil {
		return 0, noEOF(err)
	}
	v, _, err := DecodeLTF8(buf[:n])
	return v, err
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
