// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package block

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/grailbio/cram/encoding/cram/itf8"
	"github.com/pkg/errors"
)

// Method identifies the algorithm used to compress a block's payload.
type Method uint8

const (
	// Raw means the payload is stored uncompressed.
	Raw Method = iota
	// Gzip is RFC 1952 gzip.
	Gzip
	// Bzip2 is bzip2.
	Bzip2
	// LZMA is LZMA in an xz container.
	LZMA
	// RANS4x8 is the order-0/1 rANS codec with 4x8-bit states.
	RANS4x8
	// RANSNx16 is the CRAM 3.1 rANS codec.
	RANSNx16
	// AdaptiveArithmetic is the CRAM 3.1 adaptive arithmetic coder.
	AdaptiveArithmetic
	// FQZComp is the CRAM 3.1 quality score codec.
	FQZComp
	// NameTokenizer is the CRAM 3.1 read name codec.
	NameTokenizer
)

var methodNames = []string{
	"raw",
	"gzip",
	"bzip2",
	"lzma",
	"rans4x8",
	"ransNx16",
	"arith",
	"fqzcomp",
	"tok3",
}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("Method%d", m)
}

// ParseMethod converts a string to Method. For example, "gzip" returns Gzip.
func ParseMethod(v string) (Method, error) {
	for m, name := range methodNames {
		if name == v {
			return Method(m), nil
		}
	}
	return Raw, errors.Errorf("%v: invalid block compression method", v)
}

// ContentType identifies what a block holds.
type ContentType uint8

const (
	// FileHeader blocks hold the SAM header.
	FileHeader ContentType = iota
	// CompressionHeader blocks hold a container's compression header.
	CompressionHeader
	// SliceHeader blocks hold a slice header.
	SliceHeader
	// Reserved is unused.
	Reserved
	// ExternalData blocks hold one external data stream.
	ExternalData
	// CoreData blocks hold the bit-packed core data stream.
	CoreData
)

var contentTypeNames = []string{
	"file-header",
	"compression-header",
	"slice-header",
	"reserved",
	"external",
	"core",
}

func (c ContentType) String() string {
	if int(c) < len(contentTypeNames) {
		return contentTypeNames[c]
	}
	return fmt.Sprintf("ContentType%d", c)
}

var (
	// ErrTruncatedInput is returned when the input ends before the sizes
	// declared by the block are satisfied.
	ErrTruncatedInput = errors.New("block: truncated input")
	// ErrUnsupportedMethod is returned when no codec is registered for the
	// block's compression method.
	ErrUnsupportedMethod = errors.New("block: unsupported compression method")
	// ErrCorruptPayload is returned when the checksum does not match or the
	// payload does not decompress to the declared raw size.
	ErrCorruptPayload = errors.New("block: corrupt payload")
	// ErrInvalidBlock is returned when a block declares an impossible size.
	ErrInvalidBlock = errors.New("block: invalid block")
)

// Block is one compressed segment of a CRAM container. A Block is never
// modified after it is read or created.
//
// The serialized form is
//
//	method:u8 content_type:u8 content_id:itf8 compressed_size:itf8
//	raw_size:itf8 data[compressed_size] crc32:u32
//
// where crc32 covers all preceding bytes of the block.
type Block struct {
	Method      Method
	ContentType ContentType
	// ContentID identifies the external data stream. It is 0 for all content
	// types other than ExternalData.
	ContentID int32
	// RawSize is the size of the payload after decompression.
	RawSize int32
	// Data is the compressed payload. Its length is the compressed size.
	Data []byte
	// CRC32 is the checksum stored with the block.
	CRC32 uint32

	// header holds the header bytes exactly as Read consumed them, when they
	// are not the shortest encoding of the fields. The CRC covers these bytes.
	header []byte
}

// New compresses raw with the given method and returns a Block holding it.
func New(method Method, contentType ContentType, contentID int32, raw []byte) (*Block, error) {
	c, ok := LookupCodec(method)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMethod, "new %v block: %v", contentType, method)
	}
	data, err := c.Compress(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "new %v block", contentType)
	}
	b := &Block{
		Method:      method,
		ContentType: contentType,
		ContentID:   contentID,
		RawSize:     int32(len(raw)),
		Data:        data,
	}
	b.CRC32 = b.checksum()
	return b, nil
}

func (b *Block) putHeader(buf *itf8.Buffer) {
	buf.PutUint8(uint8(b.Method))
	buf.PutUint8(uint8(b.ContentType))
	buf.PutITF8(b.ContentID)
	buf.PutITF8(int32(len(b.Data)))
	buf.PutITF8(b.RawSize)
}

// encodedHeader returns the serialized header: the bytes Read consumed if
// they still describe the block's fields, else the shortest encoding.
func (b *Block) encodedHeader() []byte {
	if b.header != nil {
		hdr := itf8.Buffer(b.header[2:])
		id, err0 := hdr.ITF8()
		size, err1 := hdr.ITF8()
		raw, err2 := hdr.ITF8()
		if err0 == nil && err1 == nil && err2 == nil &&
			Method(b.header[0]) == b.Method && ContentType(b.header[1]) == b.ContentType &&
			id == b.ContentID && int(size) == len(b.Data) && raw == b.RawSize {
			return b.header
		}
	}
	var hdr itf8.Buffer
	b.putHeader(&hdr)
	return hdr
}

// checksum computes the CRC32 of the serialized block, excluding the CRC
// itself.
func (b *Block) checksum() uint32 {
	crc := crc32.ChecksumIEEE(b.encodedHeader())
	return crc32.Update(crc, crc32.IEEETable, b.Data)
}

// Marshal returns the serialized block. A block returned by Read marshals to
// the bytes it was read from.
func (b *Block) Marshal() []byte {
	buf := make(itf8.Buffer, 0, 3*itf8.MaxLen+2+len(b.Data)+4)
	buf.PutBytes(b.encodedHeader())
	buf.PutBytes(b.Data)
	buf.PutUint32(b.CRC32)
	return buf
}

// Write writes the serialized block to w.
func (b *Block) Write(w io.Writer) error {
	_, err := w.Write(b.Marshal())
	return err
}

// Size returns the serialized size of the block in bytes. For a block
// returned by Read, this is the number of bytes Read consumed.
func (b *Block) Size() int {
	return len(b.encodedHeader()) + len(b.Data) + 4
}

// Read reads one block from r. It fails with ErrTruncatedInput if r ends
// before the block is complete. The checksum is not verified until
// DecompressedData is called.
func Read(r io.Reader) (*Block, error) {
	var (
		hdr     [2]byte
		encoded bytes.Buffer
		in      = r
	)
	r = io.TeeReader(in, &encoded)
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, truncated(err, "method")
	}
	b := &Block{
		Method:      Method(hdr[0]),
		ContentType: ContentType(hdr[1]),
	}
	var err error
	if b.ContentID, err = itf8.Read(r); err != nil {
		return nil, truncated(err, "content id")
	}
	compressedSize, err := itf8.Read(r)
	if err != nil {
		return nil, truncated(err, "compressed size")
	}
	if b.RawSize, err = itf8.Read(r); err != nil {
		return nil, truncated(err, "raw size")
	}
	if compressedSize < 0 || b.RawSize < 0 {
		return nil, errors.Wrapf(ErrInvalidBlock, "negative size: compressed %d, raw %d", compressedSize, b.RawSize)
	}
	if encoded.Len() != 2+itf8.Size(b.ContentID)+itf8.Size(compressedSize)+itf8.Size(b.RawSize) {
		b.header = encoded.Bytes()
	}
	r = in
	// Copy rather than preallocate so that a bogus size on a short stream
	// cannot force a huge allocation.
	var data bytes.Buffer
	n, err := io.CopyN(&data, r, int64(compressedSize))
	if err != nil {
		if err == io.EOF {
			return nil, errors.Wrapf(ErrTruncatedInput, "payload: got %d of %d bytes", n, compressedSize)
		}
		return nil, err
	}
	b.Data = data.Bytes()
	var crc [4]byte
	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return nil, truncated(err, "crc32")
	}
	b.CRC32 = uint32(crc[0]) | uint32(crc[1])<<8 | uint32(crc[2])<<16 | uint32(crc[3])<<24
	return b, nil
}

func truncated(err error, field string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(ErrTruncatedInput, "reading block %s", field)
	}
	return errors.Wrapf(err, "reading block %s", field)
}

// DecompressedData verifies the block checksum and returns the decompressed
// payload. It fails with ErrUnsupportedMethod if no codec is registered for
// the block's method, and with ErrCorruptPayload if the checksum does not
// match or the payload does not decompress to exactly RawSize bytes.
func (b *Block) DecompressedData() ([]byte, error) {
	if got := b.checksum(); got != b.CRC32 {
		return nil, errors.Wrapf(ErrCorruptPayload, "%v block: crc32 %#08x, want %#08x", b.ContentType, got, b.CRC32)
	}
	c, ok := LookupCodec(b.Method)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMethod, "%v block: %v", b.ContentType, b.Method)
	}
	raw, err := c.Decompress(b.Data, int(b.RawSize))
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptPayload, "%v block: %v: %v", b.ContentType, b.Method, err)
	}
	if len(raw) != int(b.RawSize) {
		return nil, errors.Wrapf(ErrCorruptPayload, "%v block: decompressed %d bytes, want %d", b.ContentType, len(raw), b.RawSize)
	}
	return raw, nil
}
