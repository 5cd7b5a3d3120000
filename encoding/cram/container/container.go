// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package container reads and writes the framing of a CRAM file: the file
// definition at the start of the file and the header of each container. See
// sections 6 and 7 of https://samtools.github.io/hts-specs/CRAMv3.pdf.
//
// A CRAM 3 file is laid out as
//
//	file definition
//	container holding the SAM header
//	container 1: header, compression header block, slices
//	...
//	EOF container
//
// Only CRAM 3 and later are supported, since earlier versions carry no
// container header checksum.
package container

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"io/ioutil"

	"github.com/grailbio/cram/encoding/cram/itf8"
	"github.com/pkg/errors"
)

var (
	// ErrTruncated is returned when the input ends inside a file definition
	// or container header.
	ErrTruncated = errors.New("container: truncated input")
	// ErrInvalid is returned for a bad magic number, an unsupported version,
	// a negative length or count, or a checksum mismatch.
	ErrInvalid = errors.New("container: invalid")
)

var magic = [4]byte{'C', 'R', 'A', 'M'}

// FileDefinitionLen is the size of a serialized FileDefinition.
const FileDefinitionLen = 26

// FileDefinition is the fixed-size preamble of a CRAM file.
type FileDefinition struct {
	Major, Minor uint8
	// FileID is a free-form identifier, typically the file name, padded with
	// NULs.
	FileID [20]byte
}

// NewFileDefinition returns a CRAM 3.0 file definition whose id is the first
// 20 bytes of id.
func NewFileDefinition(id string) FileDefinition {
	d := FileDefinition{Major: 3, Minor: 0}
	copy(d.FileID[:], id)
	return d
}

// ReadFileDefinition reads and validates the file definition at the start of
// a CRAM file.
func ReadFileDefinition(r io.Reader) (FileDefinition, error) {
	var (
		d   FileDefinition
		buf [FileDefinitionLen]byte
	)
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return d, truncated(err, "file definition")
	}
	if !bytes.Equal(buf[:4], magic[:]) {
		return d, errors.Wrapf(ErrInvalid, "file definition: bad magic %q", buf[:4])
	}
	d.Major, d.Minor = buf[4], buf[5]
	copy(d.FileID[:], buf[6:])
	if d.Major < 3 {
		return d, errors.Wrapf(ErrInvalid, "file definition: unsupported CRAM version %d.%d", d.Major, d.Minor)
	}
	return d, nil
}

// WriteFileDefinition writes d to w.
func WriteFileDefinition(w io.Writer, d FileDefinition) error {
	var buf [FileDefinitionLen]byte
	copy(buf[:], magic[:])
	buf[4], buf[5] = d.Major, d.Minor
	copy(buf[6:], d.FileID[:])
	_, err := w.Write(buf[:])
	return err
}

// EOF container field values.
const (
	eofReferenceID    = -1
	eofAlignmentStart = 4542278
)

// Header is the header of one container.
type Header struct {
	// Length is the number of bytes in the container after the header.
	Length         int32
	ReferenceID    int32
	AlignmentStart int32
	AlignmentSpan  int32
	NumRecords     int32
	RecordCounter  int64
	Bases          int64
	NumBlocks      int32
	// Landmarks are the offsets of the slices, counted from the end of the
	// header.
	Landmarks []int32
	// CRC32 covers every preceding byte of the header.
	CRC32 uint32
}

// IsEOF reports whether h is the header of the EOF container that ends a
// CRAM 3 file.
func (h *Header) IsEOF() bool {
	return h.ReferenceID == eofReferenceID && h.AlignmentStart == eofAlignmentStart && h.NumRecords == 0
}

func (h *Header) marshalFields() itf8.Buffer {
	var b itf8.Buffer
	b.PutUint32(uint32(h.Length))
	b.PutITF8(h.ReferenceID)
	b.PutITF8(h.AlignmentStart)
	b.PutITF8(h.AlignmentSpan)
	b.PutITF8(h.NumRecords)
	b.PutLTF8(h.RecordCounter)
	b.PutLTF8(h.Bases)
	b.PutITF8(h.NumBlocks)
	b.PutITF8(int32(len(h.Landmarks)))
	for _, l := range h.Landmarks {
		b.PutITF8(l)
	}
	return b
}

// Marshal returns the serialized header. The CRC32 field is recomputed.
func (h *Header) Marshal() []byte {
	b := h.marshalFields()
	h.CRC32 = crc32.ChecksumIEEE(b)
	b.PutUint32(h.CRC32)
	return b
}

// Write writes the serialized header to w. The CRC32 field is recomputed.
func (h *Header) Write(w io.Writer) error {
	_, err := w.Write(h.Marshal())
	return err
}

// ReadHeader reads and validates one container header. It returns io.EOF,
// unwrapped, if r is exhausted before the first byte.
func ReadHeader(r io.Reader) (*Header, error) {
	var crcBuf bytes.Buffer
	tr := io.TeeReader(r, &crcBuf)
	h := &Header{}
	var lenBuf [4]byte
	if n, err := io.ReadFull(tr, lenBuf[:]); err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		return nil, truncated(err, "container length")
	}
	h.Length = int32(binary.LittleEndian.Uint32(lenBuf[:]))
	fields := []struct {
		name string
		v    *int32
	}{
		{"reference id", &h.ReferenceID},
		{"alignment start", &h.AlignmentStart},
		{"alignment span", &h.AlignmentSpan},
		{"record count", &h.NumRecords},
	}
	var err error
	for _, f := range fields {
		if *f.v, err = itf8.Read(tr); err != nil {
			return nil, truncated(err, f.name)
		}
	}
	if h.RecordCounter, err = itf8.ReadLTF8(tr); err != nil {
		return nil, truncated(err, "record counter")
	}
	if h.Bases, err = itf8.ReadLTF8(tr); err != nil {
		return nil, truncated(err, "bases")
	}
	if h.NumBlocks, err = itf8.Read(tr); err != nil {
		return nil, truncated(err, "block count")
	}
	nLandmarks, err := itf8.Read(tr)
	if err != nil {
		return nil, truncated(err, "landmark count")
	}
	if h.Length < 0 || h.NumBlocks < 0 || nLandmarks < 0 {
		return nil, errors.Wrapf(ErrInvalid, "container header: negative length or count (%d, %d, %d)",
			h.Length, h.NumBlocks, nLandmarks)
	}
	for i := int32(0); i < nLandmarks; i++ {
		l, err := itf8.Read(tr)
		if err != nil {
			return nil, truncated(err, "landmarks")
		}
		h.Landmarks = append(h.Landmarks, l)
	}
	want := crc32.ChecksumIEEE(crcBuf.Bytes())
	var crc [4]byte
	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return nil, truncated(err, "crc32")
	}
	h.CRC32 = binary.LittleEndian.Uint32(crc[:])
	if h.CRC32 != want {
		return nil, errors.Wrapf(ErrInvalid, "container header: stored crc32 %#08x, computed %#08x", h.CRC32, want)
	}
	return h, nil
}

// Skip discards the body of the container whose header is h.
func Skip(r io.Reader, h *Header) error {
	n, err := io.CopyN(ioutil.Discard, r, int64(h.Length))
	if err == io.EOF {
		return errors.Wrapf(ErrTruncated, "container body: got %d of %d bytes", n, h.Length)
	}
	return err
}

// eofContainer is the complete EOF container of a CRAM 3 file, including its
// empty compression header block.
var eofContainer = []byte{
	0x0f, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0x0f, 0xe0, 0x45, 0x4f, 0x46, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x05, 0xbd, 0xd9, 0x4f, 0x00,
	0x01, 0x00, 0x06, 0x06, 0x01, 0x00, 0x01, 0x00,
	0x01, 0x00, 0xee, 0x63, 0x01, 0x4b,
}

// WriteEOF writes the EOF container to w.
func WriteEOF(w io.Writer) error {
	_, err := w.Write(eofContainer)
	return err
}

func truncated(err error, field string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(ErrTruncated, "reading %s", field)
	}
	return errors.Wrapf(err, "reading %s", field)
}
