// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"io"

	"github.com/grailbio/cram/encoding/cram/block"
	"github.com/pkg/errors"
)

// WriteOpts controls how Write frames a header.
type WriteOpts struct {
	// Method compresses the header block. The zero value stores it raw.
	Method block.Method
}

// Read reads one compression header block from r and parses it. Errors from
// the block layer (block.ErrTruncatedInput, block.ErrUnsupportedMethod,
// block.ErrCorruptPayload) are passed through; use errors.Cause to inspect
// them.
func Read(r io.Reader) (*CompressionHeader, error) {
	b, err := block.Read(r)
	if err != nil {
		return nil, errors.Wrap(err, "compression header")
	}
	return FromBlock(b)
}

// FromBlock parses a compression header block that has already been read.
func FromBlock(b *block.Block) (*CompressionHeader, error) {
	if b.ContentType != block.CompressionHeader {
		return nil, errors.Wrapf(ErrInvalidHeader, "block has content type %v", b.ContentType)
	}
	data, err := b.DecompressedData()
	if err != nil {
		return nil, errors.Wrap(err, "compression header")
	}
	return Unmarshal(data)
}

// ToBlock serializes h and wraps it in a compression header block.
func ToBlock(h *CompressionHeader, opts WriteOpts) (*block.Block, error) {
	data, err := Marshal(h)
	if err != nil {
		return nil, err
	}
	return block.New(opts.Method, block.CompressionHeader, 0, data)
}

// Write serializes h into one block and writes it to w.
func Write(w io.Writer, h *CompressionHeader, opts WriteOpts) error {
	b, err := ToBlock(h, opts)
	if err != nil {
		return err
	}
	return b.Write(w)
}
