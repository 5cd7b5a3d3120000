// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cram/encoding/cram/block"
	"github.com/grailbio/cram/encoding/cram/compressionheader"
	"github.com/grailbio/cram/encoding/cram/container"
	"github.com/grailbio/cram/encoding/cram/reference"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

type buildOpts struct {
	// referencePath is the FASTA file the records are aligned to.
	referencePath string
	// recordsPerContainer bounds the number of records summarized by one
	// compression header.
	recordsPerContainer int
	// method names the block compression method, as accepted by
	// block.ParseMethod.
	method string
	// outPath, if nonempty, receives the headers as a CRAM file.
	outPath     string
	noReadNames bool
}

// chunk is the set of records covered by one compression header.
type chunk struct {
	refID    int
	minPos   int // 0-based, inclusive
	maxEnd   int // 0-based, exclusive
	records  int
	bases    int64
	header   *compressionheader.CompressionHeader
	builder  *compressionheader.Builder
	refBases []byte
}

func (c *chunk) add(rec *sam.Record) error {
	if c.records == 0 || rec.Pos < c.minPos {
		c.minPos = rec.Pos
	}
	if end := rec.End(); end > c.maxEnd {
		c.maxEnd = end
	}
	c.records++
	c.bases += int64(rec.Seq.Length)
	return c.builder.Update(c.refBases, rec)
}

// containerHeader returns the header of the container holding c, given the
// number of records in the preceding containers and the size of the
// compression header block.
func (c *chunk) containerHeader(counter int64, blockSize int) *container.Header {
	h := &container.Header{
		Length:        int32(blockSize),
		ReferenceID:   int32(c.refID),
		NumRecords:    int32(c.records),
		RecordCounter: counter,
		Bases:         c.bases,
		NumBlocks:     1,
	}
	if c.refID >= 0 {
		h.AlignmentStart = int32(c.minPos + 1)
		h.AlignmentSpan = int32(c.maxEnd - c.minPos)
	}
	return h
}

func refID(rec *sam.Record) int {
	if rec.Ref == nil {
		return -1
	}
	return rec.Ref.ID()
}

// build reads the BAM file at bamPath, builds one compression header per
// group of at most opts.recordsPerContainer records on the same reference,
// and prints a line for each to stdout.
func build(ctx context.Context, stdout io.Writer, bamPath string, opts buildOpts) (err error) {
	method, err := block.ParseMethod(opts.method)
	if err != nil {
		return err
	}
	if _, ok := block.LookupCodec(method); !ok {
		return errors.E(errors.NotSupported, fmt.Sprintf("block compression method %v", method))
	}
	if opts.recordsPerContainer <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("records-per-container must be positive, got %d", opts.recordsPerContainer))
	}
	ref, err := reference.Open(ctx, opts.referencePath)
	if err != nil {
		return err
	}
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return errors.E(err, "open", bamPath)
	}
	defer file.CloseAndReport(ctx, in, &err)
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, bamPath)
	}
	defer func() {
		if e := br.Close(); e != nil && err == nil {
			err = e
		}
	}()

	var chunks []*chunk
	newChunk := func(rec *sam.Record) (*chunk, error) {
		c := &chunk{
			refID:   refID(rec),
			builder: compressionheader.NewBuilder().SetReadNamesIncluded(!opts.noReadNames),
		}
		if c.refID >= 0 {
			bases, err := ref.Bases(rec.Ref.Name())
			if err != nil {
				return nil, errors.E(err, bamPath)
			}
			c.refBases = bases
		}
		return c, nil
	}
	var cur *chunk
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, bamPath)
		}
		if cur == nil || cur.records >= opts.recordsPerContainer || cur.refID != refID(rec) {
			if cur, err = newChunk(rec); err != nil {
				return err
			}
			chunks = append(chunks, cur)
		}
		if err := cur.add(rec); err != nil {
			return errors.E(err, bamPath)
		}
		sam.PutInFreePool(rec)
	}

	for i, c := range chunks {
		c.header = c.builder.Build()
		data, err := compressionheader.Marshal(c.header)
		if err != nil {
			return err
		}
		pm := c.header.PreservationMap()
		fmt.Fprintf(stdout, "container %d: ref=%d records=%d SM=%v schemas=%d tags=%d digest=%016x\n",
			i, c.refID, c.records, pm.SubstitutionMatrix(), pm.TagIDsDictionary().Len(),
			c.header.TagEncodings().Len(), seahash.Sum64(data))
	}
	log.Printf("%s: built %d compression headers", bamPath, len(chunks))
	if opts.outPath == "" {
		return nil
	}
	return writeCRAM(ctx, opts.outPath, br.Header(), chunks, method)
}

// writeCRAM writes a CRAM file whose containers hold only the compression
// headers of chunks.
func writeCRAM(ctx context.Context, path string, header *sam.Header, chunks []*chunk, method block.Method) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := bufio.NewWriter(out.Writer(ctx))

	if err := container.WriteFileDefinition(w, container.NewFileDefinition(filepath.Base(path))); err != nil {
		return err
	}
	if err := writeSAMHeader(w, header, method); err != nil {
		return err
	}
	var counter int64
	for _, c := range chunks {
		b, err := compressionheader.ToBlock(c.header, compressionheader.WriteOpts{Method: method})
		if err != nil {
			return err
		}
		if err := c.containerHeader(counter, b.Size()).Write(w); err != nil {
			return err
		}
		if err := b.Write(w); err != nil {
			return err
		}
		counter += int64(c.records)
	}
	if err := container.WriteEOF(w); err != nil {
		return err
	}
	return w.Flush()
}

// writeSAMHeader writes the container holding the SAM header text. The block
// data is the text length as a little-endian int32 followed by the text.
func writeSAMHeader(w io.Writer, header *sam.Header, method block.Method) error {
	text, err := header.MarshalText()
	if err != nil {
		return err
	}
	raw := make([]byte, 4+len(text))
	binary.LittleEndian.PutUint32(raw, uint32(len(text)))
	copy(raw[4:], text)
	b, err := block.New(method, block.FileHeader, 0, raw)
	if err != nil {
		return err
	}
	h := &container.Header{
		Length:    int32(b.Size()),
		NumBlocks: 1,
	}
	if err := h.Write(w); err != nil {
		return err
	}
	return b.Write(w)
}
