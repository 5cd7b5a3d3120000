// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cram/encoding/cram/block"
	"github.com/grailbio/cram/encoding/cram/compressionheader"
	"github.com/grailbio/cram/encoding/cram/container"
)

type dumpOpts struct {
	// parallelism bounds the number of files read at once.
	parallelism int
	// summary prints one line per container.
	summary bool
}

// dump prints the compression headers of the given CRAM files to w, in
// argument order. Files are parsed concurrently; each one is independent.
func dump(ctx context.Context, w io.Writer, paths []string, opts dumpOpts) error {
	if opts.parallelism <= 0 {
		opts.parallelism = 1
	}
	out := make([]string, len(paths))
	err := traverse.Limit(opts.parallelism).Each(len(paths), func(i int) error {
		var err error
		out[i], err = dumpFile(ctx, paths[i], opts)
		return err
	})
	if err != nil {
		return err
	}
	for _, s := range out {
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

// dumpFile returns the text describing every compression header of the CRAM
// file at path.
func dumpFile(ctx context.Context, path string, opts dumpOpts) (_ string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return "", errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := bufio.NewReader(in.Reader(ctx))

	def, err := container.ReadFileDefinition(r)
	if err != nil {
		return "", errors.E(err, path)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: CRAM %d.%d\n", path, def.Major, def.Minor)

	// The first container holds the SAM header.
	h, err := container.ReadHeader(r)
	if err != nil {
		return "", errors.E(err, path, "SAM header container")
	}
	if err := container.Skip(r, h); err != nil {
		return "", errors.E(err, path, "SAM header container")
	}
	for i := 0; ; i++ {
		h, err := container.ReadHeader(r)
		if err == io.EOF {
			log.Printf("%s: no EOF container", path)
			break
		}
		if err != nil {
			return "", errors.E(err, path, fmt.Sprintf("container %d", i))
		}
		if h.IsEOF() {
			break
		}
		ch, n, err := readCompressionHeader(r)
		if err != nil {
			return "", errors.E(err, path, fmt.Sprintf("container %d", i))
		}
		if _, err := io.CopyN(ioutil.Discard, r, int64(h.Length)-int64(n)); err != nil {
			return "", errors.E(err, path, fmt.Sprintf("container %d", i), "skip slices")
		}
		data, err := compressionheader.Marshal(ch)
		if err != nil {
			return "", errors.E(err, path, fmt.Sprintf("container %d", i))
		}
		fmt.Fprintf(&b, "container %d: ref=%d start=%d span=%d records=%d digest=%016x\n",
			i, h.ReferenceID, h.AlignmentStart, h.AlignmentSpan, h.NumRecords, seahash.Sum64(data))
		if !opts.summary {
			b.WriteString(indent(ch.String()))
		}
	}
	return b.String(), nil
}

// readCompressionHeader reads the first block of a container and returns the
// parsed header and the number of bytes consumed.
func readCompressionHeader(r io.Reader) (*compressionheader.CompressionHeader, int, error) {
	blk, err := block.Read(r)
	if err != nil {
		return nil, 0, err
	}
	ch, err := compressionheader.FromBlock(blk)
	if err != nil {
		return nil, 0, err
	}
	return ch, blk.Size(), nil
}

func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l != "" {
			b.WriteString("  ")
			b.WriteString(l)
		}
	}
	return b.String()
}
