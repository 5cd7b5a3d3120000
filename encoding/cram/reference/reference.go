// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package reference holds the reference sequences that CRAM records are
// aligned against. Sequences are loaded from FASTA and kept in memory,
// uppercased, since the compression header builder compares read bases
// against them base by base.
package reference

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// maxLineLen bounds the length of one FASTA line.
const maxLineLen = 1024 * 1024 * 300 // 300 MB

// Reference is a set of named sequences. It is immutable and safe for
// concurrent use.
type Reference struct {
	seqs  map[string][]byte
	names []string
}

// New reads FASTA data from r. Sequence names are the text after '>' up to
// the first space.
func New(r io.Reader) (*Reference, error) {
	ref := &Reference{seqs: make(map[string][]byte)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineLen)
	var (
		name string
		seq  bytes.Buffer
		open bool
	)
	flush := func() error {
		if !open {
			if seq.Len() != 0 {
				return errors.New("malformed FASTA: sequence data before the first '>' line")
			}
			return nil
		}
		if _, ok := ref.seqs[name]; ok {
			return errors.Errorf("malformed FASTA: duplicate sequence %s", name)
		}
		ref.seqs[name] = bytes.ToUpper(seq.Bytes())
		ref.names = append(ref.names, name)
		seq.Reset()
		return nil
	}
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, err
			}
			name = strings.Split(string(line[1:]), " ")[0]
			open = true
			continue
		}
		seq.Write(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return ref, nil
}

// Open loads the FASTA file at path, which may be local or on S3. Files with
// a compression suffix such as ".gz" are decompressed.
func Open(ctx context.Context, path string) (ref *Reference, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = errors.Wrapf(e, "close %v", path)
		}
	}()
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	if ref, err = New(r); err != nil {
		return nil, errors.Wrapf(err, "read %v", path)
	}
	return ref, nil
}

// Bases returns the uppercase bases of the named sequence. The result must
// not be modified.
func (r *Reference) Bases(name string) ([]byte, error) {
	s, ok := r.seqs[name]
	if !ok {
		return nil, errors.Errorf("sequence not found: %s", name)
	}
	return s, nil
}

// Names returns the sequence names in the order they appear in the FASTA
// data.
func (r *Reference) Names() []string {
	return r.names
}
