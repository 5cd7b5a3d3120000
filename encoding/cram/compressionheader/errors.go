// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"github.com/grailbio/cram/encoding/cram/itf8"
	"github.com/pkg/errors"
)

var (
	// ErrTruncatedHeader is returned when a header segment ends before its
	// declared size or element count is satisfied.
	ErrTruncatedHeader = errors.New("compression header: truncated")
	// ErrInvalidHeader is returned for any other structural violation, such as
	// an unknown key, an unknown codec id or a malformed substitution matrix.
	ErrInvalidHeader = errors.New("compression header: invalid")
	// ErrUnknownSeriesOrTag is returned when a data series, tag schema or tag
	// key is absent from the header's tables.
	ErrUnknownSeriesOrTag = errors.New("compression header: unknown data series or tag")
)

// wrapRead converts a low-level decoding error into a header error naming
// the segment being parsed.
func wrapRead(err error, segment string) error {
	if err == itf8.ErrShortBuffer {
		return errors.Wrap(ErrTruncatedHeader, segment)
	}
	return errors.Wrap(err, segment)
}
