// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package block

import (
	"bytes"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Codec compresses and decompresses block payloads for one compression
// method. Implementations must be safe for concurrent use.
type Codec interface {
	// Compress returns the compressed form of raw.
	Compress(raw []byte) ([]byte, error)
	// Decompress returns the decompressed form of data. rawSize is the size
	// declared by the block; implementations may use it to size buffers and
	// must not return more than rawSize+1 bytes, so that the caller can detect
	// a size mismatch without unbounded allocation.
	Decompress(data []byte, rawSize int) ([]byte, error)
}

var (
	codecsMu sync.RWMutex
	codecs   = map[Method]Codec{}
)

// RegisterCodec installs c as the codec for method m, replacing any existing
// registration. The rANS, arithmetic, fqzcomp and name tokenizer methods have
// no built-in codec; callers that need them register one here.
func RegisterCodec(m Method, c Codec) {
	codecsMu.Lock()
	codecs[m] = c
	codecsMu.Unlock()
}

// LookupCodec returns the codec registered for method m.
func LookupCodec(m Method) (Codec, bool) {
	codecsMu.RLock()
	c, ok := codecs[m]
	codecsMu.RUnlock()
	return c, ok
}

func init() {
	RegisterCodec(Raw, rawCodec{})
	RegisterCodec(Gzip, gzipCodec{})
	RegisterCodec(Bzip2, bzip2Codec{})
	RegisterCodec(LZMA, lzmaCodec{})
}

// maxPrealloc caps the buffer preallocated from an untrusted raw size.
const maxPrealloc = 16 << 20

// readAtMost reads at most limit+1 bytes from r.
func readAtMost(r io.Reader, limit int) ([]byte, error) {
	var buf bytes.Buffer
	if limit < maxPrealloc {
		buf.Grow(limit + 1)
	}
	if _, err := io.Copy(&buf, io.LimitReader(r, int64(limit)+1)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type rawCodec struct{}

func (rawCodec) Compress(raw []byte) ([]byte, error) {
	return append([]byte(nil), raw...), nil
}

func (rawCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	return data, nil
}

// gzipCodec implements method 1, a complete RFC 1952 gzip stream.
type gzipCodec struct{}

func (gzipCodec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, "gzip compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip compress")
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "gzip decompress")
	}
	raw, err := readAtMost(r, rawSize)
	if err != nil {
		return nil, errors.Wrap(err, "gzip decompress")
	}
	return raw, r.Close()
}

// bzip2Codec implements method 2.
type bzip2Codec struct{}

func (bzip2Codec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2 compress")
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, "bzip2 compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "bzip2 compress")
	}
	return buf.Bytes(), nil
}

func (bzip2Codec) Decompress(data []byte, rawSize int) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2 decompress")
	}
	raw, err := readAtMost(r, rawSize)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2 decompress")
	}
	return raw, r.Close()
}

// lzmaCodec implements method 3. Like htslib, the payload is an xz stream.
type lzmaCodec struct{}

func (lzmaCodec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "lzma compress")
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, "lzma compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "lzma compress")
	}
	return buf.Bytes(), nil
}

func (lzmaCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "lzma decompress")
	}
	raw, err := readAtMost(r, rawSize)
	if err != nil {
		return nil, errors.Wrap(err, "lzma decompress")
	}
	return raw, nil
}
