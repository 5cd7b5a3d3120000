// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package block reads and writes CRAM blocks, the framing unit for every
// compressed segment of a CRAM container. See section 8 of
// https://samtools.github.io/hts-specs/CRAMv3.pdf.
//
// Compression methods are pluggable. Raw, gzip, bzip2 and lzma codecs are
// registered by default; the rANS, arithmetic, fqzcomp and name tokenizer
// methods must be registered with RegisterCodec before blocks that use them
// can be decompressed.
//
// Example:
//   b, err := block.New(block.Gzip, block.CompressionHeader, 0, data)
//   err = b.Write(w)
//   ...
//   b, err = block.Read(r)
//   data, err = b.DecompressedData()
package block
