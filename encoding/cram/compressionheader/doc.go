// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package compressionheader builds, reads and writes the compression header
// of a CRAM container. See section 8.4 of
// https://samtools.github.io/hts-specs/CRAMv3.pdf.
//
// A compression header consists of three segments, always in this order:
//
//   - the preservation map: the RN, AP and RR flags, the substitution matrix
//     and the tag-ids dictionary;
//   - the data series encodings, which map each record field to the codec
//     used for it;
//   - the tag encodings, which map each aux tag key to the codec used for its
//     values.
//
// On the write side, a Builder observes every record of the container and
// produces an immutable CompressionHeader. On the read side, Read or
// Unmarshal reconstructs an equal CompressionHeader from its serialized
// form, or fails without returning a partial result.
//
// Example:
//   b := compressionheader.NewBuilder()
//   for _, rec := range records {
//     if err := b.Update(ref, rec); err != nil {
//       ...
//     }
//   }
//   h := b.Build()
//   err := compressionheader.Write(w, h, compressionheader.WriteOpts{Method: block.Gzip})
//   ...
//   h, err = compressionheader.Read(r)
//   enc, err := h.DataSeriesEncoding(compressionheader.ReadLength)
package compressionheader
