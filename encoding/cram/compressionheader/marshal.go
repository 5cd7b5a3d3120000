// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/cram/encoding/cram/itf8"
	"github.com/pkg/errors"
)

// numPreservationEntries is the number of entries Marshal writes to the
// preservation map.
const numPreservationEntries = 5

// Preservation map keys.
var (
	keyReadNamesIncluded  = [2]byte{'R', 'N'}
	keyAPDataSeriesDelta  = [2]byte{'A', 'P'}
	keyReferenceRequired  = [2]byte{'R', 'R'}
	keySubstitutionMatrix = [2]byte{'S', 'M'}
	keyTagIDsDictionary   = [2]byte{'T', 'D'}
)

// Marshal serializes h. The three segments are written in their fixed order,
// each as size:itf8 count:itf8 followed by its entries. The output depends
// only on the contents of h.
func Marshal(h *CompressionHeader) ([]byte, error) {
	var buf itf8.Buffer
	putSegment(&buf, numPreservationEntries, marshalPreservationMap(&h.preservationMap))

	var body itf8.Buffer
	for _, ds := range h.dataSeriesEncodings.DataSeries() {
		enc := h.dataSeriesEncodings.m[ds]
		if err := checkEncoding(enc); err != nil {
			return nil, errors.Wrapf(err, "data series %v", ds)
		}
		body.PutBytes([]byte(dataSeriesKeys[ds]))
		putEncoding(&body, enc)
	}
	putSegment(&buf, h.dataSeriesEncodings.Len(), body)

	body = body[:0]
	for _, k := range h.tagEncodings.Keys() {
		enc := h.tagEncodings.m[k]
		if err := checkEncoding(enc); err != nil {
			return nil, errors.Wrapf(err, "tag %v", k)
		}
		body.PutITF8(k.ID())
		putEncoding(&body, enc)
	}
	putSegment(&buf, h.tagEncodings.Len(), body)
	return buf, nil
}

func putSegment(buf *itf8.Buffer, count int, entries []byte) {
	buf.PutITF8(int32(itf8.Size(int32(count)) + len(entries)))
	buf.PutITF8(int32(count))
	buf.PutBytes(entries)
}

// checkEncoding rejects descriptors that Unmarshal would not accept back:
// nil ones, which have no wire form, and Huffman codes whose alphabet and bit
// lengths differ in length.
func checkEncoding(e Encoding) error {
	switch x := e.(type) {
	case nil:
		return errors.Wrap(ErrInvalidHeader, "missing encoding")
	case HuffmanEncoding:
		if len(x.Alphabet) != len(x.BitLens) {
			return errors.Wrapf(ErrInvalidHeader, "huffman encoding: %d symbols but %d bit lengths", len(x.Alphabet), len(x.BitLens))
		}
	case ByteArrayLenEncoding:
		if err := checkEncoding(x.Lengths); err != nil {
			return err
		}
		return checkEncoding(x.Values)
	}
	return nil
}

// marshalPreservationMap returns the five preservation map entries, in the
// order RN AP RR SM TD.
func marshalPreservationMap(pm *PreservationMap) []byte {
	var b itf8.Buffer
	putBool := func(key [2]byte, v bool) {
		b.PutBytes(key[:])
		if v {
			b.PutUint8(1)
		} else {
			b.PutUint8(0)
		}
	}
	putBool(keyReadNamesIncluded, pm.readNamesIncluded)
	putBool(keyAPDataSeriesDelta, pm.apDataSeriesDelta)
	putBool(keyReferenceRequired, pm.referenceRequired)

	b.PutBytes(keySubstitutionMatrix[:])
	sm := pm.substitutionMatrix.marshal()
	b.PutBytes(sm[:])

	b.PutBytes(keyTagIDsDictionary[:])
	td := pm.tagIDsDictionary.marshal()
	b.PutITF8(int32(len(td)))
	b.PutBytes(td)
	return b
}

// Unmarshal parses a serialized compression header. Parsing is atomic: on
// any error the result is nil. A segment that ends early fails with
// ErrTruncatedHeader; any other malformation fails with ErrInvalidHeader.
func Unmarshal(data []byte) (*CompressionHeader, error) {
	b := itf8.Buffer(data)
	h := &CompressionHeader{}
	var err error
	if h.preservationMap, err = readPreservationMap(&b); err != nil {
		return nil, err
	}
	if h.dataSeriesEncodings, err = readDataSeriesEncodings(&b); err != nil {
		return nil, err
	}
	if h.tagEncodings, err = readTagEncodings(&b); err != nil {
		return nil, err
	}
	if len(b) > 0 {
		log.Debug.Printf("compression header: ignoring %d trailing bytes", len(b))
	}
	log.Debug.Printf("compression header: parsed %d data series, %d tag schemas, %d tag keys",
		h.dataSeriesEncodings.Len(), h.preservationMap.tagIDsDictionary.Len(), h.tagEncodings.Len())
	return h, nil
}

// readSegment consumes one size-prefixed segment and returns its body and
// entry count.
func readSegment(b *itf8.Buffer, name string) (itf8.Buffer, int, error) {
	size, err := b.ITF8()
	if err != nil {
		return nil, 0, wrapRead(err, name+": size")
	}
	if size < 0 {
		return nil, 0, errors.Wrapf(ErrInvalidHeader, "%s: negative size %d", name, size)
	}
	raw, err := b.RawBytes(int(size))
	if err != nil {
		return nil, 0, errors.Wrapf(ErrTruncatedHeader, "%s: %d bytes declared, %d available", name, size, len(*b))
	}
	body := itf8.Buffer(raw)
	count, err := body.ITF8()
	if err != nil {
		return nil, 0, wrapRead(err, name+": count")
	}
	if count < 0 {
		return nil, 0, errors.Wrapf(ErrInvalidHeader, "%s: negative count %d", name, count)
	}
	if int(count) > len(body) {
		// Every entry takes at least one byte.
		return nil, 0, errors.Wrapf(ErrTruncatedHeader, "%s: %d entries declared in %d bytes", name, count, len(body))
	}
	return body, int(count), nil
}

// checkConsumed verifies that a segment holds nothing after its last entry.
func checkConsumed(body itf8.Buffer, name string) error {
	if len(body) != 0 {
		return errors.Wrapf(ErrInvalidHeader, "%s: %d bytes after the last entry", name, len(body))
	}
	return nil
}

func readBool(b *itf8.Buffer, key [2]byte) (bool, error) {
	v, err := b.Uint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.Wrapf(ErrInvalidHeader, "preservation map: %s: invalid boolean %d", key[:], v)
}

func readPreservationMap(b *itf8.Buffer) (PreservationMap, error) {
	const name = "preservation map"
	pm := PreservationMap{
		readNamesIncluded: true,
		apDataSeriesDelta: true,
		referenceRequired: true,
	}
	body, count, err := readSegment(b, name)
	if err != nil {
		return pm, err
	}
	seen := map[[2]byte]bool{}
	for i := 0; i < count; i++ {
		raw, err := body.RawBytes(2)
		if err != nil {
			return pm, wrapRead(err, name+": key")
		}
		key := [2]byte{raw[0], raw[1]}
		if seen[key] {
			return pm, errors.Wrapf(ErrInvalidHeader, "%s: duplicate key %s", name, key[:])
		}
		seen[key] = true
		switch key {
		case keyReadNamesIncluded:
			pm.readNamesIncluded, err = readBool(&body, key)
		case keyAPDataSeriesDelta:
			pm.apDataSeriesDelta, err = readBool(&body, key)
		case keyReferenceRequired:
			pm.referenceRequired, err = readBool(&body, key)
		case keySubstitutionMatrix:
			var sm []byte
			if sm, err = body.RawBytes(substitutionMatrixLen); err == nil {
				pm.substitutionMatrix, err = unmarshalSubstitutionMatrix(sm)
			}
		case keyTagIDsDictionary:
			var n int32
			if n, err = body.ITF8(); err != nil {
				break
			}
			if n < 0 {
				return pm, errors.Wrapf(ErrInvalidHeader, "%s: negative tag ids dictionary size %d", name, n)
			}
			var td []byte
			if td, err = body.RawBytes(int(n)); err == nil {
				pm.tagIDsDictionary, err = unmarshalTagIDsDictionary(td)
			}
		default:
			return pm, errors.Wrapf(ErrInvalidHeader, "%s: unknown key %q", name, key[:])
		}
		if err != nil {
			return pm, wrapRead(err, name+": "+string(key[:]))
		}
	}
	if !seen[keySubstitutionMatrix] {
		return pm, errors.Wrapf(ErrInvalidHeader, "%s: missing substitution matrix", name)
	}
	if !seen[keyTagIDsDictionary] {
		return pm, errors.Wrapf(ErrInvalidHeader, "%s: missing tag ids dictionary", name)
	}
	return pm, checkConsumed(body, name)
}

func readDataSeriesEncodings(b *itf8.Buffer) (DataSeriesEncodings, error) {
	const name = "data series encodings"
	body, count, err := readSegment(b, name)
	if err != nil {
		return DataSeriesEncodings{}, err
	}
	m := make(map[DataSeries]Encoding, count)
	for i := 0; i < count; i++ {
		raw, err := body.RawBytes(2)
		if err != nil {
			return DataSeriesEncodings{}, wrapRead(err, name+": key")
		}
		ds, err := ParseDataSeries(string(raw))
		if err != nil {
			return DataSeriesEncodings{}, errors.Wrap(err, name)
		}
		if _, ok := m[ds]; ok {
			return DataSeriesEncodings{}, errors.Wrapf(ErrInvalidHeader, "%s: duplicate data series %v", name, ds)
		}
		if m[ds], err = readEncoding(&body); err != nil {
			return DataSeriesEncodings{}, wrapRead(err, name+": "+ds.String())
		}
	}
	return DataSeriesEncodings{m: m}, checkConsumed(body, name)
}

func readTagEncodings(b *itf8.Buffer) (TagEncodings, error) {
	const name = "tag encodings"
	body, count, err := readSegment(b, name)
	if err != nil {
		return TagEncodings{}, err
	}
	m := make(map[Key]Encoding, count)
	for i := 0; i < count; i++ {
		id, err := body.ITF8()
		if err != nil {
			return TagEncodings{}, wrapRead(err, name+": key")
		}
		k := KeyFromID(id)
		if _, ok := m[k]; ok {
			return TagEncodings{}, errors.Wrapf(ErrInvalidHeader, "%s: duplicate key %v", name, k)
		}
		if m[k], err = readEncoding(&body); err != nil {
			return TagEncodings{}, wrapRead(err, name+": "+k.String())
		}
	}
	return TagEncodings{m: m}, checkConsumed(body, name)
}
