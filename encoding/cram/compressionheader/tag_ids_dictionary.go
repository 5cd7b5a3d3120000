// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package compressionheader

import (
	"fmt"
	"strings"

	"github.com/grailbio/cram/encoding/cram/itf8"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// keyLen is the serialized size of a Key.
const keyLen = 3

// Key identifies one aux tag together with its BAM value type, e.g. NM:i.
type Key struct {
	Tag  sam.Tag
	Type byte
}

// NewKey returns the key for the given two-letter tag and BAM type.
func NewKey(tag string, typ byte) Key {
	return Key{Tag: sam.NewTag(tag), Type: typ}
}

// KeyOf returns the key of an aux field.
func KeyOf(a sam.Aux) Key {
	return Key{Tag: a.Tag(), Type: a.Type()}
}

// ID returns the integer used to key the key's tag encoding, tag[0]<<16 |
// tag[1]<<8 | type. It doubles as the content id of the key's external block.
func (k Key) ID() int32 {
	return int32(k.Tag[0])<<16 | int32(k.Tag[1])<<8 | int32(k.Type)
}

// KeyFromID is the inverse of Key.ID.
func KeyFromID(id int32) Key {
	return Key{Tag: sam.Tag{byte(id >> 16), byte(id >> 8)}, Type: byte(id)}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%c", k.Tag, k.Type)
}

// appendSchema appends the serialized schema, without the terminator.
func appendSchema(dst []byte, keys []Key) []byte {
	for _, k := range keys {
		dst = append(dst, k.Tag[0], k.Tag[1], k.Type)
	}
	return dst
}

// TagIDsDictionary catalogs the distinct tag schemas of a container. A schema
// is the ordered list of keys present on one record. Records refer to their
// schema by its index, which is assigned in first-seen order. A
// TagIDsDictionary is never modified once built or parsed.
type TagIDsDictionary struct {
	schemas [][]Key
	// index maps a serialized schema to its position in schemas.
	index map[string]int
}

// add appends keys as a new schema unless an identical one exists, and
// returns the schema's index.
func (d *TagIDsDictionary) add(keys []Key, scratch []byte) (int, []byte) {
	scratch = appendSchema(scratch[:0], keys)
	if i, ok := d.index[string(scratch)]; ok {
		return i, scratch
	}
	if d.index == nil {
		d.index = map[string]int{}
	}
	i := len(d.schemas)
	d.schemas = append(d.schemas, append([]Key(nil), keys...))
	d.index[string(scratch)] = i
	return i, scratch
}

// appendSchemaAt appends keys as the next schema even if an identical one
// exists. IndexOf keeps resolving to the first occurrence.
func (d *TagIDsDictionary) appendSchemaAt(keys []Key, scratch []byte) []byte {
	scratch = appendSchema(scratch[:0], keys)
	if d.index == nil {
		d.index = map[string]int{}
	}
	if _, ok := d.index[string(scratch)]; !ok {
		d.index[string(scratch)] = len(d.schemas)
	}
	d.schemas = append(d.schemas, append([]Key(nil), keys...))
	return scratch
}

// Len returns the number of schemas.
func (d *TagIDsDictionary) Len() int {
	return len(d.schemas)
}

// Schema returns the schema with the given index. The result must not be
// modified.
func (d *TagIDsDictionary) Schema(i int) ([]Key, error) {
	if i < 0 || i >= len(d.schemas) {
		return nil, errors.Wrapf(ErrUnknownSeriesOrTag, "tag schema %d: dictionary has %d schemas", i, len(d.schemas))
	}
	return d.schemas[i], nil
}

// IndexOf returns the index of the schema consisting of exactly keys, in
// order.
func (d *TagIDsDictionary) IndexOf(keys []Key) (int, bool) {
	i, ok := d.index[string(appendSchema(nil, keys))]
	return i, ok
}

// Keys returns every distinct key of the dictionary in first-seen order.
func (d *TagIDsDictionary) Keys() []Key {
	var keys []Key
	seen := map[Key]bool{}
	for _, schema := range d.schemas {
		for _, k := range schema {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// String shows the schemas in index order, e.g. "[NM:i,MD:Z] [AS:i]".
func (d *TagIDsDictionary) String() string {
	parts := make([]string, len(d.schemas))
	for i, schema := range d.schemas {
		ks := make([]string, len(schema))
		for j, k := range schema {
			ks[j] = k.String()
		}
		parts[i] = "[" + strings.Join(ks, ",") + "]"
	}
	return strings.Join(parts, " ")
}

// marshal serializes the schemas, each as its keys followed by a NUL.
func (d *TagIDsDictionary) marshal() []byte {
	var buf []byte
	for _, schema := range d.schemas {
		buf = appendSchema(buf, schema)
		buf = append(buf, 0)
	}
	return buf
}

// unmarshalTagIDsDictionary is the inverse of marshal. Schemas keep their wire
// positions, repeats included, since records refer to them by index.
func unmarshalTagIDsDictionary(data []byte) (TagIDsDictionary, error) {
	var (
		d       TagIDsDictionary
		keys    []Key
		scratch []byte
	)
	b := itf8.Buffer(data)
	for len(b) > 0 {
		if b[0] == 0 {
			scratch = d.appendSchemaAt(keys, scratch)
			keys = keys[:0]
			b = b[1:]
			continue
		}
		raw, err := b.RawBytes(keyLen)
		if err != nil {
			return d, errors.Wrapf(ErrTruncatedHeader, "tag ids dictionary: schema %d ends inside a key", d.Len())
		}
		keys = append(keys, Key{Tag: sam.Tag{raw[0], raw[1]}, Type: raw[2]})
	}
	if len(keys) > 0 {
		return d, errors.Wrapf(ErrTruncatedHeader, "tag ids dictionary: schema %d is not terminated", d.Len())
	}
	return d, nil
}

// TagIDsDictionaryBuilder accumulates the tag schemas of a stream of records.
// The zero value is ready to use. Indices depend on the order records arrive
// in, so calls to Update must be serialized.
type TagIDsDictionaryBuilder struct {
	dict    TagIDsDictionary
	keys    []Key
	scratch []byte
}

// Update records the schema of rec, exactly as its aux fields are ordered, and
// returns the schema's index.
func (b *TagIDsDictionaryBuilder) Update(rec *sam.Record) int {
	b.keys = b.keys[:0]
	for _, a := range rec.AuxFields {
		b.keys = append(b.keys, KeyOf(a))
	}
	var i int
	i, b.scratch = b.dict.add(b.keys, b.scratch)
	return i
}

// Build returns the dictionary. The builder must not be used afterward.
func (b *TagIDsDictionaryBuilder) Build() TagIDsDictionary {
	d := b.dict
	b.dict = TagIDsDictionary{}
	return d
}
