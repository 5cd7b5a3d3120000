package compressionheader_test

import (
	"fmt"
	"testing"

	ch "github.com/grailbio/cram/encoding/cram/compressionheader"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

var (
	nmKey = ch.NewKey("NM", 'i')
	mdKey = ch.NewKey("MD", 'Z')
	asKey = ch.NewKey("AS", 'i')
)

func TestTagIDsDictionary(t *testing.T) {
	var b ch.TagIDsDictionaryBuilder
	r0 := newRecord("r0", 0, match(4), "ACGT", newAux("NM", int32(1)), newAux("MD", "3A0"))
	r1 := newRecord("r1", 0, match(4), "ACGT", newAux("AS", int32(-40)))
	r2 := newRecord("r2", 0, match(4), "ACGT", newAux("NM", int32(0)), newAux("MD", "4"))
	expect.EQ(t, b.Update(r0), 0)
	expect.EQ(t, b.Update(r1), 1)
	expect.EQ(t, b.Update(r2), 0)

	d := b.Build()
	expect.EQ(t, d.Len(), 2)
	expect.EQ(t, d.String(), "[NM:i,MD:Z] [AS:i]")
	s, err := d.Schema(0)
	require.NoError(t, err)
	expect.EQ(t, s, []ch.Key{nmKey, mdKey})
	s, err = d.Schema(1)
	require.NoError(t, err)
	expect.EQ(t, s, []ch.Key{asKey})
	expect.EQ(t, d.Keys(), []ch.Key{nmKey, mdKey, asKey})

	i, ok := d.IndexOf([]ch.Key{nmKey, mdKey})
	expect.True(t, ok)
	expect.EQ(t, i, 0)
	_, ok = d.IndexOf([]ch.Key{mdKey, nmKey})
	expect.False(t, ok)

	for _, i := range []int{-1, 2} {
		_, err = d.Schema(i)
		expect.EQ(t, errors.Cause(err), ch.ErrUnknownSeriesOrTag)
	}
}

func TestTagIDsDictionaryOrderAndType(t *testing.T) {
	var b ch.TagIDsDictionaryBuilder
	expect.EQ(t, b.Update(newRecord("r0", 0, nil, "")), 0)
	expect.EQ(t, b.Update(newRecord("r1", 0, nil, "", newAux("NM", int32(1)), newAux("MD", "1"))), 1)
	// Same keys in a different order form a new schema.
	expect.EQ(t, b.Update(newRecord("r2", 0, nil, "", newAux("MD", "1"), newAux("NM", int32(1)))), 2)
	// So does the same tag with a different value type.
	expect.EQ(t, b.Update(newRecord("r3", 0, nil, "", newAux("NM", "1"))), 3)
	expect.EQ(t, b.Update(newRecord("r4", 0, nil, "")), 0)

	d := b.Build()
	expect.EQ(t, d.Len(), 4)
	s, err := d.Schema(0)
	require.NoError(t, err)
	expect.EQ(t, len(s), 0)
	i, ok := d.IndexOf(nil)
	expect.True(t, ok)
	expect.EQ(t, i, 0)
	expect.EQ(t, d.Keys(), []ch.Key{nmKey, mdKey, ch.NewKey("NM", 'Z')})
}

func TestKeyID(t *testing.T) {
	expect.EQ(t, nmKey.ID(), int32('N')<<16|int32('M')<<8|int32('i'))
	expect.EQ(t, ch.KeyFromID(nmKey.ID()), nmKey)
	expect.EQ(t, nmKey.String(), "NM:i")
	expect.EQ(t, ch.KeyOf(newAux("MD", "10")), mdKey)
}
