// Package idlist implements the sorted uint32 id set used for appid and
// other small-integer membership lists (spec.md §4.2.4).
//
// Grounded on original_source/libuup/lib-uup/idlist.c: a flat sorted array
// searched by binary search, content-addressed the same way as the other
// list types so identical source text dedupes through objhash.
package idlist

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/polistore/uup/objhash"
)

type ParseFlags struct {
	AllowEmpty bool
}

// List is an immutable sorted set of uint32 ids.
type List struct {
	ids []uint32
	fp  objhash.Fingerprint
}

func (l *List) Fingerprint() objhash.Fingerprint { return l.fp }
func (l *List) Len() int                         { return len(l.ids) }
func (l *List) At(i int) uint32                   { return l.ids[i] }

// Parse builds a List from whitespace/comma-separated decimal ids.
func Parse(src []byte, flags ParseFlags) (*List, error) {
	fields := bytes.FieldsFunc(src, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
	})
	ids := make([]uint32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(string(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("idlist: invalid id %q: %w", f, err)
		}
		ids = append(ids, uint32(n))
	}
	if len(ids) == 0 && !flags.AllowEmpty {
		return nil, fmt.Errorf("idlist: empty list")
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ids = dedupe(ids)
	return &List{ids: ids, fp: objhash.NewFingerprint(src)}, nil
}

func dedupe(sorted []uint32) []uint32 {
	out := sorted[:0]
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Contains reports whether id is a member of the list.
func (l *List) Contains(id uint32) bool {
	i := sort.Search(len(l.ids), func(i int) bool { return l.ids[i] >= id })
	return i < len(l.ids) && l.ids[i] == id
}
