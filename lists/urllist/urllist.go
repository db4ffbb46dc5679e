// Package urllist implements the open-addressed hash of normalized URL
// prefixes, searched via progressive left-to-right prefix matching.
//
// Grounded on original_source/libuup/lib-uup/urllist.c. The exact
// normalizer this package's Normalize consults is an external collaborator
// in the original system (spec.md §1's "url-normalize consumer" shared
// helper); this package implements a deterministic equivalent (lowercase
// host, sorted query parameters, scheme stripped) rather than reproducing
// an unspecified external library byte-for-byte.
package urllist

import (
	"bytes"
	"sort"

	"github.com/OneOfOne/xxhash"

	"github.com/polistore/uup/objhash"
)

const averageURLLength = 100

// ParseFlags controls strictness of urllist_parse.
type ParseFlags struct {
	Strict     bool // reject (instead of truncate) URLs over MaxURLLen
	MaxURLLen  int
	AllowEmpty bool
}

func (f ParseFlags) maxLen() int {
	if f.MaxURLLen > 0 {
		return f.MaxURLLen
	}
	return 4096
}

type bucketEntry struct {
	key  uint64
	data []byte
	next *bucketEntry
}

// List is a chained hash table of normalized URL prefixes.
type List struct {
	buckets []*bucketEntry
	count   int
	fp      objhash.Fingerprint
}

func (l *List) Fingerprint() objhash.Fingerprint { return l.fp }
func (l *List) Len() int                         { return l.count }

func hashKey(data []byte) uint64 {
	return xxhash.Checksum64(data)
}

func (l *List) bucketIndex(key uint64) int {
	return int(key % uint64(len(l.buckets)))
}

func (l *List) lookup(data []byte) bool {
	key := hashKey(data)
	for e := l.buckets[l.bucketIndex(key)]; e != nil; e = e.next {
		if e.key == key && bytes.Equal(e.data, data) {
			return true
		}
	}
	return false
}

func (l *List) add(data []byte) {
	if l.lookup(data) {
		return
	}
	key := hashKey(data)
	idx := l.bucketIndex(key)
	l.buckets[idx] = &bucketEntry{key: key, data: data, next: l.buckets[idx]}
	l.count++
}

// Parse builds a List from whitespace-separated URLs.
func Parse(src []byte, flags ParseFlags) (*List, error) {
	fields := bytes.Fields(src)
	normalized := make([][]byte, 0, len(fields))
	total := 0
	for _, f := range fields {
		u := Normalize(f)
		if len(u) > flags.maxLen() {
			if flags.Strict {
				continue
			}
			u = u[:flags.maxLen()]
		}
		if len(u) == 0 {
			continue
		}
		normalized = append(normalized, u)
		total += len(u)
	}

	numBuckets := total / averageURLLength
	if numBuckets < 1 {
		numBuckets = 1
	}
	l := &List{buckets: make([]*bucketEntry, numBuckets), fp: objhash.NewFingerprint(src)}
	for _, u := range normalized {
		l.add(u)
	}
	return l, nil
}

// Normalize lowercases the host portion, strips a leading scheme, and
// sorts query parameters lexicographically, preserving trailing-slash
// semantics on the path.
func Normalize(raw []byte) []byte {
	s := raw
	if i := bytes.Index(s, []byte("://")); i >= 0 {
		s = s[i+3:]
	}

	var path, query []byte
	hasQuery := false
	if i := bytes.IndexByte(s, '?'); i >= 0 {
		path, query = s[:i], s[i+1:]
		hasQuery = true
	} else {
		path = s
	}

	hostEnd := bytes.IndexByte(path, '/')
	if hostEnd < 0 {
		hostEnd = len(path)
	}
	out := make([]byte, len(path))
	copy(out, path)
	for i := 0; i < hostEnd; i++ {
		out[i] = toLowerASCII(out[i])
	}

	if hasQuery {
		params := bytes.Split(query, []byte("&"))
		sort.Slice(params, func(i, j int) bool { return bytes.Compare(params[i], params[j]) < 0 })
		out = append(out, '?')
		out = append(out, bytes.Join(params, []byte("&"))...)
	}
	return out
}

func toLowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// Match performs a progressive left-to-right prefix match: at each '/'
// boundary it tests the prefix up to and including the slash, at each '?'
// boundary it tests the prefix up to (excluding) the '?', and finally it
// tests the whole normalized URL. It returns the matched length and true
// on the first hit.
func (l *List) Match(raw []byte) (int, bool) {
	if l.count == 0 {
		return 0, false
	}
	q := Normalize(raw)
	for i := 0; i < len(q); i++ {
		switch q[i] {
		case '/':
			if l.lookup(q[:i+1]) {
				return i + 1, true
			}
		case '?':
			if l.lookup(q[:i]) {
				return i, true
			}
		}
	}
	if l.lookup(q) {
		return len(q), true
	}
	return 0, false
}
