// Package domainlist implements the compact, sorted, reversed-label domain
// name list: binary-searchable for exact or subdomain matches with a
// variable-width offset array to keep hundreds of thousands of resident
// lists cheap in memory.
//
// Grounded on original_source/libuup/lib-uup/domainlist.c.
package domainlist

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/polistore/uup/objhash"
)

// ParseFlags controls domainlist_parse's tolerance and collapsing behavior.
type ParseFlags struct {
	// Exact retains nested subdomains instead of collapsing them; used for
	// lists that must distinguish "example.com" from "www.example.com".
	Exact bool
	// AllowEmpty permits a zero-entry list instead of treating it as a
	// parse error.
	AllowEmpty bool
	// IgnoreJunk skips bytes outside the dns_tohost charset instead of
	// failing the whole file.
	IgnoreJunk bool
	// TrimAtSlash truncates each token at its first '/', for input files
	// that carry bare URLs instead of hostnames.
	TrimAtSlash bool
}

// List is an immutable, content-addressed set of domain names.
type List struct {
	buf     []byte
	offsets offsetArray
	exact   bool
	fp      objhash.Fingerprint
}

// Fingerprint identifies this list's source text for object-hash dedup.
func (l *List) Fingerprint() objhash.Fingerprint { return l.fp }

// Len returns the number of entries retained after subdomain collapsing.
func (l *List) Len() int { return l.offsets.len() }

// Exact reports whether this list retains nested subdomains.
func (l *List) Exact() bool { return l.exact }

func (l *List) entryAt(i int) []byte {
	start := int(l.offsets.at(i))
	end := start
	for l.buf[end] != 0 {
		end++
	}
	return l.buf[start:end]
}

// Entries renders the list's names back to normal (non-reversed,
// non-lowercased-beyond-ASCII) order, sorted - a debug/test helper.
func (l *List) Entries() []string {
	out := make([]string, l.Len())
	for i := range out {
		out[i] = string(reverse(l.entryAt(i)))
	}
	return out
}

// Parse builds a List from whitespace-separated domain names.
func Parse(src []byte, flags ParseFlags) (*List, error) {
	fields := bytes.Fields(src)
	entries := make([][]byte, 0, len(fields))

	for _, f := range fields {
		if flags.TrimAtSlash {
			if i := bytes.IndexByte(f, '/'); i >= 0 {
				f = f[:i]
			}
		}
		name := bytes.Trim(f, ".")
		if len(name) == 0 {
			continue
		}
		clean := make([]byte, 0, len(name))
		for _, b := range name {
			if !dnsTohostOK(b) {
				if flags.IgnoreJunk {
					continue
				}
				return nil, fmt.Errorf("domainlist: invalid byte %q in name %q", b, name)
			}
			clean = append(clean, dnsTolower(b))
		}
		if len(clean) == 0 {
			continue
		}
		entries = append(entries, reverse(clean))
	}

	if len(entries) == 0 && !flags.AllowEmpty {
		return nil, fmt.Errorf("domainlist: empty list")
	}

	sort.Slice(entries, func(i, j int) bool {
		return compareDomains(entries[i], entries[j]) < 0
	})
	entries = dedupe(entries)
	if !flags.Exact {
		entries = collapseSubdomains(entries)
	}

	buf, raw := buildBuffer(entries)
	return &List{
		buf:     buf,
		offsets: newOffsets(raw, len(buf)),
		exact:   flags.Exact,
		fp:      objhash.NewFingerprint(src),
	}, nil
}

func dedupe(sorted [][]byte) [][]byte {
	out := sorted[:0]
	for i, e := range sorted {
		if i > 0 && bytes.Equal(e, sorted[i-1]) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// collapseSubdomains drops any entry that is a strict subdomain of the
// immediately preceding kept entry - safe because the sort order guarantees
// an ancestor always immediately precedes all of its descendants.
func collapseSubdomains(sorted [][]byte) [][]byte {
	out := make([][]byte, 0, len(sorted))
	for _, e := range sorted {
		if len(out) > 0 {
			last := out[len(out)-1]
			if len(e) > len(last) && bytes.Equal(e[:len(last)], last) && e[len(last)] == '.' {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func buildBuffer(entries [][]byte) ([]byte, []uint32) {
	var buf []byte
	offs := make([]uint32, len(entries))
	for i, e := range entries {
		offs[i] = uint32(len(buf))
		buf = append(buf, e...)
		buf = append(buf, 0)
	}
	return buf, offs
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// Match searches for name (ordinary wire-format order, e.g. "www.amazon.com")
// and returns the byte offset into name where the matching entry begins,
// and whether any entry matched at all.
func (l *List) Match(name []byte, kind MatchKind) (pos int, ok bool) {
	if l.Len() == 0 {
		return 0, false
	}
	lowered := make([]byte, len(name))
	for i, b := range name {
		lowered[i] = dnsTolower(b)
	}
	query := reverse(lowered)

	idx, found := l.bsearch(kind, query)
	if !found {
		return 0, false
	}
	if l.exact && kind == Subdomain {
		for idx+1 < l.Len() {
			next := l.entryAt(idx + 1)
			if searchCompare(kind, query, next) == 0 && len(next) > len(l.entryAt(idx)) {
				idx++
				continue
			}
			break
		}
	}
	matchLen := len(l.entryAt(idx))
	return len(name) - matchLen, true
}

func (l *List) bsearch(kind MatchKind, query []byte) (int, bool) {
	lo, hi := 0, l.Len()-1
	for lo <= hi {
		mid := (lo + hi) / 2
		c := searchCompare(kind, query, l.entryAt(mid))
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	return 0, false
}
