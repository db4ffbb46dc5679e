package domainlist

import (
	"testing"

	"github.com/polistore/uup/internal/tassert"
)

// TestSubdomainReduction covers spec scenario 1: amazon.com,
// images-amazon.com, images.amazon.com collapses to 2 entries (the nested
// subdomain images.amazon.com is dropped) and a query for www.amazon.com
// matches at the position of "amazon.com".
func TestSubdomainReduction(t *testing.T) {
	l, err := Parse([]byte("amazon.com images-amazon.com images.amazon.com"), ParseFlags{})
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, l.Len() == 2, "expected 2 entries after subdomain collapse, got %d: %v", l.Len(), l.Entries())

	pos, ok := l.Match([]byte("www.amazon.com"), Subdomain)
	tassert.Fatalf(t, ok, "expected www.amazon.com to match")
	tassert.Fatalf(t, pos == 4, "expected match at position 4, got %d", pos)
}

func TestExactListLongestMatch(t *testing.T) {
	l, err := Parse([]byte("amazon.com images.amazon.com"), ParseFlags{Exact: true})
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, l.Len() == 2, "expected both entries retained in exact list, got %d", l.Len())

	pos, ok := l.Match([]byte("www.images.amazon.com"), Subdomain)
	tassert.Fatalf(t, ok, "expected a match")
	tassert.Fatalf(t, pos == len("www."), "expected longest match at position %d, got %d", len("www."), pos)
}

func TestExactMatchRequiresFullEquality(t *testing.T) {
	l, err := Parse([]byte("amazon.com"), ParseFlags{Exact: true})
	tassert.CheckFatal(t, err)

	_, ok := l.Match([]byte("www.amazon.com"), Exact)
	tassert.Fatalf(t, !ok, "expected Exact match kind to reject a subdomain")

	_, ok = l.Match([]byte("amazon.com"), Exact)
	tassert.Fatalf(t, ok, "expected Exact match kind to accept the identical name")
}

func TestNoMatch(t *testing.T) {
	l, err := Parse([]byte("amazon.com"), ParseFlags{})
	tassert.CheckFatal(t, err)

	_, ok := l.Match([]byte("notamazon.com"), Subdomain)
	tassert.Fatalf(t, !ok, "expected notamazon.com not to match amazon.com")

	_, ok = l.Match([]byte("amazon.com.evil.com"), Subdomain)
	tassert.Fatalf(t, !ok, "expected amazon.com.evil.com not to match as a subdomain of amazon.com")
}

func TestFingerprintStable(t *testing.T) {
	a, err := Parse([]byte("amazon.com"), ParseFlags{})
	tassert.CheckFatal(t, err)
	b, err := Parse([]byte("amazon.com"), ParseFlags{})
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, a.Fingerprint() == b.Fingerprint(), "expected identical source text to fingerprint identically")
}
