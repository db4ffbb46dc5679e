package pref

import (
	"net/netip"
	"sort"
	"strings"

	"github.com/polistore/uup/fileprefs"
	"github.com/polistore/uup/lists/domainlist"
)

// AppCategorizer is the slice of the categorization dispatcher pref needs
// to resolve application ids against their domain/url/proxy lists. It is
// an interface (rather than a direct import of package categorization) so
// that categorization can depend on pref without a cycle.
type AppCategorizer interface {
	AppDomainMatch(appID uint32, name []byte) (catBit int, ok bool)
	AppURLMatch(appID uint32, url []byte) (catBit int, matchLen int, ok bool)
	AppProxyDomainMatch(appID uint32, name []byte) bool
	MightProxy(name []byte) bool
}

func (t *T) externalBlocks() []*fileprefs.PrefBlock {
	var blocks []*fileprefs.PrefBlock
	if t.ParentBlock != nil {
		blocks = append(blocks, t.ParentBlock)
	}
	if t.GlobalBlock != nil {
		blocks = append(blocks, t.GlobalBlock)
	}
	return blocks
}

// DomainListMatch accumulates category bits of every attached list of the
// given ltype that matches name: internally-attached lists first, then
// ext_* ids resolved against the parent/global tiers.
func (t *T) DomainListMatch(lt fileprefs.LType, name []byte, kind domainlist.MatchKind) (cats fileprefs.Categories, matched bool) {
	if !t.Valid() {
		return cats, false
	}
	b := t.Bundle()
	scan := func(blk *fileprefs.PrefBlock, ids []uint32) {
		for _, id := range ids {
			pl, ok := blk.List(lt, id)
			if !ok || pl.Data.Domain == nil {
				continue
			}
			if _, ok := pl.Data.Domain.Match(name, kind); ok {
				matched = true
				cats.Set(pl.Bit)
			}
		}
	}
	scan(t.Block, b.Internal[lt])
	for _, blk := range t.externalBlocks() {
		scan(blk, b.External[lt])
	}
	return cats, matched
}

// URLListMatch accumulates category bits and the longest match length
// across every attached list of the given ltype that matches url.
func (t *T) URLListMatch(lt fileprefs.LType, url []byte) (cats fileprefs.Categories, matchLen int, matched bool) {
	if !t.Valid() {
		return cats, 0, false
	}
	b := t.Bundle()
	scan := func(blk *fileprefs.PrefBlock, ids []uint32) {
		for _, id := range ids {
			pl, ok := blk.List(lt, id)
			if !ok || pl.Data.URL == nil {
				continue
			}
			if n, ok := pl.Data.URL.Match(url); ok {
				matched = true
				if n > matchLen {
					matchLen = n
				}
				cats.Set(pl.Bit)
			}
		}
	}
	scan(t.Block, b.Internal[lt])
	for _, blk := range t.externalBlocks() {
		scan(blk, b.External[lt])
	}
	return cats, matchLen, matched
}

// CIDRListMatch accumulates category bits of every attached list of the
// given ltype whose CIDR ranges contain addr.
func (t *T) CIDRListMatch(lt fileprefs.LType, addr netip.Addr) (cats fileprefs.Categories, matched bool) {
	if !t.Valid() {
		return cats, false
	}
	b := t.Bundle()
	scan := func(blk *fileprefs.PrefBlock, ids []uint32) {
		for _, id := range ids {
			pl, ok := blk.List(lt, id)
			if !ok || pl.Data.CIDR == nil {
				continue
			}
			if _, ok := pl.Data.CIDR.Search(addr); ok {
				matched = true
				cats.Set(pl.Bit)
			}
		}
	}
	scan(t.Block, b.Internal[lt])
	for _, blk := range t.externalBlocks() {
		scan(blk, b.External[lt])
	}
	return cats, matched
}

// ApplicationListDomainMatch iterates every attached application (uint32)
// set of the given ltype, asking cg whether any app's domain list
// contains name. The first hit per list short-circuits that list.
func (t *T) ApplicationListDomainMatch(lt fileprefs.LType, name []byte, cg AppCategorizer) (cats fileprefs.Categories, matched bool) {
	if !t.Valid() {
		return cats, false
	}
	b := t.Bundle()
	scan := func(blk *fileprefs.PrefBlock, ids []uint32) {
		for _, id := range ids {
			pl, ok := blk.List(lt, id)
			if !ok || pl.Data.Application == nil {
				continue
			}
			for i := 0; i < pl.Data.Application.Len(); i++ {
				if bit, ok := cg.AppDomainMatch(pl.Data.Application.At(i), name); ok {
					matched = true
					cats.Set(bit)
					break
				}
			}
		}
	}
	scan(t.Block, b.Internal[lt])
	for _, blk := range t.externalBlocks() {
		scan(blk, b.External[lt])
	}
	return cats, matched
}

// ApplicationListURLMatch is ApplicationListDomainMatch's URL analogue,
// additionally reporting the longest match length. It does not report
// which app id matched.
func (t *T) ApplicationListURLMatch(lt fileprefs.LType, url []byte, cg AppCategorizer) (cats fileprefs.Categories, matchLen int, matched bool) {
	if !t.Valid() {
		return cats, 0, false
	}
	b := t.Bundle()
	scan := func(blk *fileprefs.PrefBlock, ids []uint32) {
		for _, id := range ids {
			pl, ok := blk.List(lt, id)
			if !ok || pl.Data.Application == nil {
				continue
			}
			for i := 0; i < pl.Data.Application.Len(); i++ {
				if bit, n, ok := cg.AppURLMatch(pl.Data.Application.At(i), url); ok {
					matched = true
					cats.Set(bit)
					if n > matchLen {
						matchLen = n
					}
					break
				}
			}
		}
	}
	scan(t.Block, b.Internal[lt])
	for _, blk := range t.externalBlocks() {
		scan(blk, b.External[lt])
	}
	return cats, matchLen, matched
}

// ApplicationListAppIDMatch is a membership test: is appID present in any
// attached application set of the given ltype?
func (t *T) ApplicationListAppIDMatch(lt fileprefs.LType, appID uint32) bool {
	if !t.Valid() {
		return false
	}
	b := t.Bundle()
	check := func(blk *fileprefs.PrefBlock, ids []uint32) bool {
		for _, id := range ids {
			if pl, ok := blk.List(lt, id); ok && pl.Data.Application != nil && pl.Data.Application.Contains(appID) {
				return true
			}
		}
		return false
	}
	if check(t.Block, b.Internal[lt]) {
		return true
	}
	for _, blk := range t.externalBlocks() {
		if check(blk, b.External[lt]) {
			return true
		}
	}
	return false
}

// ApplicationListProxy returns the id of any attached app whose proxy
// domain list matches name, short-circuited by a MightProxy pre-check.
func (t *T) ApplicationListProxy(lt fileprefs.LType, name []byte, cg AppCategorizer) (uint32, bool) {
	if !t.Valid() || !cg.MightProxy(name) {
		return 0, false
	}
	b := t.Bundle()
	find := func(blk *fileprefs.PrefBlock, ids []uint32) (uint32, bool) {
		for _, id := range ids {
			pl, ok := blk.List(lt, id)
			if !ok || pl.Data.Application == nil {
				continue
			}
			for i := 0; i < pl.Data.Application.Len(); i++ {
				appID := pl.Data.Application.At(i)
				if cg.AppProxyDomainMatch(appID, name) {
					return appID, true
				}
			}
		}
		return 0, false
	}
	if appID, ok := find(t.Block, b.Internal[lt]); ok {
		return appID, true
	}
	for _, blk := range t.externalBlocks() {
		if appID, ok := find(blk, b.External[lt]); ok {
			return appID, true
		}
	}
	return 0, false
}

// SortedList renders every attached domain or CIDR list of the given ltype
// as a sorted, de-duplicated, space-separated string - a debug/test helper.
// Lists of other element types contribute nothing.
func (t *T) SortedList(lt fileprefs.LType) string {
	if !t.Valid() {
		return ""
	}
	b := t.Bundle()
	seen := make(map[string]bool)
	var out []string
	collect := func(blk *fileprefs.PrefBlock, ids []uint32) {
		for _, id := range ids {
			pl, ok := blk.List(lt, id)
			if !ok {
				continue
			}
			var rendered string
			switch pl.Data.Type {
			case fileprefs.ElementDomain:
				if pl.Data.Domain != nil {
					rendered = strings.Join(pl.Data.Domain.Entries(), " ")
				}
			case fileprefs.ElementCIDR:
				if pl.Data.CIDR != nil {
					rendered = pl.Data.CIDR.Render()
				}
			}
			for _, tok := range strings.Fields(rendered) {
				if !seen[tok] {
					seen[tok] = true
					out = append(out, tok)
				}
			}
		}
	}
	collect(t.Block, b.Internal[lt])
	for _, blk := range t.externalBlocks() {
		collect(blk, b.External[lt])
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}
