// Package categorization implements the categorization dispatcher: a
// registered list of (type, config-module, category-bit, policy-mask,
// orgflag-mask) entries, consulted in order to fan a domain, address, or
// application-id query out across the underlying primitive lists and
// collapse the hits into a single category bitmask.
//
// Grounded on original_source/libuup/lib-uup/categorization.c and its
// per-kind sublookups (domaintagging.c, domainlist.c, application*.c). An
// entry is consulted only when its policy-mask is zero or intersects the
// caller's bundle flags, and likewise for its orgflag-mask against the
// caller's org flags - a zero mask means "unconditional", and that
// ambiguity (a genuinely empty mask is indistinguishable from "no gate at
// all") is preserved here exactly as the original behaves, not resolved.
package categorization

import (
	"net/netip"
	"sync/atomic"

	"github.com/polistore/uup/fileprefs"
	"github.com/polistore/uup/lists/cidrlist"
	"github.com/polistore/uup/lists/domainlist"
	"github.com/polistore/uup/lists/urllist"
)

// Entry is one registered categorization rule: a domain or address list
// paired with the category bit it contributes and the policy/orgflag gates
// that decide whether it is even consulted for a given caller.
type Entry struct {
	Name        string
	CatBit      int
	PolicyMask  fileprefs.BundleFlags
	OrgFlagMask fileprefs.OrgFlags

	Domain *domainlist.List
	CIDR   *cidrlist.List
}

// Categorization is the compiled, ordered set of Entry rules a host
// application registers at startup (or reload) for one categorization
// domain (destination categorization, address categorization, etc).
type Categorization struct {
	entries []Entry
}

// New compiles entries into a Categorization. Order is preserved and
// matched in order, same as categorization_by_domain's entry walk.
func New(entries []Entry) *Categorization {
	return &Categorization{entries: append([]Entry(nil), entries...)}
}

func gated(policyMask fileprefs.BundleFlags, policyBits fileprefs.BundleFlags, orgMask fileprefs.OrgFlags, orgBits fileprefs.OrgFlags) bool {
	if policyMask != 0 && policyBits&policyMask == 0 {
		return false
	}
	if orgMask != 0 && orgBits&orgMask == 0 {
		return false
	}
	return true
}

// ByDomain walks every registered domain entry whose gates pass, unions
// the category bits of every match, and applies the HALF_DOMAINTAGGING
// org-flag special case: when set, the process-wide half-domaintagging
// mask is cleared from the result before it is returned.
func (c *Categorization) ByDomain(name []byte, policyBits fileprefs.BundleFlags, orgBits fileprefs.OrgFlags) (cats fileprefs.Categories, matched bool) {
	for _, e := range c.entries {
		if e.Domain == nil || !gated(e.PolicyMask, policyBits, e.OrgFlagMask, orgBits) {
			continue
		}
		if _, ok := e.Domain.Match(name, domainlist.Subdomain); ok {
			matched = true
			cats.Set(e.CatBit)
		}
	}
	if orgBits&fileprefs.OrgFlagHalfDomainTagging != 0 {
		mask := currentHalfDomainTaggingMask()
		for i := range cats {
			cats[i] &^= mask[i]
		}
	}
	return cats, matched
}

// ByAddress is ByDomain's CIDR-list analogue.
func (c *Categorization) ByAddress(addr netip.Addr, policyBits fileprefs.BundleFlags, orgBits fileprefs.OrgFlags) (cats fileprefs.Categories, matched bool) {
	for _, e := range c.entries {
		if e.CIDR == nil || !gated(e.PolicyMask, policyBits, e.OrgFlagMask, orgBits) {
			continue
		}
		if _, ok := e.CIDR.Search(addr); ok {
			matched = true
			cats.Set(e.CatBit)
		}
	}
	return cats, matched
}

// halfDomainTaggingMask is the categorization analogue of lib-uup's
// option_half_domaintagging: written by the host application whenever its
// own config changes, read on every ByDomain call. Go has no equivalent of
// pthread-local storage cheap enough to read on a hot path and goroutines
// aren't pinned to OS threads anyway, so this is a single process-wide
// value instead of a true thread-local; see DESIGN.md.
var halfDomainTaggingMask atomic.Pointer[fileprefs.Categories]

// SetHalfDomainTaggingMask installs the category mask that ByDomain clears
// from its result whenever the caller's org has OrgFlagHalfDomainTagging
// set. Called by the host application on its own config reload.
func SetHalfDomainTaggingMask(m fileprefs.Categories) {
	halfDomainTaggingMask.Store(&m)
}

func currentHalfDomainTaggingMask() fileprefs.Categories {
	if p := halfDomainTaggingMask.Load(); p != nil {
		return *p
	}
	return fileprefs.Categories{}
}

// AppEntry is one application's registered domain/url/proxy-domain lists
// and the category bit a match against any of them contributes.
type AppEntry struct {
	AppID       uint32
	CatBit      int
	Domain      *domainlist.List
	URL         *urllist.List
	ProxyDomain *domainlist.List
}

// AppSet is the compiled application categorization module: a sorted-by-id
// array of AppEntry plus the super-index (lib-uup's application
// super-index, §4.2.5) used by MightProxy to answer "does any application
// at all proxy this domain" in one lookup instead of iterating every app.
type AppSet struct {
	apps       []AppEntry
	proxyIndex *domainlist.List
}

// NewAppSet compiles apps (expected pre-sorted by AppID, as orgconf's
// application-file loader produces) into an AppSet, building the proxy super-index by
// merging every app's proxy-domain entries into one combined list.
func NewAppSet(apps []AppEntry) (*AppSet, error) {
	as := &AppSet{apps: append([]AppEntry(nil), apps...)}

	var merged []byte
	for _, a := range as.apps {
		if a.ProxyDomain == nil {
			continue
		}
		for _, name := range a.ProxyDomain.Entries() {
			merged = append(merged, []byte(name)...)
			merged = append(merged, ' ')
		}
	}
	if len(merged) > 0 {
		idx, err := domainlist.Parse(merged, domainlist.ParseFlags{AllowEmpty: true})
		if err != nil {
			return nil, err
		}
		as.proxyIndex = idx
	}
	return as, nil
}

func (as *AppSet) find(appID uint32) (*AppEntry, bool) {
	lo, hi := 0, len(as.apps)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case as.apps[mid].AppID == appID:
			return &as.apps[mid], true
		case as.apps[mid].AppID < appID:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return nil, false
}

// AppDomainMatch implements pref.AppCategorizer: does appID's domain list
// match name?
func (as *AppSet) AppDomainMatch(appID uint32, name []byte) (catBit int, ok bool) {
	e, found := as.find(appID)
	if !found || e.Domain == nil {
		return 0, false
	}
	if _, hit := e.Domain.Match(name, domainlist.Subdomain); hit {
		return e.CatBit, true
	}
	return 0, false
}

// AppURLMatch implements pref.AppCategorizer: does appID's URL list match
// url, and if so with what match length?
func (as *AppSet) AppURLMatch(appID uint32, url []byte) (catBit int, matchLen int, ok bool) {
	e, found := as.find(appID)
	if !found || e.URL == nil {
		return 0, 0, false
	}
	if n, hit := e.URL.Match(url); hit {
		return e.CatBit, n, true
	}
	return 0, 0, false
}

// AppProxyDomainMatch implements pref.AppCategorizer: does appID itself
// proxy name?
func (as *AppSet) AppProxyDomainMatch(appID uint32, name []byte) bool {
	e, found := as.find(appID)
	if !found || e.ProxyDomain == nil {
		return false
	}
	_, hit := e.ProxyDomain.Match(name, domainlist.Subdomain)
	return hit
}

// MightProxy implements pref.AppCategorizer: a fast pre-check against the
// merged super-index, answering "is any application's proxy list even a
// candidate for this name" before ApplicationListProxy pays the cost of
// walking every attached application one at a time.
func (as *AppSet) MightProxy(name []byte) bool {
	if as.proxyIndex == nil {
		return false
	}
	_, ok := as.proxyIndex.Match(name, domainlist.Subdomain)
	return ok
}

// MatchAppID is categorization_match_appid: check one specific appID's
// domain list for name, setting its category bit in cats on a hit.
func MatchAppID(as *AppSet, appID uint32, name []byte) (cats fileprefs.Categories, matched bool) {
	if bit, ok := as.AppDomainMatch(appID, name); ok {
		cats.Set(bit)
		return cats, true
	}
	return cats, false
}
