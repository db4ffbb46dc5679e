package fileprefs

import (
	"sort"

	"github.com/polistore/uup/lists/cidrlist"
	"github.com/polistore/uup/lists/domainlist"
	"github.com/polistore/uup/lists/idlist"
	"github.com/polistore/uup/lists/urllist"
)

// LType identifies one of the ten attachable list categories a bundle can
// carry: block/allow/nodecrypt/warn crossed with dest/app, plus except and
// url-proxy-https.
type LType uint32

const (
	LTypeBlockDest LType = iota
	LTypeExcept
	LTypeAllowDest
	LTypeURLProxyHTTPS
	LTypeNodecryptDest
	LTypeBlockApp
	LTypeAllowApp
	LTypeNodecryptApp
	LTypeWarnDest
	LTypeWarnApp
)

// IsApp reports whether lt is one of the four app-slot ltypes, which may
// only ever attach an ElementApplication list.
func (lt LType) IsApp() bool {
	switch lt {
	case LTypeBlockApp, LTypeAllowApp, LTypeNodecryptApp, LTypeWarnApp:
		return true
	default:
		return false
	}
}

// RequiresEmptyBit reports whether lt must carry category bit 0: except,
// url-proxy-https, dest-nodecrypt, and app-nodecrypt lists never contribute
// a category on their own.
func (lt LType) RequiresEmptyBit() bool {
	switch lt {
	case LTypeExcept, LTypeURLProxyHTTPS, LTypeNodecryptDest, LTypeNodecryptApp:
		return true
	default:
		return false
	}
}

// ActType distinguishes which confset module a bundle/identity belongs to
// (e.g. dest-prefs vs. app-prefs); it is part of every bundle's composite key.
type ActType uint32

// ElementType identifies which primitive list backs a PrefList.
type ElementType int

const (
	ElementApplication ElementType = iota
	ElementCIDR
	ElementDomain
	ElementURL
)

// ListRef is the tagged union of primitive list pointers a PrefList wraps.
type ListRef struct {
	Type        ElementType
	Application *idlist.List
	CIDR        *cidrlist.List
	Domain      *domainlist.List
	URL         *urllist.List
}

// PrefList is one named, fingerprinted attachment target: an (ltype, id)
// pair bound to exactly one primitive list and, for category lists, the
// single category bit it contributes.
type PrefList struct {
	LType LType
	ID    uint32
	Bit   int
	Data  ListRef
}

// SettingGroup is one of up to four inheritable setting blocks a bundle can
// reference; pref_cook folds these into the bundle's cooked fields.
type SettingGroup struct {
	Idx       uint32
	ID        uint32
	Flags     BundleFlags
	Blocked   Categories
	Nodecrypt Categories
	Warn      Categories
}

// CookState is pref.cooked's three-state lifecycle.
type CookState int

const (
	Raw CookState = iota
	Simmer
	Boil
)

// Bundle is a policy bundle: a priority, flags, directly-set categories,
// up to four setting-group references, and attached lists split into
// locally-resolved (Internal) and cross-segment (External) by ltype.
type Bundle struct {
	ActType         ActType
	ID              uint32
	Priority        uint32
	Flags           BundleFlags
	Categories      Categories
	SettingGroupIDs [4]uint32

	Internal map[LType][]uint32
	External map[LType][]uint32

	Cooked                    CookState
	CookedOrgFlags            OrgFlags
	CookedBundleFlags         BundleFlags
	CookedCategories          Categories
	CookedNodecryptCategories Categories
	CookedWarnCategories      Categories
}

// Org carries the per-organization flags and inheritance pointer
// (ParentID) that anchor pref_t's three-tier chain.
type Org struct {
	ID                 uint32
	Flags              OrgFlags
	UnmaskedCategories Categories
	Retention          uint32
	WarnPeriod         uint32
	OriginID           uint32
	ParentID           uint32
}

// Identity maps a network-origin key to the bundle that governs it.
type Identity struct {
	OriginID     uint32
	OriginTypeID uint32
	OrgID        uint32
	ActType      ActType
	BundleID     uint32
	Key          []byte
}

// PrefBlock is the compiled, immutable, bsearch-able form a PrefBuilder
// consumes into.
type PrefBlock struct {
	Lists         []PrefList
	SettingGroups []SettingGroup
	Bundles       []Bundle
	Orgs          []Org
	Identities    []Identity
}

func (b *PrefBlock) List(lt LType, id uint32) (*PrefList, bool) {
	i := sort.Search(len(b.Lists), func(i int) bool {
		if b.Lists[i].LType != lt {
			return b.Lists[i].LType >= lt
		}
		return b.Lists[i].ID >= id
	})
	if i < len(b.Lists) && b.Lists[i].LType == lt && b.Lists[i].ID == id {
		return &b.Lists[i], true
	}
	return nil, false
}

// BundleIndex returns the slice index of the (actype, id) bundle, for
// callers that need to keep a stable reference to it (e.g. pref.T).
func (b *PrefBlock) BundleIndex(at ActType, id uint32) (int, bool) {
	i := sort.Search(len(b.Bundles), func(i int) bool {
		if b.Bundles[i].ActType != at {
			return b.Bundles[i].ActType >= at
		}
		return b.Bundles[i].ID >= id
	})
	if i < len(b.Bundles) && b.Bundles[i].ActType == at && b.Bundles[i].ID == id {
		return i, true
	}
	return 0, false
}

func (b *PrefBlock) Bundle(at ActType, id uint32) (*Bundle, bool) {
	i, ok := b.BundleIndex(at, id)
	if !ok {
		return nil, false
	}
	return &b.Bundles[i], true
}

func (b *PrefBlock) Org(id uint32) (*Org, bool) {
	i := sort.Search(len(b.Orgs), func(i int) bool { return b.Orgs[i].ID >= id })
	if i < len(b.Orgs) && b.Orgs[i].ID == id {
		return &b.Orgs[i], true
	}
	return nil, false
}

func (b *PrefBlock) SettingGroup(id uint32) (*SettingGroup, bool) {
	i := sort.Search(len(b.SettingGroups), func(i int) bool { return b.SettingGroups[i].ID >= id })
	if i < len(b.SettingGroups) && b.SettingGroups[i].ID == id {
		return &b.SettingGroups[i], true
	}
	return nil, false
}
