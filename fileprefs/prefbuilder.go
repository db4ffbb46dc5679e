package fileprefs

import (
	"sort"

	"github.com/pkg/errors"
)

// BuilderFlags controls PrefBuilder's tolerance for cross-segment
// attachments (mirrors fileprefs.c's PREFBUILDER_FLAG_NO_EXTERNAL_REFS).
type BuilderFlags int

const (
	BuilderFlagNone BuilderFlags = 0
	BuilderFlagNoExternalRefs BuilderFlags = 1 << iota
	// BuilderFlagStrict turns AttachList's silent drops (a reference to a
	// discarded list, or an unresolved reference under
	// BuilderFlagNoExternalRefs) into errors instead - the cfg.Lookup.Strict
	// wiring point.
	BuilderFlagStrict
)

// PrefBuilder is the mutable assembly buffer a file section is read into,
// one chunk (lists, settinggroups, bundles, orgs, identities) at a time.
type PrefBuilder struct {
	flags BuilderFlags

	lists         []PrefList
	settingGroups []SettingGroup
	bundles       []Bundle
	orgs          []Org
	identities    []Identity

	discarded map[uint64]bool
}

func NewPrefBuilder(flags BuilderFlags) *PrefBuilder {
	return &PrefBuilder{flags: flags, discarded: make(map[uint64]bool)}
}

func listKey(lt LType, id uint32) uint64 { return uint64(lt)<<32 | uint64(id) }

func (pb *PrefBuilder) AllocLists(n int)         { pb.lists = make([]PrefList, 0, n) }
func (pb *PrefBuilder) AllocSettingGroups(n int)  { pb.settingGroups = make([]SettingGroup, 0, n) }
func (pb *PrefBuilder) AllocBundles(n int)        { pb.bundles = make([]Bundle, 0, n) }
func (pb *PrefBuilder) AllocOrgs(n int)           { pb.orgs = make([]Org, 0, n) }
func (pb *PrefBuilder) AllocIdentities(n int)     { pb.identities = make([]Identity, 0, n) }

// AddList appends a newly-parsed preflist. Ids within an ltype are expected
// to arrive in increasing order, matching the source file's own invariant.
// ltype and elementtype must be compatible (an app-list slot cannot hold a
// domain/cidr/url list, and vice versa), and a ltype that requires an empty
// category bit must actually carry one - both rejected here rather than
// silently accepted.
func (pb *PrefBuilder) AddList(lt LType, id uint32, bit int, data ListRef) error {
	if lt.IsApp() != (data.Type == ElementApplication) {
		return errors.Errorf("fileprefs: ltype %d is incompatible with elementtype %d", lt, data.Type)
	}
	if lt.RequiresEmptyBit() && bit != 0 {
		return errors.Errorf("fileprefs: ltype %d requires an empty category bit, got %d", lt, bit)
	}
	if n := len(pb.lists); n > 0 {
		last := pb.lists[n-1]
		if last.LType == lt && last.ID >= id {
			return errors.Errorf("fileprefs: list id %d out of order for ltype %d", id, lt)
		}
	}
	pb.lists = append(pb.lists, PrefList{LType: lt, ID: id, Bit: bit, Data: data})
	return nil
}

// DiscardList marks (lt, id) as discarded: later attachments referencing it
// are dropped silently instead of erroring. Used when load flags exclude an
// element type entirely.
func (pb *PrefBuilder) DiscardList(lt LType, id uint32) {
	pb.discarded[listKey(lt, id)] = true
}

func (pb *PrefBuilder) AddSettingGroup(idx, id uint32, flags BundleFlags, blocked, nodecrypt, warn Categories) error {
	pb.settingGroups = append(pb.settingGroups, SettingGroup{
		Idx: idx, ID: id, Flags: flags, Blocked: blocked, Nodecrypt: nodecrypt, Warn: warn,
	})
	return nil
}

func (pb *PrefBuilder) AddOrg(id uint32, flags OrgFlags, unmasked Categories, retention, warnPeriod, originID, parentID uint32) error {
	pb.orgs = append(pb.orgs, Org{
		ID: id, Flags: flags, UnmaskedCategories: unmasked,
		Retention: retention, WarnPeriod: warnPeriod, OriginID: originID, ParentID: parentID,
	})
	return nil
}

func (pb *PrefBuilder) AddIdentity(originID, originTypeID, orgID uint32, at ActType, bundleID uint32, key []byte) error {
	if pb.flags&BuilderFlagNoExternalRefs == 0 {
		if _, ok := pb.findBundle(at, bundleID); !ok {
			return errors.Errorf("fileprefs: identity references unknown bundle %d", bundleID)
		}
	}
	pb.identities = append(pb.identities, Identity{
		OriginID: originID, OriginTypeID: originTypeID, OrgID: orgID, ActType: at, BundleID: bundleID, Key: key,
	})
	return nil
}

func (pb *PrefBuilder) AddBundle(at ActType, id, priority uint32, flags BundleFlags, cats Categories, sgids [4]uint32) error {
	pb.bundles = append(pb.bundles, Bundle{
		ActType: at, ID: id, Priority: priority, Flags: flags, Categories: cats, SettingGroupIDs: sgids,
		Internal: make(map[LType][]uint32), External: make(map[LType][]uint32),
	})
	return nil
}

func (pb *PrefBuilder) findBundle(at ActType, id uint32) (*Bundle, bool) {
	for i := range pb.bundles {
		if pb.bundles[i].ActType == at && pb.bundles[i].ID == id {
			return &pb.bundles[i], true
		}
	}
	return nil, false
}

func (pb *PrefBuilder) hasLocalList(lt LType, id uint32) bool {
	for i := range pb.lists {
		if pb.lists[i].LType == lt && pb.lists[i].ID == id {
			return true
		}
	}
	return false
}

// AttachList links a preflist to a bundle by (ltype, id). A reference to a
// discarded list, or an unresolved reference when BuilderFlagNoExternalRefs
// forbids holding it as external, is dropped silently - unless
// BuilderFlagStrict is set, in which case both become errors instead.
func (pb *PrefBuilder) AttachList(at ActType, bundleID uint32, lt LType, listID uint32) error {
	b, ok := pb.findBundle(at, bundleID)
	if !ok {
		return errors.Errorf("fileprefs: attach to unknown bundle %d", bundleID)
	}
	if pb.discarded[listKey(lt, listID)] {
		if pb.flags&BuilderFlagStrict != 0 {
			return errors.Errorf("fileprefs: attach to discarded list (ltype %d, id %d)", lt, listID)
		}
		return nil
	}
	if pb.hasLocalList(lt, listID) {
		b.Internal[lt] = append(b.Internal[lt], listID)
		return nil
	}
	if pb.flags&BuilderFlagNoExternalRefs != 0 {
		if pb.flags&BuilderFlagStrict != 0 {
			return errors.Errorf("fileprefs: external reference to (ltype %d, id %d) forbidden", lt, listID)
		}
		return nil
	}
	b.External[lt] = append(b.External[lt], listID)
	return nil
}

// Consume snapshots every chunk into a sorted, bsearch-able PrefBlock and
// releases the builder's working state.
func (pb *PrefBuilder) Consume() *PrefBlock {
	sort.Slice(pb.lists, func(i, j int) bool {
		if pb.lists[i].LType != pb.lists[j].LType {
			return pb.lists[i].LType < pb.lists[j].LType
		}
		return pb.lists[i].ID < pb.lists[j].ID
	})
	sort.Slice(pb.bundles, func(i, j int) bool {
		if pb.bundles[i].ActType != pb.bundles[j].ActType {
			return pb.bundles[i].ActType < pb.bundles[j].ActType
		}
		return pb.bundles[i].ID < pb.bundles[j].ID
	})
	sort.Slice(pb.orgs, func(i, j int) bool { return pb.orgs[i].ID < pb.orgs[j].ID })
	sort.Slice(pb.settingGroups, func(i, j int) bool { return pb.settingGroups[i].ID < pb.settingGroups[j].ID })

	block := &PrefBlock{
		Lists:         pb.lists,
		SettingGroups: pb.settingGroups,
		Bundles:       pb.bundles,
		Orgs:          pb.orgs,
		Identities:    pb.identities,
	}
	pb.lists, pb.settingGroups, pb.bundles, pb.orgs, pb.identities = nil, nil, nil, nil, nil
	return block
}
