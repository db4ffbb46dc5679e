// Package pref implements the pref_t resolution cursor: a three-tier
// (primary/parent/global) inheritance chain over fileprefs.PrefBlock, its
// two-stage cook, and the domain/url/cidr/application match operations.
//
// Grounded on original_source/libuup/lib-uup/pref.c.
package pref

import "github.com/polistore/uup/fileprefs"

// GlobalOrgID is the process-wide org id consulted as the third tier of
// inheritance, mirroring pref.c's global_org_id tunable. Zero means "no
// global tier configured".
var GlobalOrgID uint32

// T is the resolution cursor: cached pointers into the primary, parent,
// and global prefblocks plus the org record within each.
type T struct {
	Block       *fileprefs.PrefBlock
	ParentBlock *fileprefs.PrefBlock
	GlobalBlock *fileprefs.PrefBlock

	Org       *fileprefs.Org
	ParentOrg *fileprefs.Org
	GlobalOrg *fileprefs.Org

	bundleIndex int
	valid       bool
}

// Valid reports whether this cursor resolved to a bundle at all.
func (t *T) Valid() bool { return t != nil && t.valid }

// Bundle returns the resolved bundle, or nil if the cursor is invalid.
func (t *T) Bundle() *fileprefs.Bundle {
	if !t.Valid() {
		return nil
	}
	return &t.Block.Bundles[t.bundleIndex]
}

// InitByBundle builds a cursor directly from a resolved (org_id, bundle
// slot), wiring the parent and global tiers from the org chain.
func InitByBundle(block, parentBlock, globalBlock *fileprefs.PrefBlock, orgID uint32, bundleIdx int) *T {
	t := &T{
		Block:       block,
		ParentBlock: parentBlock,
		GlobalBlock: globalBlock,
		bundleIndex: bundleIdx,
		valid:       block != nil && bundleIdx >= 0 && bundleIdx < len(block.Bundles),
	}
	if block == nil {
		return t
	}
	if org, ok := block.Org(orgID); ok {
		t.Org = org
		if parentBlock != nil && org.ParentID != 0 {
			if po, ok := parentBlock.Org(org.ParentID); ok {
				t.ParentOrg = po
			}
		}
	}
	if globalBlock != nil {
		if go_, ok := globalBlock.Org(GlobalOrgID); ok {
			t.GlobalOrg = go_
		}
	}
	return t
}

// InitByIdentity resolves an origin key to its bundle via the primary
// block's identity list, then delegates to InitByBundle.
func InitByIdentity(block, parentBlock, globalBlock *fileprefs.PrefBlock, at fileprefs.ActType, originID uint32) *T {
	if block == nil {
		return &T{valid: false}
	}
	for i := range block.Identities {
		id := &block.Identities[i]
		if id.ActType == at && id.OriginID == originID {
			if idx, ok := block.BundleIndex(at, id.BundleID); ok {
				return InitByBundle(block, parentBlock, globalBlock, id.OrgID, idx)
			}
		}
	}
	return &T{valid: false}
}

// blocksInOrder returns the tiers to search, primary first, for the
// "internal lists on this bundle, then ext_* ids resolved against
// parent/global" double-pass match operations.
func (t *T) blocksInOrder() []*fileprefs.PrefBlock {
	blocks := make([]*fileprefs.PrefBlock, 0, 3)
	if t.Block != nil {
		blocks = append(blocks, t.Block)
	}
	if t.ParentBlock != nil {
		blocks = append(blocks, t.ParentBlock)
	}
	if t.GlobalBlock != nil {
		blocks = append(blocks, t.GlobalBlock)
	}
	return blocks
}
