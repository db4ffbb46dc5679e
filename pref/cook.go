package pref

import "github.com/polistore/uup/fileprefs"

// Cook transitions the resolved bundle from Raw to Simmer: fold in
// setting-groups (primary block first, then global block for unresolved
// sgids), OR-ing their flags into CookedBundleFlags and unioning their
// blocked/nodecrypt/warn categories, then force-set the five implicit
// bundle flags.
func (t *T) Cook() {
	b := t.Bundle()
	if b == nil || b.Cooked != fileprefs.Raw {
		return
	}

	if t.Org != nil {
		b.CookedOrgFlags = t.Org.Flags
	}
	b.CookedBundleFlags = b.Flags
	b.CookedCategories = b.Categories

	for _, sgid := range b.SettingGroupIDs {
		if sgid == 0 {
			continue
		}
		sg, ok := t.Block.SettingGroup(sgid)
		if !ok && t.GlobalBlock != nil {
			sg, ok = t.GlobalBlock.SettingGroup(sgid)
		}
		if !ok {
			continue
		}
		b.CookedBundleFlags |= sg.Flags
		b.CookedCategories.UnionWith(sg.Blocked)
		b.CookedNodecryptCategories.UnionWith(sg.Nodecrypt)
		b.CookedWarnCategories.UnionWith(sg.Warn)
	}

	b.CookedBundleFlags |= fileprefs.ImplicitBundleFlags
	b.Cooked = fileprefs.Simmer
}

// Overlay is one pref_overloads entry: a partial bundleflags/orgflags/
// category overlay plus the masks that say which of its own bits are
// allowed to override the listener's.
type Overlay struct {
	BundleFlags fileprefs.BundleFlags
	OrgFlags    fileprefs.OrgFlags
	Blocked     fileprefs.Categories

	OverridableBundleFlags fileprefs.BundleFlags
	OverridableOrgFlags    fileprefs.OrgFlags
	OverridableCategories  fileprefs.Categories
}

// CookWithOverloads transitions the resolved bundle from Simmer to Boil,
// folding in the listener's own prefs, the listener-supplied overridable
// masks, and an optional country/region overlay. For each field, changed =
// listener XOR my, permitted = changed AND overridable, result = permitted
// XOR listener - taken character for character from
// pref_cook_with_overloads. When overlay is non-nil, its own asserted
// bundleflags/orgflags/blocked-categories values are folded into the
// listener side before the algebra runs, and its overridable masks narrow
// (AND/intersect) the listener-supplied ones - an overlay can only shrink
// what the listener already permits, never grant more. An org-less cursor
// never permits org-flag overrides at all, matching the original's
// "we have no orgflags at all, so nothing should be overridden" case.
func (t *T) CookWithOverloads(
	listenerBundleFlags fileprefs.BundleFlags, listenerOrgFlags fileprefs.OrgFlags, listenerBlocked fileprefs.Categories,
	listenerOverridableBundleFlags fileprefs.BundleFlags, listenerOverridableOrgFlags fileprefs.OrgFlags, listenerOverridableCategories fileprefs.Categories,
	overlay *Overlay,
) {
	b := t.Bundle()
	if b == nil || b.Cooked != fileprefs.Simmer {
		return
	}

	orgFlags := listenerOrgFlags
	overridableOrgFlags := listenerOverridableOrgFlags
	bundleFlags := listenerBundleFlags
	overridableBundleFlags := listenerOverridableBundleFlags
	baseBlocked := listenerBlocked
	overridableCategories := listenerOverridableCategories

	if overlay != nil {
		orgFlags |= overlay.OrgFlags
		overridableOrgFlags &= overlay.OverridableOrgFlags
		bundleFlags |= overlay.BundleFlags
		overridableBundleFlags &= overlay.OverridableBundleFlags
		baseBlocked.UnionWith(overlay.Blocked)

		var intersected fileprefs.Categories
		for i := range intersected {
			intersected[i] = listenerOverridableCategories[i] & overlay.OverridableCategories[i]
		}
		overridableCategories = intersected
	}

	if t.Org == nil {
		overridableOrgFlags = 0
	}

	b.CookedOrgFlags = cookOrgFlags(orgFlags, b.CookedOrgFlags, overridableOrgFlags)
	b.CookedBundleFlags = cookBundleFlags(bundleFlags, b.CookedBundleFlags, overridableBundleFlags)
	b.CookedCategories = fileprefs.CategoriesUsable(baseBlocked, b.CookedCategories, overridableCategories)
	b.Cooked = fileprefs.Boil
}

func cookOrgFlags(listener, my, overridable fileprefs.OrgFlags) fileprefs.OrgFlags {
	changed := listener ^ my
	permitted := changed & overridable
	return permitted ^ listener
}

func cookBundleFlags(listener, my, overridable fileprefs.BundleFlags) fileprefs.BundleFlags {
	changed := listener ^ my
	permitted := changed & overridable
	return permitted ^ listener
}
