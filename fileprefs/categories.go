// Package fileprefs implements the mutable assembly buffer (PrefBuilder)
// and compiled, sorted, bsearch-able form (PrefBlock) that a policy file
// section compiles down to.
//
// Grounded on original_source/libuup/lib-uup/fileprefs.c and pref.c (the
// pref_categories_t / bundleflags / orgflags bit-vector types pref.c
// operates on).
package fileprefs

const categoryWords = 4

// Categories is a 256-bit category membership set.
type Categories [categoryWords]uint64

func (c *Categories) Set(bit int)   { c[bit/64] |= 1 << uint(bit%64) }
func (c *Categories) Clear(bit int) { c[bit/64] &^= 1 << uint(bit%64) }
func (c Categories) Test(bit int) bool {
	return c[bit/64]&(1<<uint(bit%64)) != 0
}

func (c *Categories) UnionWith(o Categories) {
	for i := range c {
		c[i] |= o[i]
	}
}

func (c Categories) Intersects(o Categories) bool {
	for i := range c {
		if c[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

func (c Categories) IsZero() bool { return c == Categories{} }

// CategoriesUsable implements pref_categories_usable: base bits always
// survive; my's bits survive only where overridable permits them.
func CategoriesUsable(base, my, overridable Categories) Categories {
	var out Categories
	for i := range out {
		out[i] = base[i] | (my[i] & overridable[i])
	}
	return out
}

// OrgFlags and BundleFlags are the two cookable bit-vector fields pref.c
// calls orgflags and bundleflags.
type OrgFlags uint64
type BundleFlags uint64

// The five bits pref_cook always force-sets, regardless of what the
// settinggroup chain contributed.
const (
	BundleFlagBlockList BundleFlags = 1 << iota
	BundleFlagAllowList
	BundleFlagGlobalAllowList
	BundleFlagBlockApp
	BundleFlagAllowApp
)

// ImplicitBundleFlags are force-set by pref_cook regardless of what the
// setting-group chain contributed.
const ImplicitBundleFlags = BundleFlagBlockList | BundleFlagAllowList | BundleFlagGlobalAllowList | BundleFlagBlockApp | BundleFlagAllowApp

const (
	OrgFlagHalfDomainTagging OrgFlags = 1 << iota
)
