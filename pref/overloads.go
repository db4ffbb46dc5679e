package pref

import "sort"

// OverloadKey is the (country, region) composite key pref_overloads is
// sorted by; Region == "" is the country-wide entry.
type OverloadKey struct {
	Country string
	Region  string
}

type overloadEntry struct {
	key     OverloadKey
	overlay Overlay
}

// OverloadTable is the pref_overloads lookup table consulted by
// CookWithOverloads: a sorted-by-(country, region) table of partial
// bundleflags/category overlays.
type OverloadTable struct {
	entries []overloadEntry
}

func NewOverloadTable() *OverloadTable { return &OverloadTable{} }

func (ot *OverloadTable) Add(key OverloadKey, overlay Overlay) {
	ot.entries = append(ot.entries, overloadEntry{key: key, overlay: overlay})
	sort.Slice(ot.entries, func(i, j int) bool {
		if ot.entries[i].key.Country != ot.entries[j].key.Country {
			return ot.entries[i].key.Country < ot.entries[j].key.Country
		}
		return ot.entries[i].key.Region < ot.entries[j].key.Region
	})
}

// Lookup finds the most specific overlay for (country, region), falling
// back to the country-wide entry when no exact region match exists.
func (ot *OverloadTable) Lookup(country, region string) (Overlay, bool) {
	if o, ok := ot.find(country, region); ok {
		return o, true
	}
	if region != "" {
		return ot.find(country, "")
	}
	return Overlay{}, false
}

func (ot *OverloadTable) find(country, region string) (Overlay, bool) {
	i := sort.Search(len(ot.entries), func(i int) bool {
		if ot.entries[i].key.Country != country {
			return ot.entries[i].key.Country >= country
		}
		return ot.entries[i].key.Region >= region
	})
	if i < len(ot.entries) && ot.entries[i].key.Country == country && ot.entries[i].key.Region == region {
		return ot.entries[i].overlay, true
	}
	return Overlay{}, false
}
