package fileprefs

import (
	"testing"

	"github.com/polistore/uup/internal/tassert"
	"github.com/polistore/uup/lists/domainlist"
	"github.com/polistore/uup/lists/idlist"
)

const sampleDestPrefs = `destprefs 1
count 4

[lists:1]
0:1:domain:0:deadbeef:amazon.com images.amazon.com

[settinggroup:1]
0:1:1f:1,0,0,0:0,0,0,0:0,0,0,0

[bundles:1]
0:100:10:0:0,0,0,0:1,0,0,0:0=1

[orgs:1]
1000:0:0,0,0,0:30:7:1:0
`

func TestParseRoundTrip(t *testing.T) {
	block, err := Parse("destprefs", []byte(sampleDestPrefs), BuilderFlagNone)
	tassert.CheckFatal(t, err)

	tassert.Fatalf(t, len(block.Lists) == 1, "expected 1 list, got %d", len(block.Lists))
	tassert.Fatalf(t, len(block.Bundles) == 1, "expected 1 bundle, got %d", len(block.Bundles))

	org, ok := block.Org(1000)
	tassert.Fatalf(t, ok, "expected org 1000 to be present")
	tassert.Fatalf(t, org.ParentID == 0, "expected org 1000 to have no parent")

	bundle, ok := block.Bundle(0, 100)
	tassert.Fatalf(t, ok, "expected bundle 100 to be present")
	tassert.Fatalf(t, len(bundle.Internal[LTypeBlockDest]) == 1, "expected 1 internally-attached block-dest list")

	sg, ok := block.SettingGroup(1)
	tassert.Fatalf(t, ok, "expected settinggroup 1 to be present")
	tassert.Fatalf(t, sg.Flags == ImplicitBundleFlags, "expected settinggroup flags 1f to decode as ImplicitBundleFlags")
}

func TestAttachmentToDiscardedListIsSilentlyDropped(t *testing.T) {
	pb := NewPrefBuilder(BuilderFlagNone)
	pb.DiscardList(LTypeBlockDest, 1)
	tassert.CheckFatal(t, pb.AddBundle(0, 100, 10, 0, Categories{}, [4]uint32{}))
	tassert.CheckFatal(t, pb.AttachList(0, 100, LTypeBlockDest, 1))

	block := pb.Consume()
	bundle, ok := block.Bundle(0, 100)
	tassert.Fatalf(t, ok, "expected bundle to exist")
	tassert.Fatalf(t, len(bundle.Internal[LTypeBlockDest]) == 0, "expected discarded list attachment to be dropped")
	tassert.Fatalf(t, len(bundle.External[LTypeBlockDest]) == 0, "expected discarded list attachment not to become external either")
}

func TestExternalRefsForbiddenFlagDropsUnresolvedAttachment(t *testing.T) {
	pb := NewPrefBuilder(BuilderFlagNoExternalRefs)
	tassert.CheckFatal(t, pb.AddBundle(0, 100, 10, 0, Categories{}, [4]uint32{}))
	tassert.CheckFatal(t, pb.AttachList(0, 100, LTypeBlockDest, 999))

	block := pb.Consume()
	bundle, _ := block.Bundle(0, 100)
	tassert.Fatalf(t, len(bundle.External[LTypeBlockDest]) == 0, "expected unresolved attachment to be dropped under NoExternalRefs")
}

func TestAddListRejectsAppLtypeWithNonApplicationList(t *testing.T) {
	pb := NewPrefBuilder(BuilderFlagNone)
	dl, err := domainlist.Parse([]byte("example.com"), domainlist.ParseFlags{})
	tassert.CheckFatal(t, err)
	err = pb.AddList(LTypeBlockApp, 1, 0, ListRef{Type: ElementDomain, Domain: dl})
	tassert.Fatalf(t, err != nil, "expected an app ltype wrapping a domain list to be rejected")
}

func TestAddListRejectsNonAppLtypeWithApplicationList(t *testing.T) {
	pb := NewPrefBuilder(BuilderFlagNone)
	al, err := idlist.Parse([]byte("1 2 3"), idlist.ParseFlags{})
	tassert.CheckFatal(t, err)
	err = pb.AddList(LTypeBlockDest, 1, 0, ListRef{Type: ElementApplication, Application: al})
	tassert.Fatalf(t, err != nil, "expected a dest ltype wrapping an application list to be rejected")
}

func TestAddListRejectsNonzeroBitOnEmptyBitLtype(t *testing.T) {
	pb := NewPrefBuilder(BuilderFlagNone)
	dl, err := domainlist.Parse([]byte("example.com"), domainlist.ParseFlags{})
	tassert.CheckFatal(t, err)
	err = pb.AddList(LTypeExcept, 1, 3, ListRef{Type: ElementDomain, Domain: dl})
	tassert.Fatalf(t, err != nil, "expected a nonzero bit on an except list to be rejected")
}

func TestParseDedupesIdenticalListBodiesByPointer(t *testing.T) {
	block1, err := Parse("destprefs", []byte(sampleDestPrefs), BuilderFlagNone)
	tassert.CheckFatal(t, err)
	block2, err := Parse("destprefs", []byte(sampleDestPrefs), BuilderFlagNone)
	tassert.CheckFatal(t, err)

	tassert.Fatalf(t, block1.Lists[0].Data.Domain == block2.Lists[0].Data.Domain,
		"expected two parses of byte-identical list bodies to share one resident *domainlist.List")
}

func TestAttachmentToDiscardedListErrorsUnderStrict(t *testing.T) {
	pb := NewPrefBuilder(BuilderFlagStrict)
	pb.DiscardList(LTypeBlockDest, 1)
	tassert.CheckFatal(t, pb.AddBundle(0, 100, 10, 0, Categories{}, [4]uint32{}))
	err := pb.AttachList(0, 100, LTypeBlockDest, 1)
	tassert.Fatalf(t, err != nil, "expected an attachment to a discarded list to error under BuilderFlagStrict")
}

func TestExternalRefsForbiddenErrorsUnderStrict(t *testing.T) {
	pb := NewPrefBuilder(BuilderFlagNoExternalRefs | BuilderFlagStrict)
	tassert.CheckFatal(t, pb.AddBundle(0, 100, 10, 0, Categories{}, [4]uint32{}))
	err := pb.AttachList(0, 100, LTypeBlockDest, 999)
	tassert.Fatalf(t, err != nil, "expected an unresolved external reference to error under BuilderFlagStrict")
}

func TestCategoriesUsable(t *testing.T) {
	base := Categories{0b0001, 0, 0, 0}
	my := Categories{0b0111, 0, 0, 0}
	overridable := Categories{0b0110, 0, 0, 0}

	got := CategoriesUsable(base, my, overridable)
	want := Categories{0b0111, 0, 0, 0}
	tassert.Fatalf(t, got == want, "expected %v, got %v", want, got)
}
