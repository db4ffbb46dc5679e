package e2e_test

import (
	"net/netip"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/polistore/uup/categorization"
	"github.com/polistore/uup/confset"
	"github.com/polistore/uup/fileprefs"
	"github.com/polistore/uup/lists/cidrlist"
	"github.com/polistore/uup/lists/domainlist"
	"github.com/polistore/uup/lists/idlist"
	"github.com/polistore/uup/lists/urllist"
	"github.com/polistore/uup/pref"
)

var _ = Describe("domainlist subdomain reduction", func() {
	It("collapses nested subdomains and matches at the label boundary", func() {
		l, err := domainlist.Parse([]byte("amazon.com images-amazon.com images.amazon.com"), domainlist.ParseFlags{})
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Len()).To(Equal(2))

		pos, ok := l.Match([]byte("www.amazon.com"), domainlist.Subdomain)
		Expect(ok).To(BeTrue())
		Expect([]byte("www.amazon.com")[pos:]).To(Equal([]byte("amazon.com")))
	})
})

var _ = Describe("urllist progressive prefix matching", func() {
	It("matches a full normalized URL and a slash-boundary prefix, and misses a shorter unrelated path", func() {
		l, err := urllist.Parse([]byte("http://a.co/cx/15195/100/setup.exe?z=z&super=bad http://c.co/cx/15195/100/"), urllist.ParseFlags{})
		Expect(err).NotTo(HaveOccurred())

		n, ok := l.Match([]byte("a.co/cx/15195/100/setup.exe?super=bad&z=z"))
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(len("a.co/cx/15195/100/setup.exe?super=bad&z=z")))

		n, ok = l.Match([]byte("c.co/cx/15195/100/anything"))
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(len("c.co/cx/15195/100/")))

		_, ok = l.Match([]byte("c.co/cx/15195/10"))
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("cidrlist collision reduction", func() {
	It("drops contained ranges and renders the minimal covering set", func() {
		l, err := cidrlist.Parse([]byte("1.2.3.4/32 1.2.3.0/24 5.6.7.8/32 1:2:3:4::/64 1:2:3:4:5:6:7:8/128"), cidrlist.ParseFlags{How: cidrlist.HowBoth})
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Render()).To(Equal("1.2.3.0/24 5.6.7.8/32 [1:2:3:4::]/64"))

		prefixLen, ok := l.Search(netip.MustParseAddr("1.2.3.5"))
		Expect(ok).To(BeTrue())
		Expect(prefixLen).To(Equal(24))
	})
})

type orgSegment struct {
	orgID uint32
	mtime int64
	list  *domainlist.List
}

func (s orgSegment) OrgID() uint32    { return s.orgID }
func (s orgSegment) FailedLoad() bool { return false }
func (s orgSegment) MTime() int64     { return s.mtime }

var _ = Describe("segmented application confset reload", func() {
	It("leaves unrelated segments' list pointers untouched across a reload that only changes one org", func() {
		mustList := func(src string) *domainlist.List {
			l, err := domainlist.Parse([]byte(src), domainlist.ParseFlags{})
			Expect(err).NotTo(HaveOccurred())
			return l
		}

		gen1 := confset.Empty[orgSegment]()
		gen1.UseSegment(orgSegment{orgID: 1, mtime: 1, list: mustList("one.example")})
		gen1.UseSegment(orgSegment{orgID: 2, mtime: 1, list: mustList("two.example")})
		gen1.UseSegment(orgSegment{orgID: 3, mtime: 1, list: mustList("three.example")})

		pub := confset.NewPublished(gen1)
		before1, _ := pub.Load().Segment(1)
		before3, _ := pub.Load().Segment(3)

		gen2 := pub.Load().Clone()
		gen2.UseSegment(orgSegment{orgID: 2, mtime: 2, list: mustList("two-updated.example")})
		pub.Publish(gen2)

		after1, _ := pub.Load().Segment(1)
		after3, _ := pub.Load().Segment(3)
		Expect(after1.list).To(BeIdenticalTo(before1.list))
		Expect(after3.list).To(BeIdenticalTo(before3.list))

		after2, _ := pub.Load().Segment(2)
		Expect(after2.mtime).To(Equal(int64(2)))
	})
})

var _ = Describe("application list URL match resolves through the matching app", func() {
	It("reports the match length and sets the category bit for a URL matched by that app's list", func() {
		pb := fileprefs.NewPrefBuilder(fileprefs.BuilderFlagNone)

		appURLs, err := urllist.Parse([]byte("api.bobdata.com/bobpost"), urllist.ParseFlags{})
		Expect(err).NotTo(HaveOccurred())

		appIDs, err := idlist.Parse([]byte("4"), idlist.ParseFlags{})
		Expect(err).NotTo(HaveOccurred())
		Expect(pb.AddList(fileprefs.LTypeBlockApp, 1, 9, fileprefs.ListRef{Type: fileprefs.ElementApplication, Application: appIDs})).To(Succeed())
		Expect(pb.AddSettingGroup(0, 10, 0, fileprefs.Categories{}, fileprefs.Categories{}, fileprefs.Categories{})).To(Succeed())
		Expect(pb.AddBundle(0, 1, 1, 0, fileprefs.Categories{}, [4]uint32{10, 0, 0, 0})).To(Succeed())
		Expect(pb.AttachList(0, 1, fileprefs.LTypeBlockApp, 1)).To(Succeed())
		Expect(pb.AddOrg(1234, 0, fileprefs.Categories{}, 0, 0, 1234, 0)).To(Succeed())
		block := pb.Consume()

		apps := []categorization.AppEntry{{AppID: 4, CatBit: 9, URL: appURLs}}
		appSet, err := categorization.NewAppSet(apps)
		Expect(err).NotTo(HaveOccurred())

		idx, ok := block.BundleIndex(0, 1)
		Expect(ok).To(BeTrue())
		cur := pref.InitByBundle(block, nil, fileprefs.NewPrefBuilder(fileprefs.BuilderFlagNone).Consume(), 1234, idx)

		cats, matchLen, matched := cur.ApplicationListURLMatch(fileprefs.LTypeBlockApp, []byte("api.bobdata.com/bobpost"), appSet)
		Expect(matched).To(BeTrue())
		Expect(matchLen).To(Equal(len("api.bobdata.com/bobpost")))
		Expect(cats.Test(9)).To(BeTrue())
	})
})

var _ = Describe("categorization HALF_DOMAINTAGGING clears its mask from the result", func() {
	It("sets the domaintagging bit, clears the half-tag bit, and still sets the application bit", func() {
		dl, err := domainlist.Parse([]byte("name.com"), domainlist.ParseFlags{})
		Expect(err).NotTo(HaveOccurred())

		c := categorization.New([]categorization.Entry{
			{Name: "domaintagging", CatBit: 0, OrgFlagMask: fileprefs.OrgFlagHalfDomainTagging, Domain: dl},
			{Name: "domaintagging", CatBit: 1, OrgFlagMask: fileprefs.OrgFlagHalfDomainTagging, Domain: dl},
		})

		var halfMask fileprefs.Categories
		halfMask.Set(1)
		categorization.SetHalfDomainTaggingMask(halfMask)
		defer categorization.SetHalfDomainTaggingMask(fileprefs.Categories{})

		cats, matched := c.ByDomain([]byte("name.com"), 0, fileprefs.OrgFlagHalfDomainTagging)
		Expect(matched).To(BeTrue())
		Expect(cats.Test(0)).To(BeTrue())
		Expect(cats.Test(1)).To(BeFalse())

		apps := []categorization.AppEntry{{AppID: 1, CatBit: 148, Domain: dl}}
		appSet, err := categorization.NewAppSet(apps)
		Expect(err).NotTo(HaveOccurred())
		appCats, matched := categorization.MatchAppID(appSet, 1, []byte("name.com"))
		Expect(matched).To(BeTrue())
		Expect(appCats.Test(148)).To(BeTrue())
	})
})
