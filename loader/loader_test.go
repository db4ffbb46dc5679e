package loader

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/polistore/uup/confset"
	"github.com/polistore/uup/internal/tassert"
)

type testSegment struct {
	orgID  uint32
	body   string
	failed bool
	mtime  int64
}

func (s testSegment) OrgID() uint32    { return s.orgID }
func (s testSegment) FailedLoad() bool { return s.failed }
func (s testSegment) MTime() int64     { return s.mtime }

func build(orgID uint32, path string) (testSegment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return testSegment{}, err
	}
	if string(b) == "corrupt" {
		return testSegment{}, os.ErrInvalid
	}
	info, err := os.Stat(path)
	if err != nil {
		return testSegment{}, err
	}
	return testSegment{orgID: orgID, body: string(b), mtime: info.ModTime().UnixNano()}, nil
}

func fail(orgID uint32, mtime int64) testSegment {
	return testSegment{orgID: orgID, failed: true, mtime: mtime}
}

func writeOrgFile(t *testing.T, dir string, orgID uint32, body string) {
	t.Helper()
	tassert.CheckFatal(t, os.WriteFile(filepath.Join(dir, strconv.FormatUint(uint64(orgID), 10)), []byte(body), 0o644))
}

func TestReloadBuildsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	writeOrgFile(t, dir, 1, "alpha")
	writeOrgFile(t, dir, 2, "beta")

	l := New(dir, build, fail)
	tassert.CheckFatal(t, l.Reload(context.Background()))

	set := l.Current()
	tassert.Fatalf(t, set.Len() == 2, "expected 2 segments, got %d", set.Len())
	seg1, ok := set.Segment(1)
	tassert.Fatalf(t, ok && seg1.body == "alpha", "expected org 1's segment to carry its file contents")
}

func TestReloadCorruptOrgBecomesPlaceholder(t *testing.T) {
	dir := t.TempDir()
	writeOrgFile(t, dir, 1, "alpha")
	writeOrgFile(t, dir, 2, "corrupt")

	l := New(dir, build, fail)
	tassert.CheckFatal(t, l.Reload(context.Background()))

	set := l.Current()
	tassert.Fatalf(t, set.Len() == 2, "expected a corrupt org to still occupy a slot as a placeholder")
	seg2, ok := set.Segment(2)
	tassert.Fatalf(t, ok && seg2.FailedLoad(), "expected org 2 to be a failed-load placeholder")
	seg1, ok := set.Segment(1)
	tassert.Fatalf(t, ok && !seg1.FailedLoad() && seg1.body == "alpha", "expected org 1 to build normally despite org 2's failure")
}

func TestReloadRemovesDisappearedOrg(t *testing.T) {
	dir := t.TempDir()
	writeOrgFile(t, dir, 1, "alpha")
	writeOrgFile(t, dir, 2, "beta")

	l := New(dir, build, fail)
	tassert.CheckFatal(t, l.Reload(context.Background()))
	tassert.Fatalf(t, l.Current().Len() == 2, "expected 2 segments before removal")

	tassert.CheckFatal(t, os.Remove(filepath.Join(dir, "2")))
	tassert.CheckFatal(t, l.Reload(context.Background()))

	set := l.Current()
	tassert.Fatalf(t, set.Len() == 1, "expected org 2's segment to be freed after its file disappeared")
	if _, ok := set.Segment(2); ok {
		t.Fatalf("expected org 2 to no longer resolve")
	}
}

func TestReloadFiresOnLoaded(t *testing.T) {
	dir := t.TempDir()
	writeOrgFile(t, dir, 1, "alpha")

	fired := false
	l := New(dir, build, fail)
	l.OnLoaded = func(s *confset.Set[testSegment]) { fired = true }
	tassert.CheckFatal(t, l.Reload(context.Background()))
	tassert.Fatalf(t, fired, "expected OnLoaded to fire after a successful reload")
}
