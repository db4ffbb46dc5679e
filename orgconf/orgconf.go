// Package orgconf supplies the concrete, per-module confset.Segment
// implementations spec.md §3 names but never instantiates on their own:
// PrefSegment backs the policy_org / lists_org / prefs_org segmented
// modules (each just a compiled fileprefs.PrefBlock, distinguished only by
// the on-disk header string fileprefs.Parse expects and by the
// BuilderFlags the loader builds with), and ApplicationSegment backs
// application_lists, feeding loader.Loader's OnLoaded hook to keep a
// process-wide categorization.AppSet super-index current after every
// reload.
//
// Grounded on original_source/libuup/lib-uup/conf-segment.c's per-module
// confset headers (application-confset.h, destprefs-confset.h, ...), which
// all reduce to "one struct wrapping a compiled block plus the OrgID/mtime/
// failed_load triple conf-segment.c itself manages".
package orgconf

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/polistore/uup/categorization"
	"github.com/polistore/uup/confset"
	"github.com/polistore/uup/fileprefs"
	"github.com/polistore/uup/internal/cfg"
	"github.com/polistore/uup/internal/log"
	"github.com/polistore/uup/lists/domainlist"
	"github.com/polistore/uup/lists/urllist"
	"github.com/polistore/uup/loader"
)

// PrefSegment is the concrete confset.Segment for the policy_org, lists_org
// and prefs_org modules: one org's compiled fileprefs.PrefBlock.
type PrefSegment struct {
	orgID      uint32
	mtime      int64
	failedLoad bool

	Block *fileprefs.PrefBlock
}

func (s PrefSegment) OrgID() uint32    { return s.orgID }
func (s PrefSegment) FailedLoad() bool { return s.failedLoad }
func (s PrefSegment) MTime() int64     { return s.mtime }

// NewPrefLoader builds a loader.Loader for a PrefBlock-backed segmented
// module rooted at root. header is the "<type> <version>" string every
// file under root must open with (e.g. "destprefs", "listsprefs",
// "appprefs" for policy_org/lists_org/prefs_org respectively); flags are
// ORed with BuilderFlagStrict when c.Lookup.Strict is set, and the file
// read itself transparently gunzips when c.Compression.GzipTransparent is
// set and the file's content is gzip-magic-prefixed.
func NewPrefLoader(root, header string, flags fileprefs.BuilderFlags, c cfg.Config) *loader.Loader[PrefSegment] {
	if c.Lookup.Strict {
		flags |= fileprefs.BuilderFlagStrict
	}
	build := func(orgID uint32, path string) (PrefSegment, error) {
		data, mtime, err := readFile(path, c.Compression.GzipTransparent)
		if err != nil {
			return PrefSegment{}, err
		}
		block, err := fileprefs.Parse(header, data, flags)
		if err != nil {
			return PrefSegment{}, errors.Wrapf(err, "orgconf: org %d", orgID)
		}
		return PrefSegment{orgID: orgID, mtime: mtime, Block: block}, nil
	}
	fail := func(orgID uint32, mtime int64) PrefSegment {
		return PrefSegment{orgID: orgID, mtime: mtime, failedLoad: true}
	}
	return loader.New(root, build, fail)
}

// ApplicationSegment is the concrete confset.Segment for application_lists:
// one org's compiled application categorization entries.
type ApplicationSegment struct {
	orgID      uint32
	mtime      int64
	failedLoad bool

	Apps []categorization.AppEntry
}

func (s ApplicationSegment) OrgID() uint32    { return s.orgID }
func (s ApplicationSegment) FailedLoad() bool { return s.failedLoad }
func (s ApplicationSegment) MTime() int64     { return s.mtime }

// AppSetView is the process-wide application super-index: the value an
// application_lists loader's OnLoaded hook keeps current, merging every
// live (non-failed) org segment's apps into one categorization.AppSet so a
// name-in-any-application query stays the single bsearch spec.md promises
// instead of a walk over every org.
type AppSetView struct {
	ptr atomic.Pointer[categorization.AppSet]
}

// Load returns the currently published super-index, or nil before the
// first successful reload.
func (v *AppSetView) Load() *categorization.AppSet { return v.ptr.Load() }

func (v *AppSetView) rebuild(set *confset.Set[ApplicationSegment]) {
	var merged []categorization.AppEntry
	set.Each(func(seg ApplicationSegment) {
		if seg.FailedLoad() {
			return
		}
		merged = append(merged, seg.Apps...)
	})
	sort.Slice(merged, func(i, j int) bool { return merged[i].AppID < merged[j].AppID })

	as, err := categorization.NewAppSet(merged)
	if err != nil {
		log.Warningf("orgconf: failed to rebuild application super-index: %v", err)
		return
	}
	v.ptr.Store(as)
}

// NewApplicationLoader builds a loader.Loader for the application_lists
// module rooted at root, wiring its OnLoaded hook to keep view current
// after every reload settles.
func NewApplicationLoader(root string, c cfg.Config, view *AppSetView) *loader.Loader[ApplicationSegment] {
	build := func(orgID uint32, path string) (ApplicationSegment, error) {
		data, mtime, err := readFile(path, c.Compression.GzipTransparent)
		if err != nil {
			return ApplicationSegment{}, err
		}
		apps, err := parseApplicationFile(data)
		if err != nil {
			return ApplicationSegment{}, errors.Wrapf(err, "orgconf: org %d", orgID)
		}
		return ApplicationSegment{orgID: orgID, mtime: mtime, Apps: apps}, nil
	}
	fail := func(orgID uint32, mtime int64) ApplicationSegment {
		return ApplicationSegment{orgID: orgID, mtime: mtime, failedLoad: true}
	}
	l := loader.New(root, build, fail)
	l.OnLoaded = view.rebuild
	return l
}

// readFile reads path's contents, transparently gunzipping when
// gzipTransparent is set and the leading two bytes are the gzip magic -
// the §6 "gzip-transparent list files" contract. mtime is re-stat'd here
// rather than threaded through from the loader's own directory walk,
// matching the teacher-style BuildFunc convention already used by
// loader_test.go's own build function.
func readFile(path string, gzipTransparent bool) ([]byte, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if !gzipTransparent || len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, info.ModTime().UnixNano(), nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, errors.Wrap(err, "orgconf: gzip-magic file failed to open as gzip")
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, 0, errors.Wrap(err, "orgconf: gzip decompression failed")
	}
	return data, info.ModTime().UnixNano(), nil
}

// parseApplicationFile reads the application_lists on-disk grammar: an
// "applist <version>" header, a "count <n>" line, then <n> colon-delimited
// "appid:catbit:domainbody:urlbody:proxydomainbody" lines - the same
// section-and-count shape fileprefs.Parse uses, scoped down to the one
// record kind this module needs.
func parseApplicationFile(data []byte) ([]categorization.AppEntry, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line, ok := nextAppLine(sc)
	if !ok {
		return nil, errors.New("orgconf: empty application file")
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "applist" {
		return nil, errors.Errorf("orgconf: expected header \"applist <version>\", got %q", line)
	}

	line, ok = nextAppLine(sc)
	if !ok || !strings.HasPrefix(line, "count ") {
		return nil, errors.New("orgconf: missing count line")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, "count "))
	if err != nil {
		return nil, errors.Wrap(err, "orgconf: invalid count line")
	}

	apps := make([]categorization.AppEntry, 0, n)
	for i := 0; i < n; i++ {
		line, ok = nextAppLine(sc)
		if !ok {
			return nil, errors.New("orgconf: unexpected EOF in application section")
		}
		entry, err := parseAppLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "orgconf: line %d", i+1)
		}
		apps = append(apps, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "orgconf: scan error")
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].AppID < apps[j].AppID })
	return apps, nil
}

func nextAppLine(sc *bufio.Scanner) (string, bool) {
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, true
	}
	return "", false
}

func parseAppLine(line string) (categorization.AppEntry, error) {
	parts := strings.SplitN(line, ":", 5)
	if len(parts) != 5 {
		return categorization.AppEntry{}, errors.New("malformed application line")
	}
	appID, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return categorization.AppEntry{}, errors.Wrap(err, "invalid appid")
	}
	catBit, err := strconv.Atoi(parts[1])
	if err != nil {
		return categorization.AppEntry{}, errors.Wrap(err, "invalid catbit")
	}

	e := categorization.AppEntry{AppID: uint32(appID), CatBit: catBit}
	if parts[2] != "" {
		l, err := domainlist.Parse([]byte(parts[2]), domainlist.ParseFlags{AllowEmpty: true})
		if err != nil {
			return categorization.AppEntry{}, errors.Wrap(err, "parsing domain list")
		}
		e.Domain = fileprefs.DedupeDomain(l)
	}
	if parts[3] != "" {
		l, err := urllist.Parse([]byte(parts[3]), urllist.ParseFlags{})
		if err != nil {
			return categorization.AppEntry{}, errors.Wrap(err, "parsing url list")
		}
		e.URL = fileprefs.DedupeURL(l)
	}
	if parts[4] != "" {
		l, err := domainlist.Parse([]byte(parts[4]), domainlist.ParseFlags{AllowEmpty: true})
		if err != nil {
			return categorization.AppEntry{}, errors.Wrap(err, "parsing proxy-domain list")
		}
		e.ProxyDomain = fileprefs.DedupeDomain(l)
	}
	return e, nil
}
