package fileprefs

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/polistore/uup/internal/cfg"
	"github.com/polistore/uup/lists/cidrlist"
	"github.com/polistore/uup/lists/domainlist"
	"github.com/polistore/uup/lists/idlist"
	"github.com/polistore/uup/lists/urllist"
	"github.com/polistore/uup/objhash"
)

// Per-element-type de-dup tables, one shared process-wide instance per
// primitive list kind, mirroring fileprefs.c's applicationlisthash /
// cidrlisthash / domainlisthash / urllisthash globals: every list parsed
// from any org's file is interned through the table for its element type,
// so two orgs (or two reloads of the same org) whose list bodies are
// byte-identical end up sharing one resident *List by pointer.
const (
	applicationHashMagic uint32 = 'a'<<24 | 'p'<<16 | 'p'<<8 | 'l'
	cidrHashMagic        uint32 = 'c'<<24 | 'i'<<16 | 'd'<<8 | 'r'
	domainHashMagic      uint32 = 'd'<<24 | 'o'<<16 | 'm'<<8 | 'n'
	urlHashMagic         uint32 = 'u'<<24 | 'r'<<16 | 'l'<<8 | ' '
)

var (
	applicationHash = objhash.NewFromConfig[idlist.List](cfg.Default().ObjHash, applicationHashMagic)
	cidrHash        = objhash.NewFromConfig[cidrlist.List](cfg.Default().ObjHash, cidrHashMagic)
	domainHash      = objhash.NewFromConfig[domainlist.List](cfg.Default().ObjHash, domainHashMagic)
	urlHash         = objhash.NewFromConfig[urllist.List](cfg.Default().ObjHash, urlHashMagic)
)

// DedupeApplication, DedupeCIDR, DedupeDomain and DedupeURL intern a
// freshly-parsed list through this package's shared tables, for callers
// outside fileprefs (e.g. orgconf's application-file parser) that build
// the same primitive list kinds readList does and want the same
// cross-org de-duplication.
func DedupeApplication(l *idlist.List) *idlist.List {
	return objhash.FindOrAdd(applicationHash, l, l.Fingerprint())
}

func DedupeCIDR(l *cidrlist.List) *cidrlist.List {
	return objhash.FindOrAdd(cidrHash, l, l.Fingerprint())
}

func DedupeDomain(l *domainlist.List) *domainlist.List {
	return objhash.FindOrAdd(domainHash, l, l.Fingerprint())
}

func DedupeURL(l *urllist.List) *urllist.List {
	return objhash.FindOrAdd(urlHash, l, l.Fingerprint())
}

// Parse reads a whitespace-delimited policy file into a PrefBlock.
//
// The on-disk grammar is a simplified, self-contained restatement of
// fileprefs.c's section format: a "<type> <version>" header line, a
// "count <n>" line, then one or more "[section:count]" blocks (lists,
// settinggroup, bundles, orgs, identities) each holding exactly <count>
// colon-delimited data lines. Blank lines and lines starting with '#' are
// ignored between sections.
func Parse(typ string, src []byte, flags BuilderFlags) (*PrefBlock, error) {
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line, ok := nextLine(sc)
	if !ok {
		return nil, errors.New("fileprefs: empty file")
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != typ {
		return nil, errors.Errorf("fileprefs: expected header %q, got %q", typ, line)
	}

	line, ok = nextLine(sc)
	if !ok || !strings.HasPrefix(line, "count ") {
		return nil, errors.New("fileprefs: missing count line")
	}
	total, err := strconv.Atoi(strings.TrimPrefix(line, "count "))
	if err != nil {
		return nil, errors.Wrap(err, "fileprefs: invalid count line")
	}

	pb := NewPrefBuilder(flags)
	loaded := 0

	for {
		line, ok = nextLine(sc)
		if !ok {
			break
		}
		name, count, err := parseSectionHeader(line)
		if err != nil {
			return nil, err
		}
		for i := 0; i < count; i++ {
			dl, ok := nextLine(sc)
			if !ok {
				return nil, errors.Errorf("fileprefs: unexpected EOF in [%s] section", name)
			}
			if err := readSectionLine(pb, name, dl); err != nil {
				return nil, errors.Wrapf(err, "fileprefs: [%s] line %d", name, i+1)
			}
		}
		loaded += count
	}

	if loaded != total {
		return nil, errors.Errorf("fileprefs: header promised %d records, read %d", total, loaded)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "fileprefs: scan error")
	}
	return pb.Consume(), nil
}

func nextLine(sc *bufio.Scanner) (string, bool) {
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, true
	}
	return "", false
}

func parseSectionHeader(line string) (string, int, error) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", 0, errors.Errorf("fileprefs: expected section header, got %q", line)
	}
	body := line[1 : len(line)-1]
	parts := strings.SplitN(body, ":", 2)
	if len(parts) != 2 {
		return "", 0, errors.Errorf("fileprefs: malformed section header %q", line)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, errors.Wrapf(err, "fileprefs: malformed section count %q", line)
	}
	return parts[0], n, nil
}

func readSectionLine(pb *PrefBuilder, section, line string) error {
	switch section {
	case "lists":
		return readList(pb, line)
	case "settinggroup":
		return readSettingGroup(pb, line)
	case "bundles":
		return readBundle(pb, line)
	case "orgs":
		return readOrg(pb, line)
	case "identities":
		return readIdentity(pb, line)
	default:
		return errors.Errorf("unrecognised section %q", section)
	}
}

func elementTypeFromString(s string) (ElementType, bool) {
	switch s {
	case "application":
		return ElementApplication, true
	case "cidr":
		return ElementCIDR, true
	case "domain":
		return ElementDomain, true
	case "url":
		return ElementURL, true
	default:
		return 0, false
	}
}

// readList parses "ltype:id:elementtype:bit:fingerprint:data...". The
// fingerprint field is skipped; lists are fingerprinted from their body.
func readList(pb *PrefBuilder, line string) error {
	parts := strings.SplitN(line, ":", 6)
	if len(parts) != 6 {
		return errors.New("malformed list line")
	}
	lt, err := parseUint(parts[0])
	if err != nil {
		return err
	}
	id, err := parseUint(parts[1])
	if err != nil {
		return err
	}
	et, ok := elementTypeFromString(parts[2])
	if !ok {
		return errors.Errorf("unrecognised elementtype %q", parts[2])
	}
	bit, err := strconv.Atoi(parts[3])
	if err != nil {
		return errors.Wrap(err, "invalid bit")
	}
	data := []byte(parts[5])

	var ref ListRef
	ref.Type = et
	switch et {
	case ElementApplication:
		l, err := idlist.Parse(data, idlist.ParseFlags{AllowEmpty: true})
		if err != nil {
			return errors.Wrap(err, "parsing application (uint32) list")
		}
		ref.Application = DedupeApplication(l)
	case ElementCIDR:
		l, err := cidrlist.Parse(data, cidrlist.ParseFlags{How: cidrlist.HowBoth})
		if err != nil {
			return errors.Wrap(err, "parsing cidrlist")
		}
		ref.CIDR = DedupeCIDR(l)
	case ElementDomain:
		l, err := domainlist.Parse(data, domainlist.ParseFlags{AllowEmpty: true, IgnoreJunk: true, Exact: LType(lt) == LTypeURLProxyHTTPS})
		if err != nil {
			return errors.Wrap(err, "parsing domainlist")
		}
		ref.Domain = DedupeDomain(l)
	case ElementURL:
		l, err := urllist.Parse(data, urllist.ParseFlags{})
		if err != nil {
			return errors.Wrap(err, "parsing urllist")
		}
		ref.URL = DedupeURL(l)
	}

	return pb.AddList(LType(lt), uint32(id), bit, ref)
}

func readSettingGroup(pb *PrefBuilder, line string) error {
	parts := strings.SplitN(line, ":", 6)
	if len(parts) != 6 {
		return errors.New("malformed settinggroup line")
	}
	idx, err := parseUint(parts[0])
	if err != nil {
		return err
	}
	id, err := parseUint(parts[1])
	if err != nil {
		return err
	}
	flags, err := parseHexUint(parts[2])
	if err != nil {
		return err
	}
	blocked, err := parseCategories(parts[3])
	if err != nil {
		return err
	}
	nodecrypt, err := parseCategories(parts[4])
	if err != nil {
		return err
	}
	warn, err := parseCategories(parts[5])
	if err != nil {
		return err
	}
	return pb.AddSettingGroup(uint32(idx), uint32(id), BundleFlags(flags), blocked, nodecrypt, warn)
}

// readBundle parses "actype:id:priority:flags:categories:sg0,sg1,sg2,sg3:ltype=id ltype=id ...".
func readBundle(pb *PrefBuilder, line string) error {
	parts := strings.SplitN(line, ":", 7)
	if len(parts) < 6 {
		return errors.New("malformed bundle line")
	}
	at, err := parseUint(parts[0])
	if err != nil {
		return err
	}
	id, err := parseUint(parts[1])
	if err != nil {
		return err
	}
	priority, err := parseUint(parts[2])
	if err != nil {
		return err
	}
	flags, err := parseHexUint(parts[3])
	if err != nil {
		return err
	}
	cats, err := parseCategories(parts[4])
	if err != nil {
		return err
	}
	var sgids [4]uint32
	sgparts := strings.Split(parts[5], ",")
	for i := 0; i < len(sgparts) && i < 4; i++ {
		v, err := parseUint(sgparts[i])
		if err != nil {
			return errors.Wrap(err, "invalid settinggroup id")
		}
		sgids[i] = uint32(v)
	}

	if err := pb.AddBundle(ActType(at), uint32(id), uint32(priority), BundleFlags(flags), cats, sgids); err != nil {
		return err
	}

	if len(parts) == 7 && strings.TrimSpace(parts[6]) != "" {
		for _, tok := range strings.Fields(parts[6]) {
			kv := strings.SplitN(tok, "=", 2)
			if len(kv) != 2 {
				return errors.Errorf("malformed attachment token %q", tok)
			}
			lt, err := parseUint(kv[0])
			if err != nil {
				return err
			}
			listID, err := parseUint(kv[1])
			if err != nil {
				return err
			}
			if err := pb.AttachList(ActType(at), uint32(id), LType(lt), uint32(listID)); err != nil {
				return err
			}
		}
	}
	return nil
}

func readOrg(pb *PrefBuilder, line string) error {
	parts := strings.SplitN(line, ":", 7)
	if len(parts) != 7 {
		return errors.New("malformed org line")
	}
	id, err := parseUint(parts[0])
	if err != nil {
		return err
	}
	flags, err := parseHexUint(parts[1])
	if err != nil {
		return err
	}
	unmasked, err := parseCategories(parts[2])
	if err != nil {
		return err
	}
	retention, err := parseUint(parts[3])
	if err != nil {
		return err
	}
	warnPeriod, err := parseUint(parts[4])
	if err != nil {
		return err
	}
	originID, err := parseUint(parts[5])
	if err != nil {
		return err
	}
	parentID, err := parseUint(parts[6])
	if err != nil {
		return err
	}
	return pb.AddOrg(uint32(id), OrgFlags(flags), unmasked, uint32(retention), uint32(warnPeriod), uint32(originID), uint32(parentID))
}

func readIdentity(pb *PrefBuilder, line string) error {
	parts := strings.SplitN(line, ":", 6)
	if len(parts) != 6 {
		return errors.New("malformed identity line")
	}
	originID, err := parseUint(parts[1])
	if err != nil {
		return err
	}
	originTypeID, err := parseUint(parts[2])
	if err != nil {
		return err
	}
	orgID, err := parseUint(parts[3])
	if err != nil {
		return err
	}
	at, err := parseUint(parts[4])
	if err != nil {
		return err
	}
	bundleID, err := parseUint(parts[5])
	if err != nil {
		return err
	}
	return pb.AddIdentity(uint32(originID), uint32(originTypeID), uint32(orgID), ActType(at), uint32(bundleID), []byte(parts[0]))
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer %q", s)
	}
	return v, nil
}

func parseHexUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid hex value %q", s)
	}
	return v, nil
}

// parseCategories reads 4 comma-separated hex words, e.g. "1,0,0,0".
func parseCategories(s string) (Categories, error) {
	var c Categories
	words := strings.Split(s, ",")
	if len(words) != categoryWords {
		return c, fmt.Errorf("expected %d category words, got %d in %q", categoryWords, len(words), s)
	}
	for i, w := range words {
		v, err := strconv.ParseUint(w, 16, 64)
		if err != nil {
			return c, errors.Wrapf(err, "invalid category word %q", w)
		}
		c[i] = v
	}
	return c, nil
}
