// Package distinfo locates and parses the *.dist-info/ directory embedded
// in a wheel archive: WHEEL, METADATA, RECORD, entry_points.txt and
// top_level.txt.
package distinfo

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"strconv"
	"strings"

	goversion "github.com/aquasecurity/go-version/pkg/version"

	"github.com/wheelport/wheelport/internal/wheelname"
)

// ErrInvalidWheel is returned for any structural problem with a wheel's
// dist-info directory or its contents.
var ErrInvalidWheel = errors.New("invalid wheel")

// maxSupportedWheelVersionMajor is the highest Wheel-Version major version
// this reader accepts; per spec.md section 4.2, a greater major version is
// fatal. A greater minor version is accepted without a warning.
const maxSupportedWheelVersionMajor = 1

// WheelMetadata holds the parsed contents of dist-info/WHEEL.
type WheelMetadata struct {
	WheelVersion  string
	RootIsPurelib bool
	Tags          []string
	BuildTag      string
	Generator     string
}

// PackageMetadata holds the fields of dist-info/METADATA this engine cares
// about; it does not attempt a full PEP 345/566 parse.
type PackageMetadata struct {
	Name             string
	Version          string
	RequiresPython   string
	Dependencies     []string
	Extras           []string
}

// EntryPoint is a single "name = module:object [extras]" line from one
// entry_points.txt group.
type EntryPoint struct {
	Group  string
	Name   string
	Module string
	Object string
	Extras []string
}

// DistInfo is everything read out of one wheel's dist-info directory.
type DistInfo struct {
	Dir          string // archive-relative directory name, e.g. "tqdm-4.62.3.dist-info"
	Wheel        WheelMetadata
	Package      PackageMetadata
	Record       []RawRecordLine
	EntryPoints  []EntryPoint
	TopLevel     []string
}

// RawRecordLine is one row of the archive's own RECORD file, before
// verification. Hash and Size are empty when the archive's RECORD omits
// them (legal only for RECORD itself, INSTALLER and RECORD's signatures).
type RawRecordLine struct {
	Path string
	Hash string // "sha256=<b64urlnopad>" or empty
	Size string // decimal or empty
}

// Read locates the single *.dist-info/ directory inside zr matching
// normalizedName-version, and parses WHEEL, METADATA, RECORD,
// entry_points.txt (optional) and top_level.txt (optional).
func Read(zr *zip.Reader, normalizedName, version string) (*DistInfo, error) {
	dir, err := findDistInfoDir(zr, normalizedName, version)
	if err != nil {
		return nil, err
	}

	di := &DistInfo{Dir: dir}

	wheelHeader, err := readMIMEHeader(zr, path.Join(dir, "WHEEL"))
	if err != nil {
		return nil, fmt.Errorf("%w: reading WHEEL: %w", ErrInvalidWheel, err)
	}

	di.Wheel, err = parseWheelHeader(wheelHeader)
	if err != nil {
		return nil, err
	}

	metaHeader, err := readMIMEHeader(zr, path.Join(dir, "METADATA"))
	if err != nil {
		return nil, fmt.Errorf("%w: reading METADATA: %w", ErrInvalidWheel, err)
	}

	di.Package = parseMetadataHeader(metaHeader)

	di.Record, err = readRecord(zr, path.Join(dir, "RECORD"))
	if err != nil {
		return nil, err
	}

	di.EntryPoints, err = readEntryPoints(zr, path.Join(dir, "entry_points.txt"))
	if err != nil {
		return nil, err
	}

	di.TopLevel = readTopLevel(zr, path.Join(dir, "top_level.txt"))

	return di, nil
}

// findDistInfoDir locates the directory matching
// ^normalizedName-version\.dist-info/$ case-sensitively. Zero or more than
// one match is fatal (spec.md section 4.2).
func findDistInfoDir(zr *zip.Reader, normalizedName, version string) (string, error) {
	want := normalizedName + "-" + version + ".dist-info"

	found := map[string]struct{}{}

	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, "/")

		top, _, ok := strings.Cut(name, "/")
		if !ok {
			top = name
		}

		if top == want {
			found[top] = struct{}{}
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no %s directory found", ErrInvalidWheel, want)
	case 1:
		for dir := range found {
			return dir, nil
		}
	}

	return "", fmt.Errorf("%w: multiple dist-info directories found", ErrInvalidWheel)
}

// open returns a reader for a single archive member, or an error wrapping
// ErrInvalidWheel if it does not exist.
func open(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if path.Clean(f.Name) == path.Clean(name) {
			return f.Open()
		}
	}

	return nil, fmt.Errorf("%w: member %q not found", ErrInvalidWheel, name)
}

func readMIMEHeader(zr *zip.Reader, name string) (textproto.MIMEHeader, error) {
	rc, err := open(zr, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	r := textproto.NewReader(bufio.NewReader(rc))

	h, err := r.ReadMIMEHeader()
	if errors.Is(err, io.EOF) {
		// A file that ends right after its last header line, with no blank
		// line, is complete.
		err = nil
	}

	return h, err
}

func parseWheelHeader(h textproto.MIMEHeader) (WheelMetadata, error) {
	wm := WheelMetadata{
		WheelVersion:  h.Get("Wheel-Version"),
		RootIsPurelib: strings.EqualFold(h.Get("Root-Is-Purelib"), "true"),
		Tags:          h.Values("Tag"),
		BuildTag:      h.Get("Build"),
		Generator:     h.Get("Generator"),
	}

	if wm.WheelVersion != "" {
		if err := checkWheelVersion(wm.WheelVersion); err != nil {
			return WheelMetadata{}, err
		}
	}

	return wm, nil
}

// checkWheelVersion enforces spec.md section 4.2: "Wheel-Version MAJOR must
// be <= 1". A newer minor version returns nil like any supported version;
// neither this reader nor the installer logs a warning for it.
func checkWheelVersion(v string) error {
	got, err := goversion.Parse(v)
	if err != nil {
		// Not a parseable X.Y version; fall back to a bare major-digit check
		// so we don't reject wheels over a cosmetic formatting difference.
		major := v
		if i := strings.IndexByte(v, '.'); i >= 0 {
			major = v[:i]
		}

		n, convErr := strconv.Atoi(major)
		if convErr != nil {
			return fmt.Errorf("%w: unparseable Wheel-Version %q", ErrInvalidWheel, v)
		}

		if n > maxSupportedWheelVersionMajor {
			return fmt.Errorf("%w: Wheel-Version %q is newer than supported major version %d",
				ErrInvalidWheel, v, maxSupportedWheelVersionMajor)
		}

		return nil
	}

	limit, _ := goversion.Parse(strconv.Itoa(maxSupportedWheelVersionMajor) + ".999999")
	if got.Compare(limit) > 0 {
		majorLimit, _ := goversion.Parse(strconv.Itoa(maxSupportedWheelVersionMajor + 1) + ".0")
		if got.Compare(majorLimit) >= 0 {
			return fmt.Errorf("%w: Wheel-Version %q has a greater major version than supported (%d)",
				ErrInvalidWheel, v, maxSupportedWheelVersionMajor)
		}
	}

	return nil
}

func parseMetadataHeader(h textproto.MIMEHeader) PackageMetadata {
	return PackageMetadata{
		Name:           wheelname.NormalizeName(h.Get("Name")),
		Version:        h.Get("Version"),
		RequiresPython: h.Get("Requires-Python"),
		Dependencies:   h.Values("Requires-Dist"),
		Extras:         h.Values("Provides-Extra"),
	}
}

func readRecord(zr *zip.Reader, name string) ([]RawRecordLine, error) {
	rc, err := open(zr, name)
	if err != nil {
		return nil, fmt.Errorf("%w: reading RECORD: %w", ErrInvalidWheel, err)
	}
	defer func() { _ = rc.Close() }()

	lines, err := parseRecordCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed RECORD: %w", ErrInvalidWheel, err)
	}

	return lines, nil
}

func readEntryPoints(zr *zip.Reader, name string) ([]EntryPoint, error) {
	rc, err := open(zr, name)
	if err != nil {
		return nil, nil //nolint:nilerr // entry_points.txt is optional
	}
	defer func() { _ = rc.Close() }()

	return parseEntryPointsINI(rc)
}

func readTopLevel(zr *zip.Reader, name string) []string {
	rc, err := open(zr, name)
	if err != nil {
		return nil
	}
	defer func() { _ = rc.Close() }()

	var names []string

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			names = append(names, line)
		}
	}

	return names
}
