// Package wheelname parses wheel filenames and checks their compatibility
// tags against a target environment.
package wheelname

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// ErrInvalidWheelName is returned when a filename does not match the wheel
// naming grammar.
var ErrInvalidWheelName = errors.New("invalid wheel filename")

// ErrIncompatibleTags is returned when none of a wheel's tags are accepted
// by the target environment.
var ErrIncompatibleTags = errors.New("incompatible wheel tags")

// filenameRe implements the grammar from spec.md section 4.1:
//
//	{name}-{version}(-{build})?-{python}-{abi}-{platform}.whl
var filenameRe = regexp.MustCompile(
	`^(?P<name>[^-]+)-(?P<ver>[^-]+)(-(?P<build>\d[^-]*))?-(?P<py>[^-]+)-(?P<abi>[^-]+)-(?P<plat>[^-]+)\.whl$`,
)

// BuildTag is the optional build-number component of a wheel filename.
type BuildTag struct {
	Num int    // leading digits, as a tie-breaker
	Tag string // remainder of the build tag, may be empty
}

// String renders the build tag back into its filename form.
func (b BuildTag) String() string {
	if b.Tag == "" {
		return strconv.Itoa(b.Num)
	}

	return strconv.Itoa(b.Num) + b.Tag
}

// Filename is the parsed form of a wheel's base filename.
type Filename struct {
	Distribution string // normalized: lowercase, runs of [-_.]+ collapsed to "-"
	Version      string
	Build        *BuildTag
	PyTags       []string // dot-split, e.g. ["py2", "py3"]
	ABITags      []string
	PlatTags     []string

	raw string // original filename, for error messages and round-tripping
}

// Parse splits a wheel's base filename (e.g. "tqdm-4.62.3-py2.py3-none-any.whl")
// into its components, normalizing the distribution name.
func Parse(filename string) (Filename, error) {
	m := filenameRe.FindStringSubmatch(filename)
	if m == nil {
		return Filename{}, fmt.Errorf("%w: %q", ErrInvalidWheelName, filename)
	}

	groups := make(map[string]string, len(m))
	for i, name := range filenameRe.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}

	fn := Filename{
		Distribution: NormalizeDistribution(groups["name"]),
		Version:      groups["ver"],
		PyTags:       strings.Split(groups["py"], "."),
		ABITags:      strings.Split(groups["abi"], "."),
		PlatTags:     strings.Split(groups["plat"], "."),
		raw:          filename,
	}

	if groups["build"] != "" {
		b, err := parseBuildTag(groups["build"])
		if err != nil {
			return Filename{}, fmt.Errorf("%w: %q: %w", ErrInvalidWheelName, filename, err)
		}

		fn.Build = &b
	}

	return fn, nil
}

// parseBuildTag splits a build tag into its leading digit run and remainder,
// per spec.md: "begins with a digit".
func parseBuildTag(s string) (BuildTag, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}

	if i == 0 {
		return BuildTag{}, fmt.Errorf("build tag %q does not start with a digit", s)
	}

	num, err := strconv.Atoi(s[:i])
	if err != nil {
		return BuildTag{}, fmt.Errorf("build tag %q: %w", s, err)
	}

	return BuildTag{Num: num, Tag: s[i:]}, nil
}

// NormalizeDistribution lowercases a distribution name and collapses runs of
// "-", "_", "." into a single "-", the PEP 427 filename-escaping rule.
func NormalizeDistribution(name string) string {
	return normalize(name, '-')
}

// NormalizeName normalizes a Python package name per PEP 503: lowercase,
// runs of "-_." collapsed to a single "-". distinfo applies it to METADATA's
// Name field; the result is not compared against the filename's
// distribution.
func NormalizeName(name string) string {
	return normalize(name, '-')
}

func normalize(name string, sep byte) string {
	name = strings.ToLower(name)

	var b strings.Builder

	prevSep := false

	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '-', '_', '.':
			if !prevSep {
				b.WriteByte(sep)
				prevSep = true
			}
		default:
			b.WriteByte(name[i])
			prevSep = false
		}
	}

	return b.String()
}

// ValidateVersion reports whether Version is a syntactically valid PEP 440
// version. It does not affect Parse's success: spec.md only requires
// filename components to be non-empty, not PEP 440-conformant. Callers that
// need strict validation (e.g. cross-checking against METADATA) call this
// explicitly.
func (f Filename) ValidateVersion() error {
	_, err := pep440.Parse(f.Version)
	if err != nil {
		return fmt.Errorf("version %q: %w", f.Version, err)
	}

	return nil
}

// CompatTags is the set of python/abi/platform tags an environment accepts.
// Each field holds the acceptable values for that tag position; a wheel is
// compatible if it has at least one tag in common for every position.
type CompatTags struct {
	Python   []string
	ABI      []string
	Platform []string
}

// CheckCompatible verifies the wheel's tag triple shares at least one value
// with env in each of the three positions (spec.md section 4.1).
func (f Filename) CheckCompatible(env CompatTags) error {
	if !anyIntersect(f.PyTags, env.Python) ||
		!anyIntersect(f.ABITags, env.ABI) ||
		!anyIntersect(f.PlatTags, env.Platform) {
		return fmt.Errorf("%w: %s has tags %s-%s-%s, environment accepts py=%v abi=%v plat=%v",
			ErrIncompatibleTags, f.raw,
			strings.Join(f.PyTags, "."), strings.Join(f.ABITags, "."), strings.Join(f.PlatTags, "."),
			env.Python, env.ABI, env.Platform)
	}

	return nil
}

func anyIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}

	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}

	return false
}

// String reconstructs the filename from its parsed components. Combined
// with Parse, this is the round-trip property from spec.md section 8.
func (f Filename) String() string {
	var b strings.Builder

	b.WriteString(f.Distribution)
	b.WriteByte('-')
	b.WriteString(f.Version)

	if f.Build != nil {
		b.WriteByte('-')
		b.WriteString(f.Build.String())
	}

	b.WriteByte('-')
	b.WriteString(strings.Join(f.PyTags, "."))
	b.WriteByte('-')
	b.WriteString(strings.Join(f.ABITags, "."))
	b.WriteByte('-')
	b.WriteString(strings.Join(f.PlatTags, "."))
	b.WriteString(".whl")

	return b.String()
}
