// Package install resolves wheel archive entries to on-disk destinations,
// extracts them, and orchestrates a complete wheel installation.
package install

import (
	"archive/zip"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/wheelport/wheelport/internal/distinfo"
	"github.com/wheelport/wheelport/internal/envspec"
)

// ErrUnsafePath is returned when a resolved destination escapes every
// declared environment root (zip-slip defense).
var ErrUnsafePath = errors.New("unsafe path")

// PlanMode classifies a PlanItem by which part of the archive it came from.
type PlanMode int

const (
	ModeDist PlanMode = iota
	ModeData
	ModeScript
	ModeDistInfo
)

func (m PlanMode) String() string {
	switch m {
	case ModeDist:
		return "dist"
	case ModeData:
		return "data"
	case ModeScript:
		return "script"
	case ModeDistInfo:
		return "dist-info"
	default:
		return "unknown"
	}
}

// PlanItem is one archive entry's resolved destination.
type PlanItem struct {
	Source   *zip.File
	Dest     string
	Mode     PlanMode
	Category envspec.Category
	ExecBit  bool
}

// InstallPlan is the ordered sequence of PlanItems for one wheel, in
// archive order.
type InstallPlan []PlanItem

// dataDirRe-free split: "<name>-<ver>.data/<cat>/<rest>".
func splitDataEntry(p, dataDirPrefix string) (cat, rest string, ok bool) {
	if !strings.HasPrefix(p, dataDirPrefix) {
		return "", "", false
	}

	trimmed := strings.TrimPrefix(p, dataDirPrefix)

	cat, rest, ok = strings.Cut(trimmed, "/")

	return cat, rest, ok
}

// BuildPlan resolves every non-directory entry in zr to a destination,
// per spec.md section 4.4.
func BuildPlan(zr *zip.Reader, di *distinfo.DistInfo, spec envspec.Spec) (InstallPlan, error) {
	dataDirPrefix := di.Package.Name + "-" + di.Package.Version + ".data/"
	distInfoPrefix := di.Dir + "/"

	plan := make(InstallPlan, 0, len(zr.File))

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}

		name := path.Clean(f.Name)

		if name == ".." || strings.HasPrefix(name, "../") || path.IsAbs(name) {
			return nil, fmt.Errorf("%w: %s escapes the archive root", ErrUnsafePath, f.Name)
		}

		item, err := resolveEntry(f, name, dataDirPrefix, distInfoPrefix, spec, di.Wheel.RootIsPurelib)
		if err != nil {
			return nil, err
		}

		if err := checkContainment(item.Dest, spec); err != nil {
			return nil, err
		}

		plan = append(plan, item)
	}

	return plan, nil
}

func resolveEntry(f *zip.File, name, dataDirPrefix, distInfoPrefix string, spec envspec.Spec, rootIsPurelib bool) (PlanItem, error) {
	if cat, rest, ok := splitDataEntry(name, dataDirPrefix); ok {
		category := envspec.Category(cat)

		root, declared := spec.Root(category)
		if !declared {
			return PlanItem{}, fmt.Errorf("%w: %s: undeclared data category %q", ErrUnsafePath, f.Name, cat)
		}

		mode := ModeData
		if category == envspec.Scripts {
			mode = ModeScript
		}

		return PlanItem{
			Source:   f,
			Dest:     filepath.Join(root, filepath.FromSlash(rest)),
			Mode:     mode,
			Category: category,
			ExecBit:  execBit(f) || category == envspec.Scripts,
		}, nil
	}

	if strings.HasPrefix(name, distInfoPrefix) {
		rest := strings.TrimPrefix(name, distInfoPrefix)

		return PlanItem{
			Source:   f,
			Dest:     filepath.Join(spec.SitePackages, filepath.FromSlash(distInfoPrefix+rest)),
			Mode:     ModeDistInfo,
			Category: "",
			ExecBit:  execBit(f),
		}, nil
	}

	category := spec.PrimaryRoot(rootIsPurelib)

	root, declared := spec.Root(category)
	if !declared {
		return PlanItem{}, fmt.Errorf("%w: %s: undeclared root category %q", ErrUnsafePath, f.Name, category)
	}

	return PlanItem{
		Source:   f,
		Dest:     filepath.Join(root, filepath.FromSlash(name)),
		Mode:     ModeDist,
		Category: category,
		ExecBit:  execBit(f),
	}, nil
}

// execBit reads the POSIX executable bits out of a zip entry's external
// attributes (high 16 bits, per the Unix convention zip implementations
// follow). Ignored entirely on Windows by the extractor, not here.
func execBit(f *zip.File) bool {
	mode := f.ExternalAttrs >> 16
	return mode&0o111 != 0
}

// checkContainment verifies dest resolves inside one of spec's declared
// roots after cleaning, the zip-slip defense of spec.md invariant 2.
func checkContainment(dest string, spec envspec.Spec) error {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dest, err)
	}

	for _, root := range spec.AllRoots() {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}

		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s escapes all declared roots", ErrUnsafePath, dest)
}
