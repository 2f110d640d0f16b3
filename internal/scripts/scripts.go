// Package scripts synthesizes console/GUI entry-point wrappers and handles
// data/scripts/* passthrough, per spec.md section 4.6.
package scripts

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelport/wheelport/internal/distinfo"
	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/record"
)

// ErrUnknownLauncherKind is returned when spec.LauncherBytes has no entry
// for the environment's declared LauncherKind.
var ErrUnknownLauncherKind = errors.New("no launcher binary for kind")

// Warning is a non-fatal event produced while synthesizing scripts, e.g. a
// naming collision resolved per the entry-point-wins tie-break rule.
type Warning struct {
	Name    string
	Message string
}

// Result is everything Synthesize produced: the emitted files (to become
// RECORD entries) and any warnings.
type Result struct {
	Files    []record.Entry
	Warnings []Warning
}

// consoleTrampoline is the POSIX/interpreter-invoked wrapper body, matching
// the shape pip itself generates: set argv[0], then call the entry point.
const consoleTrampoline = `import sys
from %s import %s
if __name__ == '__main__':
    sys.argv[0] = sys.argv[0].removesuffix('.exe')
    sys.exit(%s())
`

// Synthesize emits one script per entry_points.txt console_scripts/
// gui_scripts entry, plus a passthrough (with shebang rewrite) for any
// *.data/scripts/* file not already produced by an entry point of the same
// name — entry points win ties (spec.md invariant 7).
func Synthesize(zr *zip.Reader, di *distinfo.DistInfo, spec envspec.Spec) (Result, error) {
	scriptsDir, ok := spec.Root(envspec.Scripts)
	if !ok {
		return Result{}, fmt.Errorf("environment declares no scripts root")
	}

	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating scripts directory: %w", err)
	}

	var res Result

	emitted := make(map[string]struct{})

	for _, ep := range di.EntryPoints {
		if ep.Group != "console_scripts" && ep.Group != "gui_scripts" {
			continue
		}

		entries, err := emitEntryPoint(scriptsDir, ep, spec)
		if err != nil {
			return Result{}, fmt.Errorf("emitting entry point %s: %w", ep.Name, err)
		}

		res.Files = append(res.Files, entries...)
		emitted[ep.Name] = struct{}{}
	}

	dataPrefix := di.Package.Name + "-" + di.Package.Version + ".data/scripts/"

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") || !strings.HasPrefix(f.Name, dataPrefix) {
			continue
		}

		name := strings.TrimPrefix(f.Name, dataPrefix)

		if _, already := emitted[name]; already {
			res.Warnings = append(res.Warnings, Warning{
				Name:    name,
				Message: "entry_points.txt console_scripts/gui_scripts entry takes precedence over data/scripts file of the same name",
			})

			continue
		}

		entries, err := emitDataScript(f, scriptsDir, name, spec)
		if err != nil {
			return Result{}, fmt.Errorf("emitting data script %s: %w", name, err)
		}

		res.Files = append(res.Files, entries...)
	}

	return res, nil
}

func emitEntryPoint(scriptsDir string, ep distinfo.EntryPoint, spec envspec.Spec) ([]record.Entry, error) {
	body := fmt.Sprintf(consoleTrampoline, ep.Module, ep.Object, ep.Object)

	if spec.LauncherKind == envspec.LauncherPOSIX {
		content := "#!" + spec.InterpreterPath + "\n" + body

		path := filepath.Join(scriptsDir, ep.Name)

		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}

		hash, size, err := record.HashFile(path)
		if err != nil {
			return nil, err
		}

		recPath, err := scriptsRecordPath(spec, path)
		if err != nil {
			return nil, err
		}

		return []record.Entry{{Path: recPath, Hash: hash, Size: size}}, nil
	}

	return emitWindowsLauncher(scriptsDir, ep.Name, body, spec, ep.Group == "gui_scripts")
}

func emitDataScript(f *zip.File, scriptsDir, name string, spec envspec.Spec) ([]record.Entry, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}

	if spec.LauncherKind != envspec.LauncherPOSIX && bytes.HasPrefix(data, []byte("#!python")) {
		nl := bytes.IndexByte(data, '\n')
		body := ""
		if nl >= 0 {
			body = string(data[nl+1:])
		}

		return emitWindowsLauncher(scriptsDir, name, body, spec, false)
	}
	// On Windows, files whose first line is not "#!python" are copied
	// verbatim; the wrapping scheme for arbitrary data/scripts files is left
	// unspecified upstream.

	data = rewriteShebang(data, spec.InterpreterPath)

	path := filepath.Join(scriptsDir, name)

	if err := os.WriteFile(path, data, 0o755); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}

	hash, size, err := record.HashFile(path)
	if err != nil {
		return nil, err
	}

	recPath, err := scriptsRecordPath(spec, path)
	if err != nil {
		return nil, err
	}

	return []record.Entry{{Path: recPath, Hash: hash, Size: size}}, nil
}

// rewriteShebang replaces a "#!python" or "#!pythonw" first line with
// "#!<interpreter>"; any other first line is left untouched.
func rewriteShebang(data []byte, interpreterPath string) []byte {
	if interpreterPath == "" || !bytes.HasPrefix(data, []byte("#!")) {
		return data
	}

	nl := bytes.IndexByte(data, '\n')

	line := data
	if nl >= 0 {
		line = data[:nl]
	}

	shebang := strings.TrimSuffix(string(line[2:]), "\r")
	if shebang != "python" && shebang != "pythonw" {
		return data
	}

	rest := []byte{}
	if nl >= 0 {
		rest = data[nl+1:]
	}

	var out bytes.Buffer

	out.WriteString("#!" + interpreterPath + "\n")
	out.Write(rest)

	return out.Bytes()
}

// scriptsRecordPath records a script's RECORD path relative to
// spec.SitePackages, the same root every other RECORD entry is relative to.
// The actual depth between site-packages and the scripts directory varies by
// layout: three levels up for a typical venv (lib/pythonX.Y/site-packages to
// bin/), two levels down for store mode (the slot itself is SitePackages, and
// scripts live under <name>-<version>.data/scripts).
func scriptsRecordPath(spec envspec.Spec, actualPath string) (string, error) {
	rel, err := filepath.Rel(spec.SitePackages, actualPath)
	if err != nil {
		return "", fmt.Errorf("relativizing script path %s: %w", actualPath, err)
	}

	return rel, nil
}
