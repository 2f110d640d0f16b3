package scripts

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/record"
	"github.com/wheelport/wheelport/internal/scripts/launchers"
)

// launcherBinary resolves the stub bytes for kind, preferring spec-supplied
// overrides (tests) before falling back to the embedded defaults.
func launcherBinary(spec envspec.Spec, kind envspec.LauncherKind) ([]byte, error) {
	if spec.LauncherBytes != nil {
		if b, ok := spec.LauncherBytes[kind]; ok {
			return b, nil
		}
	}

	switch kind {
	case envspec.LauncherWindowsX86:
		return launchers.T32, nil
	case envspec.LauncherWindowsX64:
		return launchers.T64, nil
	case envspec.LauncherWindowsARM64:
		return launchers.T64ARM, nil
	case envspec.LauncherWindowsX86GUI:
		return launchers.T32W, nil
	case envspec.LauncherWindowsX64GUI:
		return launchers.T64W, nil
	case envspec.LauncherWindowsARM64GUI:
		return launchers.T64ARMW, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLauncherKind, kind)
	}
}

// guiLauncherKind maps a console launcher kind to its windowed (no console)
// counterpart, the t*w.exe stub gui_scripts entries use.
func guiLauncherKind(kind envspec.LauncherKind) (envspec.LauncherKind, error) {
	switch kind {
	case envspec.LauncherWindowsX86:
		return envspec.LauncherWindowsX86GUI, nil
	case envspec.LauncherWindowsX64:
		return envspec.LauncherWindowsX64GUI, nil
	case envspec.LauncherWindowsARM64:
		return envspec.LauncherWindowsARM64GUI, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownLauncherKind, kind)
	}
}

// buildShebangLine is the format spec.md section 6 requires: a quoted
// interpreter path, optionally " gui", CRLF-terminated, UTF-8 encoded.
func buildShebangLine(interpreterPath string, gui bool) string {
	line := `#!"` + interpreterPath + `"`
	if gui {
		line += " gui"
	}

	return line + "\r\n"
}

// buildMainPyZip wraps body as the single entry __main__.py in a zip
// archive, the payload the launcher stub unpacks and runs at startup.
func buildMainPyZip(body string) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	w, err := zw.Create("__main__.py")
	if err != nil {
		return nil, fmt.Errorf("creating __main__.py entry: %w", err)
	}

	if _, err := w.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("writing __main__.py: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing __main__.py zip: %w", err)
	}

	return buf.Bytes(), nil
}

// emitWindowsLauncher assembles NAME.exe as launcher_stub || shebang || zip,
// and additionally writes NAME-script.py holding the trampoline for direct
// interpreter invocation (spec.md section 4.6). gui selects the windowed
// (no console) launcher stub and shebang suffix for a gui_scripts entry.
func emitWindowsLauncher(scriptsDir, name, body string, spec envspec.Spec, gui bool) ([]record.Entry, error) {
	kind := spec.LauncherKind

	if gui {
		guiKind, err := guiLauncherKind(kind)
		if err != nil {
			return nil, err
		}

		kind = guiKind
	}

	stub, err := launcherBinary(spec, kind)
	if err != nil {
		return nil, err
	}

	shebang := buildShebangLine(spec.InterpreterPath, gui)

	zipPayload, err := buildMainPyZip(body)
	if err != nil {
		return nil, err
	}

	var exeContent bytes.Buffer

	exeContent.Write(stub)
	exeContent.WriteString(shebang)
	exeContent.Write(zipPayload)

	exePath := filepath.Join(scriptsDir, name+".exe")
	if err := os.WriteFile(exePath, exeContent.Bytes(), 0o755); err != nil {
		return nil, fmt.Errorf("writing %s: %w", exePath, err)
	}

	exeHash, exeSize, err := record.HashFile(exePath)
	if err != nil {
		return nil, err
	}

	scriptPyPath := filepath.Join(scriptsDir, name+"-script.py")
	if err := os.WriteFile(scriptPyPath, []byte(body), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", scriptPyPath, err)
	}

	pyHash, pySize, err := record.HashFile(scriptPyPath)
	if err != nil {
		return nil, err
	}

	exeRecPath, err := scriptsRecordPath(spec, exePath)
	if err != nil {
		return nil, err
	}

	pyRecPath, err := scriptsRecordPath(spec, scriptPyPath)
	if err != nil {
		return nil, err
	}

	return []record.Entry{
		{Path: exeRecPath, Hash: exeHash, Size: exeSize},
		{Path: pyRecPath, Hash: pyHash, Size: pySize},
	}, nil
}
