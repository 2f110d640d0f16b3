package scripts_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wheelport/wheelport/internal/distinfo"
	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/scripts"
)

func emptyZip(t *testing.T) *zip.Reader {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	return r
}

func TestSynthesizePOSIXConsoleScript(t *testing.T) {
	venvRoot := t.TempDir()
	siteDir := filepath.Join(venvRoot, "lib", "python3.8", "site-packages")
	dir := filepath.Join(venvRoot, "bin")

	if err := os.MkdirAll(siteDir, 0o755); err != nil {
		t.Fatal(err)
	}

	spec := envspec.Spec{
		SysPaths:        map[envspec.Category]string{envspec.Scripts: dir},
		SitePackages:    siteDir,
		InterpreterPath: "/v/bin/python3.8",
		LauncherKind:    envspec.LauncherPOSIX,
	}

	di := &distinfo.DistInfo{
		Package: distinfo.PackageMetadata{Name: "tqdm", Version: "4.62.3"},
		EntryPoints: []distinfo.EntryPoint{
			{Group: "console_scripts", Name: "tqdm", Module: "tqdm.cli", Object: "main"},
		},
	}

	res, err := scripts.Synthesize(emptyZip(t), di, spec)
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	if len(res.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(res.Files))
	}

	wantRecPath := filepath.Join("..", "..", "..", "bin", "tqdm")
	if res.Files[0].Path != wantRecPath {
		t.Errorf("Files[0].Path = %q, want %q", res.Files[0].Path, wantRecPath)
	}

	content, err := os.ReadFile(filepath.Join(dir, "tqdm"))
	if err != nil {
		t.Fatalf("reading script: %v", err)
	}

	if !strings.HasPrefix(string(content), "#!/v/bin/python3.8\n") {
		t.Errorf("script = %q, want shebang prefix", content)
	}

	info, err := os.Stat(filepath.Join(dir, "tqdm"))
	if err != nil {
		t.Fatal(err)
	}

	if info.Mode().Perm()&0o100 == 0 {
		t.Error("script is not executable")
	}
}

func TestSynthesizeEntryPointWinsOverDataScript(t *testing.T) {
	dir := t.TempDir()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	w, err := zw.Create("tqdm-4.62.3.data/scripts/tqdm")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("#!python\nprint('decoy')\n"))

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	spec := envspec.Spec{
		SysPaths:        map[envspec.Category]string{envspec.Scripts: dir},
		SitePackages:    filepath.Dir(dir),
		InterpreterPath: "/v/bin/python3.8",
		LauncherKind:    envspec.LauncherPOSIX,
	}

	di := &distinfo.DistInfo{
		Package: distinfo.PackageMetadata{Name: "tqdm", Version: "4.62.3"},
		EntryPoints: []distinfo.EntryPoint{
			{Group: "console_scripts", Name: "tqdm", Module: "tqdm.cli", Object: "main"},
		},
	}

	res, err := scripts.Synthesize(zr, di, spec)
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	if len(res.Warnings) != 1 {
		t.Fatalf("len(Warnings) = %d, want 1", len(res.Warnings))
	}

	content, err := os.ReadFile(filepath.Join(dir, "tqdm"))
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(string(content), "decoy") {
		t.Error("data/scripts file clobbered entry point output, want entry point to win")
	}
}

func TestSynthesizeWindowsLauncher(t *testing.T) {
	dir := t.TempDir()

	spec := envspec.Spec{
		SysPaths:        map[envspec.Category]string{envspec.Scripts: dir},
		SitePackages:    filepath.Dir(dir),
		InterpreterPath: `C:\v\python.exe`,
		LauncherKind:    envspec.LauncherWindowsX64,
		LauncherBytes: map[envspec.LauncherKind][]byte{
			envspec.LauncherWindowsX64: []byte("FAKESTUB"),
		},
	}

	di := &distinfo.DistInfo{
		Package: distinfo.PackageMetadata{Name: "tqdm", Version: "4.62.3"},
		EntryPoints: []distinfo.EntryPoint{
			{Group: "console_scripts", Name: "tqdm", Module: "tqdm.cli", Object: "main"},
		},
	}

	res, err := scripts.Synthesize(emptyZip(t), di, spec)
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	if len(res.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2 (exe + script.py)", len(res.Files))
	}

	exeContent, err := os.ReadFile(filepath.Join(dir, "tqdm.exe"))
	if err != nil {
		t.Fatalf("reading tqdm.exe: %v", err)
	}

	if !bytes.HasPrefix(exeContent, []byte("FAKESTUB")) {
		t.Error("tqdm.exe does not begin with the launcher stub bytes")
	}

	if _, err := os.Stat(filepath.Join(dir, "tqdm-script.py")); err != nil {
		t.Errorf("tqdm-script.py not written: %v", err)
	}
}

func TestSynthesizeWindowsGUILauncherDiffersFromConsole(t *testing.T) {
	buildSpec := func(dir string) envspec.Spec {
		return envspec.Spec{
			SysPaths:        map[envspec.Category]string{envspec.Scripts: dir},
			SitePackages:    filepath.Dir(dir),
			InterpreterPath: `C:\v\python.exe`,
			LauncherKind:    envspec.LauncherWindowsX64,
			LauncherBytes: map[envspec.LauncherKind][]byte{
				envspec.LauncherWindowsX64:    []byte("CONSOLESTUB"),
				envspec.LauncherWindowsX64GUI: []byte("GUISTUB"),
			},
		}
	}

	consoleDir := t.TempDir()
	consoleDI := &distinfo.DistInfo{
		Package: distinfo.PackageMetadata{Name: "tqdm", Version: "4.62.3"},
		EntryPoints: []distinfo.EntryPoint{
			{Group: "console_scripts", Name: "tqdm", Module: "tqdm.cli", Object: "main"},
		},
	}

	if _, err := scripts.Synthesize(emptyZip(t), consoleDI, buildSpec(consoleDir)); err != nil {
		t.Fatalf("Synthesize() console error: %v", err)
	}

	guiDir := t.TempDir()
	guiDI := &distinfo.DistInfo{
		Package: distinfo.PackageMetadata{Name: "tqdm", Version: "4.62.3"},
		EntryPoints: []distinfo.EntryPoint{
			{Group: "gui_scripts", Name: "tqdm", Module: "tqdm.gui", Object: "main"},
		},
	}

	if _, err := scripts.Synthesize(emptyZip(t), guiDI, buildSpec(guiDir)); err != nil {
		t.Fatalf("Synthesize() gui error: %v", err)
	}

	consoleExe, err := os.ReadFile(filepath.Join(consoleDir, "tqdm.exe"))
	if err != nil {
		t.Fatalf("reading console tqdm.exe: %v", err)
	}

	guiExe, err := os.ReadFile(filepath.Join(guiDir, "tqdm.exe"))
	if err != nil {
		t.Fatalf("reading gui tqdm.exe: %v", err)
	}

	if !bytes.HasPrefix(consoleExe, []byte("CONSOLESTUB")) {
		t.Error("console tqdm.exe does not use the console stub")
	}

	if !bytes.HasPrefix(guiExe, []byte("GUISTUB")) {
		t.Error("gui tqdm.exe does not use the windowed stub")
	}

	if bytes.Equal(consoleExe, guiExe) {
		t.Error("console and gui launchers are byte-identical, want distinct stub/shebang")
	}

	if !bytes.Contains(guiExe, []byte(" gui\r\n")) {
		t.Error("gui launcher shebang missing \" gui\" suffix")
	}

	if bytes.Contains(consoleExe, []byte(" gui\r\n")) {
		t.Error("console launcher shebang unexpectedly carries \" gui\" suffix")
	}
}
