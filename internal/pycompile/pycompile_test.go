package pycompile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wheelport/wheelport/internal/pycompile"
)

func TestCompileMixedSuccessAndFailure(t *testing.T) {
	dir := t.TempDir()

	okPyc := filepath.Join(dir, "ok.pyc")
	if err := os.WriteFile(okPyc, []byte("bytecode"), 0o644); err != nil {
		t.Fatal(err)
	}

	output := "OK " + okPyc + "\n" +
		"FAIL " + filepath.Join(dir, "bad.py") + " SyntaxError: invalid syntax\n"

	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(output), nil
	}

	res, err := pycompile.Compile(context.Background(), pycompile.Options{
		InterpreterPath: "/usr/bin/python3",
		Roots:           []string{dir},
		RunCmd:          runner,
	})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	if len(res.Compiled) != 1 {
		t.Fatalf("len(Compiled) = %d, want 1", len(res.Compiled))
	}

	if len(res.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(res.Failures))
	}

	if res.Failures[0].Source != filepath.Join(dir, "bad.py") {
		t.Errorf("Failures[0].Source = %q", res.Failures[0].Source)
	}
}

func TestCompileRelativizesAgainstSitePackages(t *testing.T) {
	dir := t.TempDir()

	pkgDir := filepath.Join(dir, "tqdm", "__pycache__")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	pycPath := filepath.Join(pkgDir, "cli.cpython-38.pyc")
	if err := os.WriteFile(pycPath, []byte("bytecode"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("OK " + pycPath + "\n"), nil
	}

	res, err := pycompile.Compile(context.Background(), pycompile.Options{
		InterpreterPath: "/usr/bin/python3",
		Roots:           []string{dir},
		SitePackages:    dir,
		RunCmd:          runner,
	})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	if len(res.Compiled) != 1 {
		t.Fatalf("len(Compiled) = %d, want 1", len(res.Compiled))
	}

	want := filepath.Join("tqdm", "__pycache__", "cli.cpython-38.pyc")
	if res.Compiled[0].Path != want {
		t.Errorf("Compiled[0].Path = %q, want %q", res.Compiled[0].Path, want)
	}
}

func TestCompileNoRoots(t *testing.T) {
	res, err := pycompile.Compile(context.Background(), pycompile.Options{Roots: nil})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	if len(res.Compiled) != 0 || len(res.Failures) != 0 {
		t.Error("Compile() with no roots should be a no-op")
	}
}

func TestCompileInterpreterInvocationError(t *testing.T) {
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, os.ErrNotExist
	}

	_, err := pycompile.Compile(context.Background(), pycompile.Options{
		InterpreterPath: "/no/such/python",
		Roots:           []string{"/tmp"},
		RunCmd:          runner,
	})
	if err == nil {
		t.Error("Compile() error = nil, want error when interpreter invocation fails")
	}
}
