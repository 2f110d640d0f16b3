// Package pycompile precompiles installed .py files to .pyc via a single
// subprocess invocation of the target interpreter (spec.md section 4.7).
package pycompile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wheelport/wheelport/internal/record"
)

// compileScript walks the given roots, compiling every .py file with
// py_compile (doraise=True inside a per-file try/except) so one broken file
// does not abort the rest;
// compiled/skipped paths are printed so the caller can build RECORD entries
// and warnings without parsing interpreter stdout formats more than this.
const compileScript = `import py_compile, sys, os
roots = sys.argv[1:]
for root in roots:
    for dirpath, _, filenames in os.walk(root):
        for name in filenames:
            if not name.endswith('.py'):
                continue
            src = os.path.join(dirpath, name)
            try:
                out = py_compile.compile(src, doraise=True)
                print('OK', out)
            except Exception as exc:
                print('FAIL', src, str(exc).replace('\n', ' '))
`

// CommandRunner executes a command and returns its combined stdout.
// Defaults to exec.CommandContext(...).Output().
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Result is the outcome of one precompile invocation.
type Result struct {
	Compiled []record.Entry // new .pyc RECORD entries
	Failures []Failure      // non-fatal per-file compile errors
}

// Failure describes one file the precompiler could not compile.
type Failure struct {
	Source string
	Reason string
}

// Options configures Compile.
type Options struct {
	InterpreterPath string
	Roots           []string // directories to walk (purelib/platlib destinations for this wheel)
	SitePackages    string   // RECORD entries are written relative to this, matching every other component
	RunCmd          CommandRunner
	Logger          *slog.Logger
}

// Compile spawns opts.InterpreterPath once to compile every .py file under
// opts.Roots. Per-file syntax errors are collected as Failures and do not
// fail the call; only a failure to invoke the interpreter itself does.
func Compile(ctx context.Context, opts Options) (Result, error) {
	if len(opts.Roots) == 0 {
		return Result{}, nil
	}

	runCmd := opts.RunCmd
	if runCmd == nil {
		runCmd = defaultRunCmd
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := append([]string{"-c", compileScript}, opts.Roots...)

	output, err := runCmd(ctx, opts.InterpreterPath, args...)
	if err != nil {
		return Result{}, fmt.Errorf("invoking %s for bytecompile: %w", opts.InterpreterPath, err)
	}

	res := Result{}

	for _, line := range strings.Split(strings.TrimRight(string(output), "\n"), "\n") {
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 3)

		switch fields[0] {
		case "OK":
			if len(fields) < 2 {
				continue
			}

			pycPath := fields[1]

			hash, size, err := record.HashFile(pycPath)
			if err != nil {
				logger.Warn("bytecompile: hashing compiled file failed",
					slog.String("path", pycPath), slog.String("error", err.Error()))

				continue
			}

			recordPath := pycPath

			if opts.SitePackages != "" {
				rel, err := filepath.Rel(opts.SitePackages, pycPath)
				if err != nil {
					logger.Warn("bytecompile: relativizing compiled path failed",
						slog.String("path", pycPath), slog.String("error", err.Error()))
				} else {
					recordPath = rel
				}
			}

			res.Compiled = append(res.Compiled, record.Entry{Path: recordPath, Hash: hash, Size: size})

		case "FAIL":
			if len(fields) < 2 {
				continue
			}

			reason := ""
			if len(fields) == 3 {
				reason = fields[2]
			}

			logger.Warn("bytecompile: file failed to compile",
				slog.String("path", fields[1]), slog.String("reason", reason))

			res.Failures = append(res.Failures, Failure{Source: fields[1], Reason: reason})
		}
	}

	return res, nil
}

func defaultRunCmd(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s: %s", err, exitErr.Stderr)
		}

		return out, err
	}

	return out, nil
}
