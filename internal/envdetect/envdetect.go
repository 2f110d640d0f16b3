// Package envdetect inspects an existing Python environment (a venv or the
// system interpreter) to build the envspec.Spec an install targets. This is
// distinct from interpreter provisioning (a non-goal): it only reads what
// is already on disk.
package envdetect

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/wheelname"
)

// probeScript collects everything needed to populate an envspec.Spec in a
// single interpreter invocation.
const probeScript = `import sys, sysconfig
paths = sysconfig.get_paths()
print(paths['purelib'])
print(paths['platlib'])
print(paths['scripts'])
print(paths['include'])
print(paths['data'])
print(sysconfig.get_platform())
print(f'{sys.version_info.major}.{sys.version_info.minor}')
print(sys.implementation.name)
print(sys.executable)`

// expectedProbeLines is the number of lines probeScript prints.
const expectedProbeLines = 9

// CommandRunner executes a command and returns its combined stdout.
// Defaults to exec.CommandContext(...).Output().
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// EnvLookup looks up an environment variable. Defaults to os.Getenv.
type EnvLookup func(string) string

// Option configures a Detector.
type Option func(*Detector)

// WithCommandRunner overrides how the probe interpreter is invoked.
func WithCommandRunner(fn CommandRunner) Option {
	return func(d *Detector) {
		if fn != nil {
			d.runCmd = fn
		}
	}
}

// WithEnvLookup overrides environment variable lookup.
func WithEnvLookup(fn EnvLookup) Option {
	return func(d *Detector) {
		if fn != nil {
			d.getenv = fn
		}
	}
}

// Detector probes a target interpreter to build an envspec.Spec.
type Detector struct {
	runCmd CommandRunner
	getenv EnvLookup
}

// New creates a Detector with default collaborators.
func New(opts ...Option) *Detector {
	d := &Detector{
		runCmd: defaultRunCmd,
		getenv: os.Getenv,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Detect runs interpreterPath through probeScript and assembles a Spec.
// VenvRoot is taken from VIRTUAL_ENV when set and interpreterPath lies
// under it, otherwise left empty (a system interpreter has no venv root).
func (d *Detector) Detect(ctx context.Context, interpreterPath string) (envspec.Spec, error) {
	output, err := d.runCmd(ctx, interpreterPath, "-c", probeScript)
	if err != nil {
		return envspec.Spec{}, fmt.Errorf("probing %s: %w", interpreterPath, err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) != expectedProbeLines {
		return envspec.Spec{}, fmt.Errorf("unexpected probe output from %s: expected %d lines, got %d",
			interpreterPath, expectedProbeLines, len(lines))
	}

	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	major, minor, err := parseVersion(lines[6])
	if err != nil {
		return envspec.Spec{}, fmt.Errorf("parsing python version %q: %w", lines[6], err)
	}

	spec := envspec.Spec{
		PythonMajor:    major,
		PythonMinor:    minor,
		Implementation: lines[7],
		SysPaths: map[envspec.Category]string{
			envspec.Purelib: lines[0],
			envspec.Platlib: lines[1],
			envspec.Scripts: lines[2],
			envspec.Headers: lines[3],
			envspec.Data:    lines[4],
		},
		SitePackages:    lines[0],
		InterpreterPath: lines[8],
		LauncherKind:    envspec.LauncherPOSIX,
		CompatTags: wheelname.CompatTags{
			Python:   []string{"py" + strconv.Itoa(major), "py" + strconv.Itoa(major) + strconv.Itoa(minor), "cp" + strconv.Itoa(major) + strconv.Itoa(minor)},
			ABI:      []string{"none", "abi3", "cp" + strconv.Itoa(major) + strconv.Itoa(minor)},
			Platform: []string{lines[5], "any"},
		},
	}

	if venv := d.getenv("VIRTUAL_ENV"); venv != "" && strings.HasPrefix(interpreterPath, venv) {
		spec.VenvRoot = venv
	}

	return spec, nil
}

func parseVersion(s string) (major, minor int, err error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected MAJOR.MINOR, got %q", s)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}

	return major, minor, nil
}

func defaultRunCmd(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
