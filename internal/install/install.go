package install

import (
	"archive/zip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wheelport/wheelport/internal/distinfo"
	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/lock"
	"github.com/wheelport/wheelport/internal/pycompile"
	"github.com/wheelport/wheelport/internal/record"
	"github.com/wheelport/wheelport/internal/scripts"
	"github.com/wheelport/wheelport/internal/store"
	"github.com/wheelport/wheelport/internal/verify"
	"github.com/wheelport/wheelport/internal/wheelname"
)

// Installer installs a single wheel archive into a target environment.
type Installer interface {
	Install(ctx context.Context, wheelPath string, spec envspec.Spec) (Summary, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCompileBytecode enables the optional bytecode precompile step.
func WithCompileBytecode(enabled bool) Option {
	return func(s *Service) {
		s.compileBytecode = enabled
	}
}

// WithSkipHashes degrades integrity verification to CRC32-only.
func WithSkipHashes(enabled bool) Option {
	return func(s *Service) {
		s.skipHashes = enabled
	}
}

// WithStore enables shared content-addressed store mode instead of direct
// venv installation.
func WithStore(m *store.Manager) Option {
	return func(s *Service) {
		s.store = m
	}
}

// WithLockTimeout bounds how long Install waits to acquire the environment
// lock before failing with lock.ErrLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.lockTimeout = d
	}
}

// WithMaxWorkers bounds the extractor's concurrency.
func WithMaxWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithSourcePath records the wheel's origin for direct_url.json. Editable
// marks the source as an editable install.
func WithSourcePath(path string, editable bool) Option {
	return func(s *Service) {
		s.sourcePath = path
		s.editable = editable
	}
}

// WithBytecompileRunner overrides the command runner the bytecode
// precompiler uses to invoke the target interpreter. Tests use this to
// avoid spawning a real interpreter; production callers leave it unset.
func WithBytecompileRunner(fn pycompile.CommandRunner) Option {
	return func(s *Service) {
		s.bytecompileRunner = fn
	}
}

// Summary reports what Install actually did.
type Summary struct {
	Dest            string // site-packages (venv mode) or store slot (store mode)
	AlreadyComplete bool   // store mode: sentinel already present, install skipped
	FilesWritten    int
	Warnings        []scripts.Warning
	BytecompileFail []pycompile.Failure
}

// Service orchestrates spec.md components 3-8 into one Install call per
// wheel: verify, plan, extract, synthesize scripts, optionally precompile,
// write RECORD/INSTALLER/direct_url.json, all under the environment lock.
type Service struct {
	logger            *slog.Logger
	compileBytecode   bool
	skipHashes        bool
	store             *store.Manager
	lockTimeout       time.Duration
	maxWorkers        int
	sourcePath        string
	editable          bool
	bytecompileRunner pycompile.CommandRunner
}

var _ Installer = (*Service)(nil)

// New creates an install Service.
func New(opts ...Option) *Service {
	s := &Service{logger: slog.Default()}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Install installs wheelPath into the environment described by spec. If the
// Service was built WithStore, spec.SitePackages is ignored in favor of the
// store slot resolved from the wheel's own (name, version, tag).
func (s *Service) Install(ctx context.Context, wheelPath string, spec envspec.Spec) (Summary, error) {
	fn, err := wheelname.Parse(filepath.Base(wheelPath))
	if err != nil {
		return Summary{}, err
	}

	if err := fn.CheckCompatible(spec.CompatTags); err != nil {
		return Summary{}, err
	}

	zr, err := zip.OpenReader(wheelPath)
	if err != nil {
		return Summary{}, fmt.Errorf("opening wheel %s: %w", wheelPath, err)
	}
	defer func() { _ = zr.Close() }()

	di, err := distinfo.Read(&zr.Reader, fn.Distribution, fn.Version)
	if err != nil {
		return Summary{}, err
	}

	if s.store != nil {
		return s.installToStore(ctx, &zr.Reader, di, fn, spec)
	}

	return s.installToVenv(ctx, &zr.Reader, di, spec)
}

// installToVenv installs directly into a shared venv's site-packages,
// holding the environment lock for the whole install so that N concurrent
// installs of distinct wheels into the same env never interleave their
// RECORD/INSTALLER writes (spec.md invariant 5, scenario S5).
func (s *Service) installToVenv(ctx context.Context, zr *zip.Reader, di *distinfo.DistInfo, spec envspec.Spec) (Summary, error) {
	if err := os.MkdirAll(spec.SitePackages, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating site-packages %s: %w", spec.SitePackages, err)
	}

	l := lock.New(envLockPath(spec))
	if err := l.Acquire(ctx, s.lockTimeout); err != nil {
		return Summary{}, err
	}
	defer func() { _ = l.Release() }()

	return s.installToEnv(ctx, zr, di, spec, spec.SitePackages)
}

// envLockPath is the advisory lock guarding a shared venv, one lock per
// site-packages directory regardless of which wheel is being installed.
func envLockPath(spec envspec.Spec) string {
	return filepath.Join(spec.SitePackages, "install-wheel-rs.lock")
}

func (s *Service) installToStore(ctx context.Context, zr *zip.Reader, di *distinfo.DistInfo, fn wheelname.Filename, spec envspec.Spec) (Summary, error) {
	slot := s.store.Slot(di.Package.Name, di.Package.Version, tagTriple(fn))

	if s.store.IsComplete(slot) {
		return Summary{Dest: slot, AlreadyComplete: true}, nil
	}

	if err := os.MkdirAll(slot, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating store slot %s: %w", slot, err)
	}

	l := lock.New(s.store.LockPath(slot))
	if err := l.Acquire(ctx, s.lockTimeout); err != nil {
		return Summary{}, err
	}
	defer func() { _ = l.Release() }()

	if s.store.IsComplete(slot) {
		return Summary{Dest: slot, AlreadyComplete: true}, nil
	}

	storeSpec := spec
	storeSpec.SysPaths = make(map[envspec.Category]string, len(spec.SysPaths))

	dataRoot := filepath.Join(slot, di.Package.Name+"-"+di.Package.Version+".data")
	for cat := range spec.SysPaths {
		storeSpec.SysPaths[cat] = filepath.Join(dataRoot, string(cat))
	}

	storeSpec.SitePackages = slot

	summary, err := s.installToEnv(ctx, zr, di, storeSpec, slot)
	if err != nil {
		return Summary{}, err
	}

	if err := s.store.MarkComplete(slot); err != nil {
		return Summary{}, err
	}

	summary.Dest = slot

	return summary, nil
}

func (s *Service) installToEnv(ctx context.Context, zr *zip.Reader, di *distinfo.DistInfo, spec envspec.Spec, dest string) (Summary, error) {
	if err := verify.Archive(zr, di, verify.Options{SkipHashes: s.skipHashes}); err != nil {
		return Summary{}, err
	}

	plan, err := BuildPlan(zr, di, spec)
	if err != nil {
		return Summary{}, err
	}

	extracted, err := Extract(ctx, plan, spec, ExtractOptions{MaxWorkers: s.maxWorkers, Logger: s.logger})
	if err != nil {
		return Summary{}, err
	}

	entries := make([]record.Entry, 0, len(extracted)+4)
	for _, ef := range extracted {
		entries = append(entries, ef.Record)
	}

	scriptRes, err := scripts.Synthesize(zr, di, spec)
	if err != nil {
		return Summary{}, err
	}

	entries = append(entries, scriptRes.Files...)

	for _, w := range scriptRes.Warnings {
		s.logger.Warn("script synthesis warning", slog.String("name", w.Name), slog.String("message", w.Message))
	}

	var bytecompileFailures []pycompile.Failure

	if s.compileBytecode {
		roots := pycompileRoots(spec)

		res, err := pycompile.Compile(ctx, pycompile.Options{
			InterpreterPath: spec.InterpreterPath,
			Roots:           roots,
			SitePackages:    spec.SitePackages,
			RunCmd:          s.bytecompileRunner,
			Logger:          s.logger,
		})
		if err != nil {
			return Summary{}, err
		}

		entries = append(entries, res.Compiled...)
		bytecompileFailures = res.Failures
	}

	distInfoDir := filepath.Join(spec.SitePackages, di.Dir)

	if s.sourcePath != "" {
		if err := record.WriteDirectURL(distInfoDir, s.sourcePath, s.editable); err != nil {
			return Summary{}, err
		}

		hash, size, err := record.HashFile(filepath.Join(distInfoDir, "direct_url.json"))
		if err != nil {
			return Summary{}, err
		}

		entries = append(entries, record.Entry{Path: filepath.Join(di.Dir, "direct_url.json"), Hash: hash, Size: size})
	}

	if err := record.WriteInstaller(distInfoDir); err != nil {
		return Summary{}, err
	}

	entries = append(entries,
		record.Entry{Path: filepath.Join(di.Dir, "INSTALLER"), NoHash: true},
		record.Entry{Path: filepath.Join(di.Dir, "RECORD"), NoHash: true},
	)

	if err := record.Write(distInfoDir, entries); err != nil {
		return Summary{}, err
	}

	return Summary{
		Dest:            dest,
		FilesWritten:    len(entries),
		Warnings:        scriptRes.Warnings,
		BytecompileFail: bytecompileFailures,
	}, nil
}

// tagTriple renders a wheel's tags as a single store-slot-safe directory
// component, e.g. "py2.py3-none-any".
func tagTriple(fn wheelname.Filename) string {
	return fmt.Sprintf("%s-%s-%s",
		strings.Join(fn.PyTags, "."), strings.Join(fn.ABITags, "."), strings.Join(fn.PlatTags, "."))
}

// pycompileRoots returns the purelib/platlib destinations this wheel wrote
// into, the only trees the precompiler walks.
func pycompileRoots(spec envspec.Spec) []string {
	var roots []string

	if p, ok := spec.Root(envspec.Purelib); ok {
		roots = append(roots, p)
	}

	if p, ok := spec.Root(envspec.Platlib); ok && (len(roots) == 0 || p != roots[0]) {
		roots = append(roots, p)
	}

	return roots
}
