package install

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wheelport/wheelport/internal/envspec"
	"github.com/wheelport/wheelport/internal/record"
)

// ExtractedFile is one file written to disk by Extract, ready to become a
// PostInstallRecord entry.
type ExtractedFile struct {
	Path   string // absolute destination path
	Record record.Entry
}

// ExtractOptions controls the extractor's concurrency.
type ExtractOptions struct {
	MaxWorkers int
	Logger     *slog.Logger
}

// dirCache lazily creates directory components at most once, tolerating
// concurrent workers racing to create the same ancestor (spec.md section
// 4.5 and 9: "already exists" is success).
type dirCache struct {
	seen sync.Map
}

func (c *dirCache) ensure(dir string) error {
	if _, ok := c.seen.Load(dir); ok {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	c.seen.Store(dir, struct{}{})

	return nil
}

// Extract streams every PlanItem to its destination concurrently, rewriting
// POSIX script shebangs, preserving the executable bit, and hashing the
// bytes actually written. Destinations are written in plan order as far as
// the caller can observe end state, but writes themselves run in a bounded
// worker pool (spec.md section 4.5/5).
func Extract(ctx context.Context, plan InstallPlan, spec envspec.Spec, opts ExtractOptions) ([]ExtractedFile, error) {
	logger := opts.Logger
	if logger == nil {
		logger = spec.Logger()
	}

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}

	results := make([]ExtractedFile, len(plan))
	dirs := &dirCache{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, item := range plan {
		g.Go(func() error {
			ef, err := extractOne(item, spec, dirs)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", item.Source.Name, err)
			}

			results[i] = ef

			logger.Debug("extracted",
				slog.String("archive_path", item.Source.Name),
				slog.String("dest", ef.Path),
				slog.Int64("size", ef.Record.Size),
			)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func extractOne(item PlanItem, spec envspec.Spec, dirs *dirCache) (ExtractedFile, error) {
	if err := dirs.ensure(filepath.Dir(item.Dest)); err != nil {
		return ExtractedFile{}, err
	}

	rc, err := item.Source.Open()
	if err != nil {
		return ExtractedFile{}, fmt.Errorf("opening archive entry: %w", err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return ExtractedFile{}, fmt.Errorf("reading archive entry: %w", err)
	}

	isScript := item.Mode == ModeScript

	data, rewritten := maybeRewriteShebang(data, isScript, spec.InterpreterPath)

	mode := os.FileMode(0o644)
	if item.ExecBit || rewritten {
		mode = 0o755
	}

	if err := os.WriteFile(item.Dest, data, mode); err != nil {
		return ExtractedFile{}, fmt.Errorf("writing %s: %w", item.Dest, err)
	}

	hash, size, err := record.HashReader(bytes.NewReader(data))
	if err != nil {
		return ExtractedFile{}, fmt.Errorf("hashing %s: %w", item.Dest, err)
	}

	relPath := archiveRelPath(item)

	return ExtractedFile{
		Path: item.Dest,
		Record: record.Entry{
			Path: relPath,
			Hash: hash,
			Size: size,
		},
	}, nil
}

// archiveRelPath is the path recorded in the new RECORD: the original
// archive path, except dist-info entries keep their directory name as-is
// (they are already relative to site-packages).
func archiveRelPath(item PlanItem) string {
	return item.Source.Name
}

// maybeRewriteShebang implements spec.md section 4.5/4.6/8 invariant 6: a
// scripts-category file whose first line is "#!python" or "#!pythonw" has
// that line replaced with "#!<interpreter>" on POSIX. Windows wrapping is a
// separate code path in internal/scripts; this function only handles the
// POSIX in-place text rewrite during plain extraction.
func maybeRewriteShebang(data []byte, isScript bool, interpreterPath string) ([]byte, bool) {
	if !isScript || interpreterPath == "" || len(data) < 2 || data[0] != '#' || data[1] != '!' {
		return data, false
	}

	reader := bufio.NewReader(bytes.NewReader(data))

	firstLine, err := reader.ReadString('\n')
	if err != nil && firstLine == "" {
		return data, false
	}

	trimmed := firstLine
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}

	shebang := trimmed[2:]
	if shebang != "python" && shebang != "pythonw" {
		return data, false
	}

	rest, _ := io.ReadAll(reader)

	var out bytes.Buffer

	out.WriteString("#!" + interpreterPath + "\n")
	out.Write(rest)

	return out.Bytes(), true
}
