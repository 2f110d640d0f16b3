// Package verify cross-checks a wheel archive's RECORD against its actual
// contents before any file is extracted (spec.md section 4.3).
package verify

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/wheelport/wheelport/internal/distinfo"
)

// ErrHashMismatch is returned when an archive member's SHA-256 does not
// match its RECORD entry.
var ErrHashMismatch = errors.New("hash mismatch")

// ErrSizeMismatch is returned when an archive member's size does not match
// its RECORD entry.
var ErrSizeMismatch = errors.New("size mismatch")

// ErrMissingRecordEntry is returned when an archive member has no
// corresponding RECORD row.
var ErrMissingRecordEntry = errors.New("missing RECORD entry")

// ErrExtraFile is returned when RECORD references a path absent from the
// archive.
var ErrExtraFile = errors.New("extra file in RECORD")

// ErrUnsupportedHashAlg is returned for any RECORD hash algorithm other than
// sha256, on an entry other than RECORD, INSTALLER, or RECORD itself.
var ErrUnsupportedHashAlg = errors.New("unsupported hash algorithm")

// Options controls how strictly Archive checks integrity.
type Options struct {
	// SkipHashes disables SHA-256 verification, relying only on the zip
	// package's own CRC32 check (performed implicitly as entries are
	// decompressed). Archive membership cross-checks still run.
	SkipHashes bool
}

// isExempt reports whether recordPath's base name is RECORD or INSTALLER,
// the entries allowed to carry an empty or non-sha256 hash in RECORD (spec.md section 4.2/4.8: RECORD and INSTALLER record
// themselves with no hash).
func isExempt(recordPath string) bool {
	base := path.Base(recordPath)
	return base == "RECORD" || base == "INSTALLER"
}

// Archive verifies zr's contents against di.Record: every archive member
// not itself a directory must have a RECORD row, every RECORD row with a
// path must correspond to an archive member, and (unless opts.SkipHashes)
// every row's declared hash and size must match the member's actual bytes.
func Archive(zr *zip.Reader, di *distinfo.DistInfo, opts Options) error {
	recordByPath := make(map[string]distinfo.RawRecordLine, len(di.Record))
	for _, r := range di.Record {
		recordByPath[path.Clean(r.Path)] = r
	}

	seen := make(map[string]struct{}, len(di.Record))

	for _, f := range zr.File {
		name := path.Clean(f.Name)
		if strings.HasSuffix(f.Name, "/") {
			continue // directory entries carry no RECORD row
		}

		row, ok := recordByPath[name]
		if !ok {
			return fmt.Errorf("%w: %s present in archive but not in RECORD", ErrMissingRecordEntry, f.Name)
		}

		seen[name] = struct{}{}

		if opts.SkipHashes {
			continue
		}

		if err := verifyEntry(f, row); err != nil {
			return err
		}
	}

	for name := range recordByPath {
		if _, ok := seen[name]; ok {
			continue
		}

		if isExempt(name) {
			continue
		}

		return fmt.Errorf("%w: %s listed in RECORD but not present in archive", ErrExtraFile, name)
	}

	return nil
}

func verifyEntry(f *zip.File, row distinfo.RawRecordLine) error {
	if row.Hash == "" && row.Size == "" {
		if isExempt(row.Path) {
			return nil
		}
		// Tolerate archives that omit hashes for entries this tool does not
		// consider self-referential; RECORD integrity is then whatever the
		// zip CRC already guarantees.
		return nil
	}

	alg, encoded, ok := strings.Cut(row.Hash, "=")
	if !ok {
		if isExempt(row.Path) {
			return nil
		}

		return fmt.Errorf("%w: malformed hash field %q for %s", ErrUnsupportedHashAlg, row.Hash, row.Path)
	}

	if alg != "sha256" {
		if isExempt(row.Path) {
			return nil
		}

		return fmt.Errorf("%w: %q for %s", ErrUnsupportedHashAlg, alg, row.Path)
	}

	wantSize, err := parseSize(row.Size)
	if err != nil {
		return fmt.Errorf("malformed size field %q for %s: %w", row.Size, row.Path, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	h := sha256.New()

	n, err := io.Copy(h, rc)
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}

	if wantSize >= 0 && n != wantSize {
		return fmt.Errorf("%w: %s: RECORD says %d bytes, archive has %d", ErrSizeMismatch, f.Name, wantSize, n)
	}

	gotEncoded := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	if gotEncoded != encoded {
		return fmt.Errorf("%w: %s: RECORD says %s, archive hashes to %s", ErrHashMismatch, f.Name, encoded, gotEncoded)
	}

	return nil
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return -1, nil
	}

	return strconv.ParseInt(s, 10, 64)
}
