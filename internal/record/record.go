// Package record computes and writes the post-install RECORD, INSTALLER
// and direct_url.json files (spec.md section 4.8).
package record

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// InstallerName is written to dist-info/INSTALLER and used as the RECORD
// entry's accompanying marker, identifying this tool as the installer.
const InstallerName = "wheelport"

// Entry is a single row of the post-install RECORD: an installed file's
// path relative to its install root, its content hash, and its size.
// RECORD and INSTALLER are recorded with an empty hash and an empty size
// column (the NoHash field distinguishes "zero bytes" from "no hash recorded").
type Entry struct {
	Path    string
	Hash    string // "sha256=<urlsafe-base64-nopad>", empty for self-referential entries
	Size    int64
	NoHash  bool // true for RECORD itself and other entries recorded with empty hash/size
}

// HashFile computes the SHA-256 digest of the file at path and returns it
// pre-formatted as "sha256=<urlsafe-base64-nopad>" alongside the byte size,
// per spec.md section 3.
func HashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return HashReader(f)
}

// HashReader computes the SHA-256 digest of r, consuming it fully, in the
// same format as HashFile.
func HashReader(r io.Reader) (hash string, size int64, err error) {
	h := sha256.New()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing: %w", err)
	}

	digest := "sha256=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))

	return digest, n, nil
}

// Write emits the final RECORD CSV at distInfoDir/RECORD: comma-delimited,
// minimal quoting, LF line terminator, no header, per spec.md section 4.8.
// RECORD itself must be included in entries with NoHash set; Write does not
// add it automatically, since the caller already knows its own relative
// path (it may differ depending on whether paths are site-packages- or
// store-relative).
func Write(distInfoDir string, entries []Entry) error {
	recordPath := filepath.Join(distInfoDir, "RECORD")

	f, err := os.Create(recordPath)
	if err != nil {
		return fmt.Errorf("creating RECORD: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	w.UseCRLF = false

	for _, e := range entries {
		row := []string{e.Path, e.Hash, ""}
		if !e.NoHash {
			row[2] = fmt.Sprintf("%d", e.Size)
		}

		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing RECORD entry %s: %w", e.Path, err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing RECORD: %w", err)
	}

	return f.Close()
}

// WriteInstaller writes dist-info/INSTALLER naming this tool.
func WriteInstaller(distInfoDir string) error {
	path := filepath.Join(distInfoDir, "INSTALLER")

	return os.WriteFile(path, []byte(InstallerName+"\n"), 0o644)
}

// DirectURL is the content of dist-info/direct_url.json, per the direct URL
// origin specification referenced in spec.md section 4.8.
type DirectURL struct {
	URL     string         `json:"url"`
	DirInfo *DirectURLInfo `json:"dir_info,omitempty"`
}

// DirectURLInfo describes whether the local-path source was installed
// editable.
type DirectURLInfo struct {
	Editable bool `json:"editable,omitempty"`
}

// WriteDirectURL writes dist-info/direct_url.json when the install source
// was a local path (as opposed to, e.g., a package index — which this
// engine never talks to, but a caller may still want to record where the
// wheel file came from).
func WriteDirectURL(distInfoDir, sourcePath string, editable bool) error {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return fmt.Errorf("resolving source path %s: %w", sourcePath, err)
	}

	du := DirectURL{
		URL:     "file://" + filepath.ToSlash(abs),
		DirInfo: &DirectURLInfo{Editable: editable},
	}

	data, err := json.Marshal(du)
	if err != nil {
		return fmt.Errorf("encoding direct_url.json: %w", err)
	}

	path := filepath.Join(distInfoDir, "direct_url.json")

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing direct_url.json: %w", err)
	}

	return nil
}
