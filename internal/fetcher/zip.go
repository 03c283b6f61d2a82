package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractByExt extracts the members of a ZIP archive whose extension is one
// of exts (case-insensitive, with the dot) into destDir, flattened to their
// base names. Other members are skipped. Each requested extension must occur
// exactly once; the result maps the lower-case extension to the written path.
func ExtractByExt(zipPath, destDir string, exts ...string) (map[string]string, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	members := make(map[string]*zip.File, len(want))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if !want[ext] {
			continue
		}
		if prev, dup := members[ext]; dup {
			return nil, eris.Errorf("zip: %s holds both %s and %s", zipPath, prev.Name, f.Name)
		}
		members[ext] = f
	}
	for _, e := range exts {
		if members[strings.ToLower(e)] == nil {
			return nil, eris.Errorf("zip: %s has no %s member", zipPath, e)
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "zip: create dest dir")
	}
	out := make(map[string]string, len(members))
	for ext, f := range members {
		dest := filepath.Join(destDir, path.Base(f.Name))
		if err := extractMember(f, dest); err != nil {
			return nil, err
		}
		out[ext] = dest
	}
	return out, nil
}

// extractMember writes f to dest through a temporary file, so an
// interrupted extraction never leaves a truncated member behind.
func extractMember(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open member %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".extract-*")
	if err != nil {
		return eris.Wrap(err, "zip: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "zip: write %s", f.Name)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "zip: close %s", f.Name)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return eris.Wrapf(err, "zip: move %s into place", f.Name)
	}
	return nil
}
