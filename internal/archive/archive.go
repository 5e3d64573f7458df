// Package archive unpacks uploaded ZIP bundles and locates the PDF
// documents inside them.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/piwi3910/WaybillPack/internal/model"
)

// pdfExt is the only document extension the pipeline consumes.
const pdfExt = ".pdf"

// IsPDF reports whether name has a PDF extension, ignoring case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), pdfExt)
}

// SortByName orders document paths by file name, then by full path.
// A path listed more than once is kept once.
func SortByName(paths []string) []string {
	sorted := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		key := filepath.Clean(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, bj := filepath.Base(sorted[i]), filepath.Base(sorted[j])
		if bi != bj {
			return bi < bj
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}

// ListPDFs returns the PDF files directly inside dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return SortByName(out), nil
}

// ExtractPDFs unpacks every PDF entry of the ZIP at zipPath into destDir and
// returns the written paths sorted by name. Other entries are ignored.
func ExtractPDFs(zipPath, destDir string, limits model.ArchiveConfig) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidArchive, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extract directory: %w", err)
	}

	var out []string
	var total int64
	seen := make(map[string]bool)
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !IsPDF(f.Name) || isMetadataEntry(f.Name) {
			continue
		}
		if limits.MaxEntries > 0 && len(out) >= limits.MaxEntries {
			return nil, fmt.Errorf("%w: more than %d documents", model.ErrInvalidArchive, limits.MaxEntries)
		}

		target, err := safeTarget(destDir, f.Name)
		if err != nil {
			return nil, err
		}
		// Repeated entry names extract once; the first one wins.
		if seen[target] {
			continue
		}
		seen[target] = true

		n, err := extractFile(f, target, limits.MaxEntryBytes)
		if err != nil {
			return nil, err
		}
		total += n
		if limits.MaxTotalBytes > 0 && total > limits.MaxTotalBytes {
			return nil, fmt.Errorf("%w: expands beyond %d bytes", model.ErrInvalidArchive, limits.MaxTotalBytes)
		}
		out = append(out, target)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no PDF documents found", model.ErrInvalidArchive)
	}
	return SortByName(out), nil
}

// isMetadataEntry filters resource-fork files added by macOS archivers.
func isMetadataEntry(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._")
}

// safeTarget maps an archive entry name to a path inside destDir,
// rejecting names that escape it.
func safeTarget(destDir, name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: unsafe entry name %q", model.ErrInvalidArchive, name)
	}
	target := filepath.Join(destDir, filepath.FromSlash(clean))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: unsafe entry name %q", model.ErrInvalidArchive, name)
	}
	return target, nil
}

var errEntryTooLarge = errors.New("entry too large")

func extractFile(f *zip.File, target string, maxBytes int64) (int64, error) {
	if maxBytes > 0 && f.UncompressedSize64 > uint64(maxBytes) {
		return 0, fmt.Errorf("%w: %s: %v", model.ErrInvalidArchive, f.Name, errEntryTooLarge)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", model.ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var src io.Reader = rc
	if maxBytes > 0 {
		// The header size can lie; read one byte past the limit to catch it.
		src = io.LimitReader(rc, maxBytes+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return n, fmt.Errorf("%w: %s: %v", model.ErrInvalidArchive, f.Name, err)
	}
	if maxBytes > 0 && n > maxBytes {
		return n, fmt.Errorf("%w: %s: %v", model.ErrInvalidArchive, f.Name, errEntryTooLarge)
	}
	return n, nil
}
