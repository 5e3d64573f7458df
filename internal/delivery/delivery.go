// Package delivery hands a finished document to its recipient.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/piwi3910/WaybillPack/internal/model"
)

// Artifact is a finished output document on local disk.
type Artifact struct {
	Path   string // Local file holding the document
	Name   string // File name presented to the recipient
	Result *model.BatchResult
}

// Receipt describes where an artifact ended up.
type Receipt struct {
	Location  string    `json:"location"`
	URL       string    `json:"url,omitempty"`
	Size      int64     `json:"size"`
	Caption   string    `json:"caption"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Deliverer publishes an artifact.
type Deliverer interface {
	Deliver(ctx context.Context, a Artifact) (Receipt, error)
}

// FileDeliverer copies artifacts to a local path. When Dest is an existing
// directory the artifact keeps its name inside it.
type FileDeliverer struct {
	Dest string
}

func NewFileDeliverer(dest string) *FileDeliverer {
	return &FileDeliverer{Dest: dest}
}

func (d *FileDeliverer) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	target := d.Dest
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, a.Name)
	}

	if same, err := samePath(a.Path, target); err == nil && same {
		info, err := os.Stat(target)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{Location: target, Size: info.Size(), Caption: Caption(a.Result)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Receipt{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	n, err := copyFile(a.Path, target)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to deliver %s: %w", a.Name, err)
	}
	return Receipt{Location: target, Size: n, Caption: Caption(a.Result)}, nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Caption summarizes a successful batch for the recipient.
func Caption(result *model.BatchResult) string {
	if result == nil {
		return "Merged waybills ready"
	}
	caption := fmt.Sprintf("Merged waybills ready: %d waybills from %d pages on %d sheets",
		result.TotalWaybills(), result.TotalPages(), len(result.Sheets))
	if n := len(result.Failures); n > 0 {
		caption += fmt.Sprintf(" (%d documents skipped)", n)
	}
	return caption
}

// FailureMessage turns a pipeline error into a message for the recipient.
func FailureMessage(err error) string {
	var rerr *model.RasterizationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrEmptyResult):
		return "No waybills found: every page of every document was blank"
	case errors.Is(err, model.ErrInvalidArchive):
		return fmt.Sprintf("The upload could not be read: %v", err)
	case errors.As(err, &rerr):
		return fmt.Sprintf("Could not read document %s", rerr.Document)
	case errors.Is(err, context.DeadlineExceeded):
		return "Processing took too long and was stopped"
	default:
		return fmt.Sprintf("Error processing file: %v", err)
	}
}
