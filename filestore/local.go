// Package filestore keeps prescription uploads on local disk.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/prescription/logic"
)

// DefaultURLPrefix is where the HTTP API serves stored uploads.
const DefaultURLPrefix = "/uploads"

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// Local writes each upload to its own randomly named file under dir.
type Local struct {
	dir       string
	urlPrefix string
	logger    *zap.Logger
}

// NewLocal creates dir when missing.
func NewLocal(dir, urlPrefix string, logger *zap.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is not set")
	}
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", dir, err)
	}
	return &Local{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/"), logger: logger}, nil
}

// Dir is the directory uploads are written to.
func (l *Local) Dir() string {
	return l.dir
}

// URLPrefix is the path prefix of returned file URLs.
func (l *Local) URLPrefix() string {
	return l.urlPrefix
}

func (l *Local) Put(ctx context.Context, u logic.Upload) (logic.FileRef, error) {
	if err := ctx.Err(); err != nil {
		return logic.FileRef{}, err
	}
	mime := logic.NormalizeMIME(u.MIMEType)
	kind, ok := logic.KindOf(mime)
	if !ok {
		return logic.FileRef{}, fmt.Errorf("unsupported media type %q", u.MIMEType)
	}

	name := uuid.NewString() + extensions[mime]
	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return logic.FileRef{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(u.Data); err != nil {
		tmp.Close()
		return logic.FileRef{}, fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return logic.FileRef{}, fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, name)); err != nil {
		return logic.FileRef{}, fmt.Errorf("store upload: %w", err)
	}

	l.logger.Debug("upload stored", zap.String("name", name), zap.Int("size", len(u.Data)))
	return logic.FileRef{
		URL:      path.Join(l.urlPrefix, name),
		MIMEType: mime,
		Kind:     kind,
		Size:     int64(len(u.Data)),
		Backend:  logic.BackendLocal,
	}, nil
}

// Delete removes the file behind ref. Missing files are not an error.
func (l *Local) Delete(_ context.Context, ref logic.FileRef) error {
	if ref.Backend != logic.BackendLocal {
		return fmt.Errorf("cannot delete %s file %s", ref.Backend, ref.URL)
	}
	name := path.Base(ref.URL)
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid file reference %q", ref.URL)
	}
	if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload %s: %w", name, err)
	}
	return nil
}
