// Package storage keeps uploaded blobs on the local filesystem and hands out
// the public URL they are served under.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"vibeconnect/errs"
	"vibeconnect/utils"
)

const (
	MaxFileSize = 50 << 20
	URLPrefix   = "/files/"
)

type Local struct {
	dir    string
	create func(path string) (io.WriteCloser, error)
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// NewLocal creates dir if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolve upload dir")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, pkgerrors.Wrap(err, "create upload dir")
	}
	return &Local{dir: abs, create: createFile}, nil
}

type Blob struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType,omitempty"`
}

// Save stores r under a fresh name that keeps the extension of originalName.
func (l *Local) Save(r io.Reader, originalName, mimeType string) (*Blob, error) {
	filename := utils.GenerateUUID() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(l.dir, filename)

	out, err := l.create(path)
	if err != nil {
		return nil, errs.Internal("failed to save file", err)
	}

	n, err := io.Copy(out, io.LimitReader(r, MaxFileSize+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, errs.Internal("failed to save file", err)
	}
	if n > MaxFileSize {
		os.Remove(path)
		return nil, errs.InvalidInput("file too large (max 50MB)")
	}

	return &Blob{URL: URLPrefix + filename, Name: originalName, Size: n, MimeType: mimeType}, nil
}

// Path resolves a served filename, refusing anything that escapes the upload dir.
func (l *Local) Path(filename string) (string, error) {
	clean := filepath.Clean(filename)
	if clean != filepath.Base(clean) || clean == "." || clean == ".." || clean == string(filepath.Separator) {
		return "", errs.InvalidInput("invalid filename")
	}
	path := filepath.Join(l.dir, clean)
	if !strings.HasPrefix(path, l.dir+string(filepath.Separator)) {
		return "", errs.InvalidInput("invalid file path")
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", errs.NotFound("file not found")
	}
	return path, nil
}
