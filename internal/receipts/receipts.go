// Package receipts keeps uploaded files (payment receipts, product images) on local disk.
package receipts

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Keoroanthony/orderflow/internal/apperr"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "receipts").Logger()

const MaxSize = 10 << 20

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// SanitizeName reduces an uploaded file name to a safe base name.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "receipt"
	}
	return name
}

// Save writes the upload under a unique name and returns that name.
func (s *Store) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxSize {
		return "", fmt.Errorf("%w: upload larger than %d bytes", apperr.ErrValidation, MaxSize)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString()[:8] + "_" + SanitizeName(fh.Filename)
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	logger.Info().Str("file", name).Int64("size", fh.Size).Msg("upload stored")
	return name, nil
}

// Remove deletes a stored file; a missing file is not an error.
func (s *Store) Remove(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, SanitizeName(name))); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("file", name).Msg("failed to remove upload")
	}
}
