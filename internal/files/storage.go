// Package files is the blob store for note PDFs. Seller uploads land in
// the pending root and move to the published root once an administrator
// approves them. References are bare file names; the store never exposes
// absolute paths to callers.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DemidSergeev/notes-bot/internal/domain"
)

// Storage keeps pending and published blobs under two directory roots.
type Storage struct {
	pendingDir   string
	publishedDir string
}

// NewStorage creates both roots if needed.
func NewStorage(pendingDir, publishedDir string) (*Storage, error) {
	for _, dir := range []string{pendingDir, publishedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("files: create dir %s: %w", dir, err)
		}
	}
	return &Storage{pendingDir: pendingDir, publishedDir: publishedDir}, nil
}

// StorePending writes a seller upload into the pending root.
func (s *Storage) StorePending(data []byte, name string) (string, error) {
	name = SanitizeName(name)
	if name == "" {
		return "", fmt.Errorf("files: empty file name")
	}
	path := filepath.Join(s.pendingDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("files: store pending %s: %w", name, err)
	}
	return name, nil
}

// Read returns the bytes of a published blob.
func (s *Storage) Read(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.publishedDir, SanitizeName(ref)))
	if err != nil {
		return nil, fmt.Errorf("files: read %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether a published blob is present.
func (s *Storage) Exists(ref string) bool {
	_, err := os.Stat(filepath.Join(s.publishedDir, SanitizeName(ref)))
	return err == nil
}

// PendingExists reports whether a pending blob is present.
func (s *Storage) PendingExists(ref string) bool {
	_, err := os.Stat(filepath.Join(s.pendingDir, SanitizeName(ref)))
	return err == nil
}

// Move promotes a pending blob into the published root and returns the
// published reference.
func (s *Storage) Move(pendingRef string) (string, error) {
	name := SanitizeName(pendingRef)
	src := filepath.Join(s.pendingDir, name)
	dst := filepath.Join(s.publishedDir, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("files: move %s: %w", pendingRef, err)
	}
	return name, nil
}

// PublishedPath resolves a published reference to a filesystem path for
// the transport to stream from.
func (s *Storage) PublishedPath(ref string) string {
	return filepath.Join(s.publishedDir, SanitizeName(ref))
}

// ListPending returns the names of all pending blobs, sorted by the
// filesystem's directory order.
func (s *Storage) ListPending() ([]string, error) {
	entries, err := os.ReadDir(s.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("files: list pending: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// SanitizeName strips path separators and whitespace from a file name so
// references cannot escape the storage roots.
func SanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// SubmissionName derives the deterministic pending file name for a sell
// upload from the chosen course, subject, seller, and upload time.
func SubmissionName(year domain.CourseYear, subject string, sellerID int64, ts time.Time) string {
	base := fmt.Sprintf("year%d__%s__user%d__%d.pdf", year, subject, sellerID, ts.Unix())
	return SanitizeName(base)
}

// IsDocumentName reports whether the declared file name has a recognized
// document extension. Only PDF submissions are accepted.
func IsDocumentName(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".pdf")
}
