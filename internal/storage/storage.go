package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ab/release-server/internal/mimetype"
)

var (
	// ErrRejectedPath is returned for names that are empty, absolute, or
	// resolve outside the base directory.
	ErrRejectedPath = errors.New("rejected path")
	// ErrNotFound is returned when the resolved path holds no regular file.
	ErrNotFound = errors.New("file not found")
)

// Outcome is the result class of a Lookup.
type Outcome string

const (
	Found    Outcome = "found"
	NotFound Outcome = "not_found"
	Error    Outcome = "error"
)

// File describes a stored file at request time. Nothing here is cached.
type File struct {
	Path        string
	DisplayName string
	MIMEType    string
	Size        int64
	ModTime     time.Time
}

// Result carries exactly one Outcome. File is set only for Found; Err holds
// the cause for NotFound and Error and is meant for logs, not for clients.
type Result struct {
	Outcome Outcome
	File    *File
	Err     error
}

type Storage struct {
	// BasePath is the canonical (absolute, symlink-free) base directory.
	BasePath string
}

// New creates basePath if needed and canonicalizes it.
func New(basePath string) (*Storage, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.New("storage: empty base path")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create base dir: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: canonicalize base dir: %w", err)
	}
	return &Storage{BasePath: canon}, nil
}

// Resolve maps a caller-supplied name to a canonical path strictly inside
// the base directory. Both the lexical join and the symlink-resolved path
// must stay inside the base.
func (s *Storage) Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("%w: empty or invalid name", ErrRejectedPath)
	}
	if isAbsName(name) {
		return "", fmt.Errorf("%w: absolute name", ErrRejectedPath)
	}

	joined := filepath.Join(s.BasePath, filepath.FromSlash(name))
	if !within(s.BasePath, joined) {
		return "", fmt.Errorf("%w: escapes base dir", ErrRejectedPath)
	}

	canon, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRejectedPath, err)
	}
	if !within(s.BasePath, canon) {
		return "", fmt.Errorf("%w: link escapes base dir", ErrRejectedPath)
	}
	return canon, nil
}

// Lookup resolves name and checks that a regular file exists there.
// Rejected names are reported as NotFound so callers cannot tell a
// traversal attempt from an ordinary miss.
func (s *Storage) Lookup(name string) Result {
	path, err := s.Resolve(name)
	if err != nil {
		return Result{Outcome: NotFound, Err: err}
	}

	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Outcome: NotFound, Err: ErrNotFound}
		}
		return Result{Outcome: Error, Err: err}
	}
	if !stat.Mode().IsRegular() {
		return Result{Outcome: NotFound, Err: fmt.Errorf("%w: not a regular file", ErrNotFound)}
	}

	return Result{
		Outcome: Found,
		File: &File{
			Path:        path,
			DisplayName: filepath.Base(path),
			MIMEType:    mimetype.Classify(name),
			Size:        stat.Size(),
			ModTime:     stat.ModTime(),
		},
	}
}

// Open opens a file previously returned by Lookup.
func (s *Storage) Open(f *File) (*os.File, error) {
	if f == nil || !within(s.BasePath, f.Path) {
		return nil, ErrRejectedPath
	}
	return os.Open(f.Path)
}

func isAbsName(name string) bool {
	return filepath.IsAbs(name) ||
		filepath.VolumeName(name) != "" ||
		strings.HasPrefix(name, "/") ||
		strings.HasPrefix(name, `\`)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
