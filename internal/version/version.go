package version

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// MaxDescriptorSize bounds how much of the descriptor file is read.
const MaxDescriptorSize = 1 << 20

var (
	// ErrRead wraps failures to open or read the descriptor file.
	ErrRead = errors.New("read version descriptor")
	// ErrDecode wraps malformed descriptor contents.
	ErrDecode = errors.New("decode version descriptor")
)

// Descriptor is the current release as published to updater clients.
// The JSON tags are the response shape; the on-disk shape is fileDescriptor.
type Descriptor struct {
	LatestVersion string `json:"latestVersion"`
	Description   string `json:"description"`
	DownloadURL   string `json:"downloadUrl"`
}

type fileDescriptor struct {
	LatestVersion string `json:"latest_version"`
	Description   string `json:"description"`
	DownloadURL   string `json:"download_url"`
}

// Loader reads the descriptor file on every call.
type Loader struct {
	Fs   afero.Fs
	Path string
}

// NewLoader returns a Loader backed by the OS filesystem.
func NewLoader(path string) *Loader {
	return &Loader{Fs: afero.NewOsFs(), Path: path}
}

// Load reads and decodes the descriptor. Unknown keys are ignored and
// missing keys stay empty.
func (l *Loader) Load() (Descriptor, error) {
	f, err := l.Fs.Open(l.Path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxDescriptorSize+1))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	if len(data) > MaxDescriptorSize {
		return Descriptor{}, fmt.Errorf("%w: file exceeds %d bytes", ErrRead, MaxDescriptorSize)
	}
	return Decode(data)
}

// Decode parses a single JSON object in the on-disk descriptor format.
func Decode(data []byte) (Descriptor, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Descriptor{}, fmt.Errorf("%w: expected a JSON object", ErrDecode)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var fd fileDescriptor
	if err := dec.Decode(&fd); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Descriptor{}, fmt.Errorf("%w: unexpected trailing data", ErrDecode)
	}

	return Descriptor{
		LatestVersion: fd.LatestVersion,
		Description:   fd.Description,
		DownloadURL:   fd.DownloadURL,
	}, nil
}

// Encode renders d in the on-disk descriptor format.
func Encode(d Descriptor) ([]byte, error) {
	data, err := json.MarshalIndent(fileDescriptor(d), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save replaces the descriptor file with d. The new contents are written to
// a temporary file in the same directory and renamed into place, so a
// concurrent Load sees either the old or the new descriptor.
func (l *Loader) Save(d Descriptor) error {
	data, err := Encode(d)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.Path)
	if err := l.Fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save version descriptor: %w", err)
	}
	tmp, err := afero.TempFile(l.Fs, dir, ".descriptor-*")
	if err != nil {
		return fmt.Errorf("save version descriptor: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		l.Fs.Remove(tmp.Name())
		return fmt.Errorf("save version descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		l.Fs.Remove(tmp.Name())
		return fmt.Errorf("save version descriptor: %w", err)
	}
	if err := l.Fs.Chmod(tmp.Name(), 0o644); err != nil {
		l.Fs.Remove(tmp.Name())
		return fmt.Errorf("save version descriptor: %w", err)
	}
	if err := l.Fs.Rename(tmp.Name(), l.Path); err != nil {
		l.Fs.Remove(tmp.Name())
		return fmt.Errorf("save version descriptor: %w", err)
	}
	return nil
}
