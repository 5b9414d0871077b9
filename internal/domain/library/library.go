// Package library lists and looks up the local audio files that can be queued.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a named file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that would escape the music directory.
	ErrInvalidName = errors.New("invalid file name")
)

// AllowedExtensions are the file types offered for queueing.
var AllowedExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".m4a":  true,
	".flac": true,
	".wav":  true,
}

// Library is a flat directory of audio files.
type Library struct {
	dir string
}

// New creates a library rooted at dir.
func New(dir string) *Library {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &Library{dir: abs}
}

// Dir returns the absolute music directory.
func (l *Library) Dir() string {
	return l.dir
}

// List returns the sorted names of playable files directly under the music directory.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read music dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if AllowedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Lookup returns the absolute path of name, which must be a plain file name
// inside the music directory.
func (l *Library) Lookup(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsAny(name, "\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	full := filepath.Join(l.dir, name)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, name)
	}
	return full, nil
}
