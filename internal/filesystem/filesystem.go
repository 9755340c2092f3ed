// Package filesystem routes file access through a swappable afero backend
// so that tests can run against memory.
package filesystem

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Stdout names standard output as a destination.
const Stdout = "-"

var backend = afero.Afero{Fs: afero.NewOsFs()}

// API returns the active afero.Afero instance for filesystem interaction.
func API() afero.Afero {
	return backend
}

// SetOsFs restores the filesystem backend to the native operating system implementation.
func SetOsFs() {
	backend = afero.Afero{Fs: afero.NewOsFs()}
}

// SetMemMapFs switches to an in-memory backend.
func SetMemMapFs() {
	backend = afero.Afero{Fs: afero.NewMemMapFs()}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// CreateOutput opens the destination of a download, truncating an existing
// file. Stdout selects standard output, which is not closed.
func CreateOutput(name string) (io.WriteCloser, error) {
	if name == Stdout {
		return nopCloser{os.Stdout}, nil
	}
	if dir := path.Dir(name); dir != "." {
		if err := backend.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	f, err := backend.Create(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", name, err)
	}
	return f, nil
}

// OpenInput opens a file for reading. Stdout doubles as standard input.
func OpenInput(name string) (io.ReadCloser, error) {
	if name == Stdout {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := backend.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// OutputName derives a file name from a media path: its last element with
// the extension replaced by ".flv".
func OutputName(mediaPath string) string {
	p := mediaPath
	if u, err := url.Parse(mediaPath); err == nil {
		p = u.Path
	}
	base := path.Base(strings.TrimRight(p, "/"))
	if base == "." || base == "/" || base == "" {
		base = "output"
	}
	return strings.TrimSuffix(base, path.Ext(base)) + ".flv"
}
