package datacache

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

//go:embed example-record.json
var exampleRecord []byte

// ErrInvalidArgument is matched (errors.Is) by errors caused by bad caller input,
// such as a missing or unknown target file.
var ErrInvalidArgument = errors.New("invalid argument")

type argError struct {
	msg string
}

func (e *argError) Error() string        { return e.msg }
func (e *argError) Is(target error) bool { return target == ErrInvalidArgument }

// InvalidArgument returns an error carrying msg verbatim that matches ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return &argError{msg: fmt.Sprintf(format, args...)}
}

// DefaultDir is <home>/.cache/boutiques/data.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "boutiques", "data"), nil
}

// Manager owns a directory of execution-record files.
type Manager struct {
	dir    string
	hidden []func(name string) bool
}

// Open returns a Manager for dir, creating the directory tree if needed.
func Open(dir string) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("data cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data cache %s: %w", dir, err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) Dir() string { return m.dir }

// Hide excludes names matching match from every listing and lookup, and from
// Discard. Used for bookkeeping files that may share the directory.
func (m *Manager) Hide(match func(name string) bool) {
	m.hidden = append(m.hidden, match)
}

func (m *Manager) isHidden(name string) bool {
	for _, match := range m.hidden {
		if match(name) {
			return true
		}
	}
	return false
}

// Path returns the on-disk path of a cached file. It does not check existence.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name)
}

// Files lists the regular files in the cache, sorted by name.
func (m *Manager) Files() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || m.isHidden(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether name is a regular file in the cache.
func (m *Manager) Exists(name string) bool {
	if strings.TrimSpace(name) == "" || m.isHidden(name) {
		return false
	}
	fi, err := os.Stat(m.Path(name))
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// Require is Exists in error form. Discard and publish share its message.
func (m *Manager) Require(name string) error {
	if !m.Exists(name) {
		return InvalidArgument("File %s does not exist in the data cache", name)
	}
	return nil
}

func (m *Manager) Read(name string) ([]byte, error) {
	if err := m.Require(name); err != nil {
		return nil, err
	}
	return os.ReadFile(m.Path(name))
}

// Inspect writes either one record (showExample) or a summary of the cache to w.
// With showExample, the first cached file is written verbatim, or the bundled
// example record when the cache is empty.
func (m *Manager) Inspect(w io.Writer, showExample bool) error {
	files, err := m.Files()
	if err != nil {
		return err
	}

	if showExample {
		if len(files) == 0 {
			return writeWithNewline(w, exampleRecord)
		}
		b, err := os.ReadFile(m.Path(files[0]))
		if err != nil {
			return err
		}
		return writeWithNewline(w, b)
	}

	fmt.Fprintf(w, "There are %d unpublished files in the cache\n", len(files))
	for _, f := range files {
		fmt.Fprintln(w, f)
	}
	return nil
}

// InspectLong is the summary form of Inspect with size and age columns.
func (m *Manager) InspectLong(w io.Writer, now time.Time) error {
	files, err := m.Files()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "There are %d unpublished files in the cache\n", len(files))
	for _, f := range files {
		fi, err := os.Stat(m.Path(f))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", f, humanize.Bytes(uint64(fi.Size())), humanize.RelTime(fi.ModTime(), now, "ago", "from now"))
	}
	return nil
}

// Discard removes one file, or every entry (subdirectories and links included)
// when all is set. Exactly one of file and
// all must be given. A path is reduced to its base name first.
func (m *Manager) Discard(w io.Writer, file string, all bool) error {
	name := fileName(file)
	if !all && name == "" {
		return InvalidArgument("Must indicate a file to discard")
	}
	if all && name != "" {
		return InvalidArgument("Cannot discard a single file and all files at once")
	}

	if all {
		entries, err := os.ReadDir(m.dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if m.isHidden(e.Name()) {
				continue
			}
			if err := os.RemoveAll(m.Path(e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		fmt.Fprintln(w, "All files have been removed from the data cache")
		return nil
	}

	if err := m.Require(name); err != nil {
		return err
	}
	if err := m.Remove(name); err != nil {
		return err
	}
	fmt.Fprintf(w, "File %s has been removed from the data cache\n", name)
	return nil
}

// Remove deletes a single cached file without reporting.
func (m *Manager) Remove(name string) error {
	if err := m.Require(name); err != nil {
		return err
	}
	return os.Remove(m.Path(name))
}

func fileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return filepath.Base(s)
}

func writeWithNewline(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	if len(b) == 0 || b[len(b)-1] != '\n' {
		_, err := fmt.Fprintln(w)
		return err
	}
	return nil
}
