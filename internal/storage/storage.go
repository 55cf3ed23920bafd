// Package storage keeps episode audio and show music under the media root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PodcastsDir is the media-relative directory episode audio is stored in.
const PodcastsDir = "podcasts"

// AssetsDir is the media-relative directory holding intro and outro music.
const AssetsDir = "podcast_assets"

// ErrNoFreeName is returned when every suffixed file name for a date is taken.
var ErrNoFreeName = errors.New("no free file name")

// FileStore stores files on the local disk keyed by media-relative path.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the media root directory.
func (s *FileStore) Root() string { return s.root }

// Path returns the absolute path for a media-relative name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Exists reports whether name is stored.
func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Save copies the file at src into the store under name and returns the
// number of bytes written. The copy goes through a temp file so a partial
// write never appears under name.
func (s *FileStore) Save(name, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	dest := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	n, err := io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("storing %s: %w", name, err)
	}
	return n, nil
}

// Delete removes name. A missing file is not an error.
func (s *FileStore) Delete(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// EpisodeName is the media-relative file name for a date without collision
// handling: podcasts/{prefix}_{YYYY_MM_DD}.mp3.
func EpisodeName(prefix string, date time.Time) string {
	return PodcastsDir + "/" + prefix + "_" + date.Format("2006_01_02") + ".mp3"
}

// NextEpisodeName returns the first free media-relative file name for date,
// trying the plain name and then suffixes _a through _z.
func (s *FileStore) NextEpisodeName(prefix string, date time.Time) (string, error) {
	name := EpisodeName(prefix, date)
	if !s.Exists(name) {
		return name, nil
	}
	base := strings.TrimSuffix(name, ".mp3")
	for c := 'a'; c <= 'z'; c++ {
		name = fmt.Sprintf("%s_%c.mp3", base, c)
		if !s.Exists(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoFreeName, base)
}

// Asset returns the absolute path of a music asset, or "" when filename is
// empty or the file is missing.
func (s *FileStore) Asset(filename string) string {
	if strings.TrimSpace(filename) == "" {
		return ""
	}
	p := filepath.Join(s.root, AssetsDir, filepath.Base(filename))
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
