package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNextEpisodeName(t *testing.T) {
	s := NewFileStore(t.TempDir())
	date := time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC)

	name, err := s.NextEpisodeName("saints_and_seasons", date)
	if err != nil {
		t.Fatal(err)
	}
	if name != "podcasts/saints_and_seasons_2025_12_06.mp3" {
		t.Fatalf("got %q", name)
	}

	touch(t, s.Path(name))
	name, _ = s.NextEpisodeName("saints_and_seasons", date)
	if name != "podcasts/saints_and_seasons_2025_12_06_a.mp3" {
		t.Fatalf("got %q", name)
	}

	touch(t, s.Path(name))
	name, _ = s.NextEpisodeName("saints_and_seasons", date)
	if name != "podcasts/saints_and_seasons_2025_12_06_b.mp3" {
		t.Fatalf("got %q", name)
	}
}

func TestNextEpisodeNameExhausted(t *testing.T) {
	s := NewFileStore(t.TempDir())
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	touch(t, s.Path(EpisodeName("p", date)))
	for c := 'a'; c <= 'z'; c++ {
		touch(t, s.Path("podcasts/p_2025_01_01_"+string(c)+".mp3"))
	}
	if _, err := s.NextEpisodeName("p", date); !errors.Is(err, ErrNoFreeName) {
		t.Fatalf("expected ErrNoFreeName, got %v", err)
	}
}

func TestSaveAndDelete(t *testing.T) {
	s := NewFileStore(t.TempDir())
	src := filepath.Join(t.TempDir(), "episode.mp3")
	if err := os.WriteFile(src, []byte("ID3 audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := s.Save("podcasts/ep.mp3", src)
	if err != nil {
		t.Fatal(err)
	}
	if n != 9 || !s.Exists("podcasts/ep.mp3") {
		t.Fatalf("save wrote %d bytes, exists=%v", n, s.Exists("podcasts/ep.mp3"))
	}
	entries, _ := os.ReadDir(s.Path("podcasts"))
	if len(entries) != 1 {
		t.Fatalf("expected only the stored file, found %d entries", len(entries))
	}

	if err := s.Delete("podcasts/ep.mp3"); err != nil {
		t.Fatal(err)
	}
	if s.Exists("podcasts/ep.mp3") {
		t.Fatal("file still exists after delete")
	}
	if err := s.Delete("podcasts/ep.mp3"); err != nil {
		t.Fatalf("deleting a missing file: %v", err)
	}
}

func TestSaveMissingSource(t *testing.T) {
	s := NewFileStore(t.TempDir())
	if _, err := s.Save("podcasts/ep.mp3", "/nonexistent/file.mp3"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAsset(t *testing.T) {
	s := NewFileStore(t.TempDir())
	touch(t, filepath.Join(s.Root(), AssetsDir, "intro.mp3"))

	if got := s.Asset("intro.mp3"); got != filepath.Join(s.Root(), AssetsDir, "intro.mp3") {
		t.Fatalf("got %q", got)
	}
	if got := s.Asset("outro.mp3"); got != "" {
		t.Fatalf("missing asset should be empty, got %q", got)
	}
	if got := s.Asset(""); got != "" {
		t.Fatalf("empty name should be empty, got %q", got)
	}
}
