package catalog

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

var DefaultExtensions = []string{".jpg", ".png", ".webp"}

const DefaultMaxScan = 50

// Scanner discovers numbered backgrounds (1.jpg, 2.png, ...) in a directory.
// Results are cached until Invalidate is called or Watch sees a change.
type Scanner struct {
	Dir        string
	URLPrefix  string
	Extensions []string
	MaxScan    int

	mu     sync.Mutex
	cached []Entry
	valid  bool
}

func NewScanner(dir, urlPrefix string) *Scanner {
	return &Scanner{
		Dir:        dir,
		URLPrefix:  urlPrefix,
		Extensions: DefaultExtensions,
		MaxScan:    DefaultMaxScan,
	}
}

func (s *Scanner) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid {
		return s.cached, nil
	}
	entries, err := s.Scan()
	if err != nil {
		return nil, err
	}
	s.cached, s.valid = entries, true
	log.Ctx(ctx).Debug().Str("dir", s.Dir).Int("count", len(entries)).Msg("scanned backgrounds")
	return entries, nil
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// Scan probes 1..MaxScan in extension priority order and stops at the first
// index with no readable image.
func (s *Scanner) Scan() ([]Entry, error) {
	if _, err := os.Stat(s.Dir); err != nil {
		return nil, &PersistenceError{Op: "scan backgrounds", Err: err}
	}
	var entries []Entry
	for i := 1; i <= s.MaxScan; i++ {
		name, cfg, ok := s.probe(i)
		if !ok {
			break
		}
		entries = append(entries, Entry{
			ID:           fmt.Sprintf("fondo-%d", i),
			Name:         fmt.Sprintf("Fondo %d", i),
			ImageRef:     path.Join(s.URLPrefix, name),
			DisplayOrder: i,
			Active:       true,
			Width:        cfg.Width,
			Height:       cfg.Height,
		})
	}
	return entries, nil
}

func (s *Scanner) probe(n int) (string, image.Config, bool) {
	for _, ext := range s.Extensions {
		name := fmt.Sprintf("%d%s", n, ext)
		cfg, err := decodeConfig(filepath.Join(s.Dir, name))
		if err != nil {
			continue
		}
		return name, cfg, true
	}
	return "", image.Config{}, false
}

func decodeConfig(filePath string) (image.Config, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}

// Watch invalidates the cache whenever the directory changes, until ctx is done.
func (s *Scanner) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.Dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) ||
					event.Has(fsnotify.Rename) || event.Has(fsnotify.Write) {
					log.Ctx(ctx).Debug().Str("file", event.Name).Msg("backgrounds changed")
					s.Invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Ctx(ctx).Error().Err(err).Str("dir", s.Dir).Msg("background watcher error")
			}
		}
	}()
	return nil
}
