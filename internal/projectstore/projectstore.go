// Package projectstore persists project descriptors in a TOML file.
// Writes are last-writer-wins; the file may also be edited by hand.
package projectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/loykin/devstack/internal/project"
)

var ErrNotFound = errors.New("project not found")

type Store interface {
	Load() ([]project.Descriptor, error)
	Get(id string) (project.Descriptor, error)
	Save(d project.Descriptor) error
	Delete(id string) error
}

type document struct {
	Projects []project.Descriptor `toml:"projects"`
}

// File is a Store backed by one TOML document.
type File struct {
	path string
	mu   sync.Mutex
}

func New(path string) *File { return &File{path: path} }

func (f *File) Path() string { return f.path }

// Load returns every descriptor ordered by name then id. A missing file is
// an empty store.
func (f *File) Load() ([]project.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() ([]project.Descriptor, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc document
	if err := toml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	sort.SliceStable(doc.Projects, func(i, j int) bool {
		a, b := doc.Projects[i], doc.Projects[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return doc.Projects, nil
}

func (f *File) Get(id string) (project.Descriptor, error) {
	all, err := f.Load()
	if err != nil {
		return project.Descriptor{}, err
	}
	for _, d := range all {
		if d.ID == id {
			return d, nil
		}
	}
	return project.Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save inserts or replaces d by id.
func (f *File) Save(d project.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range all {
		if all[i].ID == d.ID {
			all[i], replaced = d, true
		}
	}
	if !replaced {
		all = append(all, d)
	}
	return f.write(all)
}

func (f *File) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return err
	}
	out := all[:0]
	for _, d := range all {
		if d.ID != id {
			out = append(out, d)
		}
	}
	if len(out) == len(all) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return f.write(out)
}

// write replaces the file atomically.
func (f *File) write(all []project.Descriptor) error {
	b, err := toml.Marshal(document{Projects: all})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Watch calls onChange with the reloaded descriptors whenever the file is
// written, created or replaced. Bursts of events within debounce collapse
// into one reload. It blocks until ctx is done.
func (f *File) Watch(ctx context.Context, debounce time.Duration, log *slog.Logger, onChange func([]project.Descriptor)) error {
	if log == nil {
		log = slog.Default()
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	// watch the directory: atomic saves replace the file
	if err := w.Add(dir); err != nil {
		return err
	}

	reload := func() {
		all, err := f.Load()
		if err != nil {
			log.Warn("project file reload failed", "path", f.path, "error", err)
			return
		}
		onChange(all)
	}
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	base := filepath.Base(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			relevant := ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) || ev.Op.Has(fsnotify.Remove)
			if filepath.Base(ev.Name) != base || !relevant {
				continue
			}
			log.Debug("project file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.AfterFunc(debounce, reload)
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("project file watcher error", "error", err)
		}
	}
}
