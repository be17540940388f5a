package cards

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Registry holds the card to source mappings, backed by a YAML file that
// is meant to stay editable by hand. Writes replace the whole file through
// a rename, so a reader never sees a half written mapping set.
type Registry struct {
	path string

	mu       sync.RWMutex
	mappings map[string]Mapping
}

type registryFile struct {
	Cards map[string]Mapping `yaml:"cards"`
}

// Open loads the registry from path, creating an empty one if the file
// does not exist yet.
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:     path,
		mappings: make(map[string]Mapping),
	}
	if err := r.Reload(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logrus.Infof("No card registry at %v, starting empty", path)
	}
	return r, nil
}

// Reload replaces the in-memory mappings with the current file contents.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse card registry: %w", err)
	}

	mappings := make(map[string]Mapping, len(f.Cards))
	for id, m := range f.Cards {
		m.ID = id
		if err := m.Source.Validate(); err != nil {
			logrus.Warnf("Skipping card %v: %v", id, err)
			continue
		}
		mappings[id] = m
	}

	r.mu.Lock()
	r.mappings = mappings
	r.mu.Unlock()
	return nil
}

// Lookup resolves a card ID to its audio source.
func (r *Registry) Lookup(id string) (AudioSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappings[id]
	if !ok {
		return AudioSource{}, fmt.Errorf("card %v: %w", id, ErrUnknownCard)
	}
	return m.Source, nil
}

// Get returns the full mapping for a card.
func (r *Registry) Get(id string) (Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappings[id]
	if !ok {
		return Mapping{}, fmt.Errorf("card %v: %w", id, ErrUnknownCard)
	}
	return m, nil
}

// All returns every mapping, sorted by card ID.
func (r *Registry) All() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Mapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Register stores a new mapping. Registering an already known card is an
// error so that a card is never silently reassigned; use Reassign for that.
func (r *Registry) Register(m Mapping) error {
	if err := m.Source.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mappings[m.ID]; ok {
		return fmt.Errorf("card %v: %w", m.ID, ErrCardExists)
	}
	r.mappings[m.ID] = m
	return r.save()
}

// Reassign replaces the source of an already registered card.
func (r *Registry) Reassign(m Mapping) error {
	if err := m.Source.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mappings[m.ID]; !ok {
		return fmt.Errorf("card %v: %w", m.ID, ErrUnknownCard)
	}
	r.mappings[m.ID] = m
	return r.save()
}

// Remove deletes the mapping for a card.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mappings[id]; !ok {
		return fmt.Errorf("card %v: %w", id, ErrUnknownCard)
	}
	delete(r.mappings, id)
	return r.save()
}

// save writes the whole mapping set to a temp file and renames it into
// place. Callers must hold the write lock.
func (r *Registry) save() error {
	f := registryFile{Cards: r.mappings}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode card registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cards-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

// Watch reloads the registry when the file changes on disk, so that hand
// edits take effect without a restart. Blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch card registry: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file itself: our own saves (and
	// most editors) replace the file, which would invalidate a file watch.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch card registry: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// editors fire several events per save, settle first
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.Warnf("Card registry watch: %v", err)
		case <-pending:
			pending = nil
			if err := r.Reload(); err != nil {
				logrus.Errorf("Could not reload card registry: %v", err)
				continue
			}
			logrus.Infof("Card registry reloaded from %v", r.path)
		}
	}
}
