package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// Table serves issue-tag lookups against the current keyword table.
//
// Without a file the built-in defaults apply. With a file the table loads it
// once at construction and, if watching is enabled, reloads it on change. A
// reload that fails to parse keeps the previous table.
//
// Thread Safety: Match and Rules may be called concurrently with a reload.
type Table struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	current *TagRules

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewTable creates a table. An empty path means built-in defaults only.
func NewTable(path string, logger *zap.Logger) (*Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Table{
		path:    path,
		logger:  logger,
		current: DefaultRules(),
	}

	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading rules file: %w", err)
		}
		t.current = loaded
		logger.Info("loaded issue-tag rules",
			zap.String("path", path),
			zap.Int("version", loaded.Version),
			zap.Int("tags", len(loaded.Tags)))
	}

	return t, nil
}

// LoadFile parses a YAML rules file.
//
// Schema:
//
//	version: 2
//	tags:
//	  accuracy: [wrong, incorrect]
//	  speed: [slow, timeout]
func LoadFile(path string) (*TagRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var r TagRules
	if err := k.Unmarshal("", &r); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
	}

	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("invalid rules in %s: %w", path, err)
	}

	// Matching is case-insensitive; canonicalize once at load.
	for tag, keywords := range r.Tags {
		for i, kw := range keywords {
			keywords[i] = strings.ToLower(strings.TrimSpace(kw))
		}
		r.Tags[tag] = keywords
	}

	return &r, nil
}

func (r *TagRules) validate() error {
	if len(r.Tags) == 0 {
		return fmt.Errorf("no tags defined")
	}
	for tag, keywords := range r.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("empty tag name")
		}
		if len(keywords) == 0 {
			return fmt.Errorf("tag %q has no keywords", tag)
		}
		for _, kw := range keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("tag %q has an empty keyword", tag)
			}
		}
	}
	return nil
}

// Match returns the issue tags whose keywords appear in note, sorted
// alphabetically. A note may match zero, one, or several tags. Matching is
// case-insensitive substring search.
func (t *Table) Match(note string) []string {
	if note == "" {
		return nil
	}
	lowered := strings.ToLower(note)

	t.mu.RLock()
	rules := t.current
	t.mu.RUnlock()

	var tags []string
	for tag, keywords := range rules.Tags {
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// Rules returns the current table snapshot.
func (t *Table) Rules() *TagRules {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Watch starts reloading the rules file on filesystem changes. It is an
// error to watch a table that has no file path or one that is already
// watching.
func (t *Table) Watch(ctx context.Context) error {
	if t.path == "" {
		return fmt.Errorf("no rules file to watch")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.watcher != nil {
		return fmt.Errorf("already watching %s", t.path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the directory, not the file: editors that replace the file via
	// rename would otherwise silently detach the watch.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(t.path), err)
	}

	t.watcher = watcher
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	t.logger.Info("watching rules file", zap.String("path", t.path))

	go t.processEvents(ctx, watcher, t.stopCh, t.doneCh)

	return nil
}

// Stop halts watching. Stopping a table that is not watching is a no-op.
func (t *Table) Stop() {
	t.mu.Lock()
	if t.watcher == nil {
		t.mu.Unlock()
		return
	}
	watcher := t.watcher
	stopCh, doneCh := t.stopCh, t.doneCh
	t.watcher = nil
	t.mu.Unlock()

	close(stopCh)
	_ = watcher.Close()
	<-doneCh
}

func (t *Table) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	target := filepath.Clean(t.path)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}

// reload swaps in the file's current contents, keeping the old table when
// the file is unreadable or invalid.
func (t *Table) reload() {
	loaded, err := LoadFile(t.path)
	if err != nil {
		t.logger.Warn("rules reload failed, keeping previous table",
			zap.String("path", t.path),
			zap.Error(err))
		return
	}

	t.mu.Lock()
	previous := t.current.Version
	t.current = loaded
	t.mu.Unlock()

	t.logger.Info("reloaded issue-tag rules",
		zap.String("path", t.path),
		zap.Int("previous_version", previous),
		zap.Int("version", loaded.Version),
		zap.Int("tags", len(loaded.Tags)))
}
