// Package caps loads and hot-reloads the job_type -> millisecond_cap
// table used to cap job-completion debits (spec.md §4.2 contract 6,
// §6 "caps" configuration). The table is TOML rather than flat env
// vars because it is an open-ended map keyed by job type.
package caps

import (
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// file is the on-disk shape: a flat table of job_type -> cap_ms.
type file struct {
	Caps map[string]int64 `toml:"caps"`
}

// Table is a concurrency-safe, hot-reloadable job_type -> cap lookup.
type Table struct {
	mu         sync.RWMutex
	caps       map[string]int64
	defaultCap int64
	logger     zerolog.Logger
	watcher    *fsnotify.Watcher
}

// Load reads path once and, if it exists, starts watching it for
// changes. A missing file is not an error: every job type falls back
// to defaultCapMs.
func Load(path string, defaultCapMs int64, logger zerolog.Logger) (*Table, error) {
	t := &Table{caps: map[string]int64{}, defaultCap: defaultCapMs, logger: logger}
	t.reload(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("caps: could not start file watcher, hot reload disabled")
		return t, nil
	}
	if err := watcher.Add(path); err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("caps: file not present, hot reload disabled; using defaults")
		_ = watcher.Close()
		return t, nil
	}
	t.watcher = watcher
	go t.watchLoop(path)
	return t, nil
}

func (t *Table) watchLoop(path string) {
	for event := range t.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
			t.reload(path)
		}
	}
}

func (t *Table) reload(path string) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		t.logger.Warn().Err(err).Str("path", path).Msg("caps: failed to load file, keeping previous table")
		return
	}
	t.mu.Lock()
	t.caps = f.Caps
	t.mu.Unlock()
	t.logger.Info().Int("job_types", len(f.Caps)).Msg("caps: reloaded table")
}

// Cap returns the millisecond ceiling for jobType, or the default if
// jobType is absent from the table.
func (t *Table) Cap(jobType string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.caps[jobType]; ok {
		return v
	}
	return t.defaultCap
}

// Close stops the file watcher, if one was started.
func (t *Table) Close() error {
	if t.watcher == nil {
		return nil
	}
	return t.watcher.Close()
}
