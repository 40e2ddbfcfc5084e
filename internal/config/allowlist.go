package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"tregate/pkg/logging"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Allowlist answers whether a URL is an unauthenticated static asset. It is
// compiled once from StaticConfig and can be hot-reloaded from an optional
// yaml file so the asset set can be widened without a gateway restart.
type Allowlist struct {
	mu sync.RWMutex

	enabled    bool
	prefixes   []string
	extensions []string
	patterns   []*regexp.Regexp

	// Reload machinery, only active when StaticConfig.File is set.
	file      *string
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// debounceInterval is the time to wait before reloading after the last file
// change event, so editors that write in several steps trigger one reload.
const debounceInterval = 500 * time.Millisecond

// NewAllowlist compiles the static allowlist. Invalid regex patterns are a
// configuration error, not a silent skip.
func NewAllowlist(cfg StaticConfig) (*Allowlist, error) {
	a := &Allowlist{}
	if err := a.apply(cfg); err != nil {
		return nil, err
	}
	if cfg.File != "" {
		f := cfg.File
		a.file = &f
	}
	return a, nil
}

func (a *Allowlist) apply(cfg StaticConfig) error {
	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid static allowlist pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = cfg.Enabled
	a.prefixes = append([]string(nil), cfg.Prefixes...)
	a.extensions = append([]string(nil), cfg.Extensions...)
	a.patterns = patterns
	return nil
}

// Matches reports whether the given original URL is allowlisted static
// content. Prefixes match anywhere in the URL (the original URL includes
// scheme and host), extensions match the URL suffix, and regex patterns
// match the URL path only.
func (a *Allowlist) Matches(originalURL string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.enabled {
		return false
	}

	for _, prefix := range a.prefixes {
		if strings.Contains(originalURL, prefix) {
			return true
		}
	}
	for _, ext := range a.extensions {
		if strings.HasSuffix(originalURL, ext) {
			return true
		}
	}

	path := originalURL
	if u, err := url.Parse(originalURL); err == nil {
		path = u.Path
	}
	for _, re := range a.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Watch starts watching the allowlist file for changes. It is a no-op when
// no file is configured. Stop releases the watcher.
func (a *Allowlist) Watch() error {
	if a.file == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create allowlist watcher: %w", err)
	}
	if err := watcher.Add(*a.file); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", *a.file, err)
	}

	a.fsWatcher = watcher
	a.stopCh = make(chan struct{})

	go a.watchLoop()
	logging.Info("Allowlist", "Watching %s for static allowlist changes", *a.file)
	return nil
}

// Stop stops the file watcher, if running.
func (a *Allowlist) Stop() {
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}
	if a.fsWatcher != nil {
		a.fsWatcher.Close()
		a.fsWatcher = nil
	}
}

func (a *Allowlist) watchLoop() {
	for {
		select {
		case <-a.stopCh:
			return
		case event, ok := <-a.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				a.scheduleReload()
			}
		case err, ok := <-a.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Allowlist", "Watcher error: %v", err)
		}
	}
}

func (a *Allowlist) scheduleReload() {
	a.debounceMu.Lock()
	defer a.debounceMu.Unlock()

	if a.debounceTimer != nil {
		a.debounceTimer.Stop()
	}
	a.debounceTimer = time.AfterFunc(debounceInterval, a.reload)
}

func (a *Allowlist) reload() {
	data, err := os.ReadFile(*a.file)
	if err != nil {
		logging.Error("Allowlist", err, "Failed to reload allowlist from %s", *a.file)
		return
	}

	var cfg StaticConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logging.Error("Allowlist", err, "Malformed allowlist file %s, keeping previous", *a.file)
		return
	}
	if err := a.apply(cfg); err != nil {
		logging.Error("Allowlist", err, "Invalid allowlist in %s, keeping previous", *a.file)
		return
	}
	logging.Info("Allowlist", "Reloaded static allowlist from %s", *a.file)
}
