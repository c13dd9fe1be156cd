package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChangeHandler is called with the freshly parsed file contents after a
// watched configuration file changes on disk.
type ChangeHandler func(raw map[string]interface{}) error

// Manager watches a configuration file and hot-reloads tunables. Only the
// per-run tunables (thresholds, retry ceilings, result caps) are reloadable;
// credentials and endpoints are fixed at startup.
type Manager struct {
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler

	mu      sync.RWMutex
	current ResearchConfig
	stopCh  chan struct{}
}

// NewManager creates a manager for the given config file. The initial
// tunables come from cfg; the file is only consulted on change events.
func NewManager(path string, cfg *Config, logger *zap.Logger) (*Manager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Manager{
		path:    path,
		logger:  logger,
		watcher: watcher,
		current: cfg.Research,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnChange registers a handler invoked after each successful reload.
func (m *Manager) OnChange(h ChangeHandler) {
	m.handlers = append(m.handlers, h)
}

// Research returns the current research tunables snapshot.
func (m *Manager) Research() ResearchConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Start begins watching the config file's directory. Watching the directory
// rather than the file survives editors that replace files on save.
func (m *Manager) Start() error {
	if m.path == "" {
		return nil
	}
	if err := m.watcher.Add(filepath.Dir(m.path)); err != nil {
		return err
	}
	go m.watchLoop()
	return nil
}

// Stop terminates the watch loop.
func (m *Manager) Stop() {
	close(m.stopCh)
	_ = m.watcher.Close()
}

func (m *Manager) watchLoop() {
	// Debounce: editors fire several events per save.
	var pending *time.Timer
	for {
		select {
		case <-m.stopCh:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(200*time.Millisecond, m.reload)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.logger.Warn("Config reload read failed", zap.Error(err))
		return
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		m.logger.Warn("Config reload parse failed", zap.Error(err))
		return
	}

	next := m.Research()
	if sec, ok := raw["research"].(map[string]interface{}); ok {
		if n, ok := intValue(sec["max_verification_retries"]); ok && n >= 0 {
			next.MaxVerificationRetries = n
		}
		if n, ok := intValue(sec["confidence_threshold"]); ok && n >= 0 && n <= 100 {
			next.ConfidenceThreshold = n
		}
		if n, ok := intValue(sec["max_search_results"]); ok && n > 0 {
			next.MaxSearchResults = n
		}
	}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	m.logger.Info("Configuration reloaded",
		zap.String("file", m.path),
		zap.Int("confidence_threshold", next.ConfidenceThreshold),
		zap.Int("max_verification_retries", next.MaxVerificationRetries),
	)
	for _, h := range m.handlers {
		if err := h(raw); err != nil {
			m.logger.Warn("Config change handler failed", zap.Error(err))
		}
	}
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
