package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadDelay debounces bursts of file events.
const ReloadDelay = 200 * time.Millisecond

// Loader reads policies from .rego and .json files.
type Loader struct {
	logger  zerolog.Logger
	cache   map[string]*Policy
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]*Policy),
	}
}

// LoadFromPaths loads policies from a list of file or directory paths.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy
	for _, path := range paths {
		policies, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	l.logger.Debug().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")
	return all, nil
}

// loadFromPath loads policies from a single path (file or directory).
func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	policy, err := l.loadFromFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return []Policy{*policy}, nil
}

// loadFromDirectory loads all policy files below dirPath. Unreadable files
// are logged and skipped.
func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]Policy, error) {
	var policies []Policy

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isPolicyFile(path) {
			return nil
		}

		policy, err := l.loadFromFile(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load policy file")
			return nil
		}
		policies = append(policies, *policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	return strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, ".json")
}

// loadFromFile loads a policy from a single file.
func (l *Loader) loadFromFile(_ context.Context, filePath string) (*Policy, error) {
	l.mu.RLock()
	if cached, ok := l.cache[filePath]; ok {
		l.mu.RUnlock()
		p := *cached
		return &p, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policy *Policy
	switch {
	case strings.HasSuffix(filePath, ".rego"):
		policy = parseRegoFile(filePath, data)
	case strings.HasSuffix(filePath, ".json"):
		policy, err = parseJSONFile(filePath, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}

	l.mu.Lock()
	l.cache[filePath] = policy
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", filePath).
		Str("policy", policy.Name).
		Msg("Policy loaded from file")

	p := *policy
	return &p, nil
}

// parseRegoFile parses a .rego file into a Policy. Leading comments form
// the description; a "# severity: warning" line sets the severity.
func parseRegoFile(filePath string, data []byte) *Policy {
	name := strings.TrimSuffix(filepath.Base(filePath), ".rego")
	description, severity := extractHeader(string(data))

	return &Policy{
		Name:        name,
		Description: description,
		Rego:        string(data),
		Severity:    severity,
		Enabled:     true,
		Source:      filePath,
	}
}

// parseJSONFile parses a JSON policy definition.
func parseJSONFile(filePath string, data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if policy.Name == "" {
		policy.Name = strings.TrimSuffix(filepath.Base(filePath), ".json")
	}
	if policy.Rego == "" {
		return nil, errors.New("JSON policy has no rego module")
	}
	if policy.Severity == "" {
		policy.Severity = SeverityError
	}
	policy.Source = filePath
	return &policy, nil
}

// extractHeader reads the comment block at the top of a Rego module.
func extractHeader(content string) (string, Severity) {
	var description strings.Builder
	severity := SeverityError

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed != "" {
				break
			}
			continue
		}

		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if rest, ok := strings.CutPrefix(comment, "severity:"); ok {
			switch s := Severity(strings.TrimSpace(rest)); s {
			case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
				severity = s
			}
			continue
		}
		if comment == "" {
			continue
		}
		if description.Len() > 0 {
			description.WriteString(" ")
		}
		description.WriteString(comment)
	}

	return description.String(), severity
}

// Watch starts watching paths and calls reloadFn with the freshly loaded
// policies after files change. It returns once the watcher is running.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher

	watched := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Debug().Err(err).Str("path", path).Msg("Not watching missing policy path")
			continue
		}

		if info.IsDir() {
			err = l.watchDirectory(path)
		} else {
			err = watcher.Add(path)
		}
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch policy path")
			continue
		}
		watched++
	}

	go l.processEvents(ctx, paths, reloadFn)

	l.logger.Debug().Int("paths", watched).Msg("Started watching policy paths")
	return nil
}

// watchDirectory adds dirPath and its subdirectories to the watcher.
func (l *Loader) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

// processEvents debounces file events into reloads until ctx is done.
func (l *Loader) processEvents(ctx context.Context, paths []string, reloadFn func([]Policy) error) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
		_ = l.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isPolicyFile(event.Name) {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(ReloadDelay, func() {
				if ctx.Err() != nil {
					return
				}
				if err := l.triggerReload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// triggerReload reloads all policies from watched paths.
func (l *Loader) triggerReload(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}

	policies, err := l.LoadFromPaths(ctx, existing)
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}
	if err := reloadFn(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}

	l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
	return nil
}
