package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"

	logx "promobot/pkg/logx"
)

// fileStore keeps settings in one document.
// Writes go to <path>.tmp, are fsynced, then renamed over <path>.
type fileStore struct {
	log  logx.Logger
	path string
	yaml bool

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	ext := strings.ToLower(filepath.Ext(path))
	return &fileStore{log: log, path: path, yaml: ext == ".yaml" || ext == ".yml"}, nil
}

func (s *fileStore) Load(ctx context.Context) Settings {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("settings read failed; using defaults", logx.String("path", s.path), logx.Err(err))
		}
		return Default()
	}
	st, err := s.decode(b)
	if err != nil {
		s.log.Warn("settings unparsable; using defaults", logx.String("path", s.path), logx.Err(err))
		return Default()
	}
	if err := st.Validate(); err != nil {
		s.log.Warn("settings invalid; using defaults", logx.String("path", s.path), logx.Err(err))
		return Default()
	}
	return st
}

func (s *fileStore) decode(b []byte) (Settings, error) {
	var st Settings
	if s.yaml {
		err := yaml.Unmarshal(b, &st)
		return st, err
	}
	err := json.Unmarshal(b, &st)
	return st, err
}

func (s *fileStore) encode(st Settings) ([]byte, error) {
	if s.yaml {
		return yaml.Marshal(st)
	}
	return json.Marshal(st)
}

func (s *fileStore) Save(ctx context.Context, st Settings) error {
	_ = ctx
	if err := st.Validate(); err != nil {
		return err
	}
	b, err := s.encode(st)
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path, b); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	s.log.Debug("settings saved", logx.String("path", s.path), logx.Int("interval_hours", st.IntervalHours))
	return nil
}

func (s *fileStore) Close() error { return nil }

func writeAtomic(path string, b []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
