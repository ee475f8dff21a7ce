package approval

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// approvalsFile is the on-disk YAML shape.
type approvalsFile struct {
	Approvals []Action `yaml:"approvals"`
}

// FileStore persists always-scope approvals in a YAML file. A missing
// file reads as empty.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads all durable approvals.
func (s *FileStore) Load() ([]Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read approvals file: %w", err)
	}

	var file approvalsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse approvals file: %w", err)
	}
	return file.Approvals, nil
}

// Append adds one approval and rewrites the file.
func (s *FileStore) Append(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var file approvalsFile
	data, err := os.ReadFile(s.path)
	if err == nil {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse approvals file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read approvals file: %w", err)
	}

	file.Approvals = append(file.Approvals, action)

	out, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode approvals: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create approvals dir: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return fmt.Errorf("write approvals file: %w", err)
	}
	return nil
}
