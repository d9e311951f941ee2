package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loveucifer/visceral/internal/domain"
)

// snapshot is the on-disk shape of the rule collection. The slice keeps
// insertion order so serialization is stable across save/load cycles.
type snapshot struct {
	Rules []domain.Rule `json:"rules" yaml:"rules"`
}

// FileStore implements the RuleStore interface against a single snapshot
// file. The format follows the file extension: .yaml/.yml for YAML,
// anything else is treated as JSON.
type FileStore struct {
	path      string
	validator domain.Validator
}

// NewFileStore creates a FileStore for the given snapshot path
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:      path,
		validator: domain.NewValidator(),
	}
}

// Path returns the snapshot file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the full rule collection from the snapshot file. A missing
// file is an empty collection, not an error. A snapshot that does not parse
// or contains an invalid rule fails with STORE_CORRUPT; partial collections
// are never returned.
func (s *FileStore) Load(ctx context.Context) ([]domain.Rule, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewAppErrorWithCause(
			domain.ErrTimeout,
			"Load cancelled",
			408,
			ctx.Err(),
			map[string]any{"operation": "load"},
		)
	default:
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Rule{}, nil
		}
		return nil, domain.NewAppErrorWithCause(
			domain.ErrStoreCorrupt,
			"Failed to read rule snapshot",
			500,
			err,
			map[string]any{"path": s.path},
		)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return []domain.Rule{}, nil
	}

	var snap snapshot
	if err := s.unmarshal(data, &snap); err != nil {
		return nil, domain.NewAppErrorWithCause(
			domain.ErrStoreCorrupt,
			"Rule snapshot is not a well-formed collection",
			500,
			err,
			map[string]any{"path": s.path},
		)
	}

	seen := make(map[string]struct{}, len(snap.Rules))
	for i := range snap.Rules {
		rule := &snap.Rules[i]
		if err := s.validator.ValidateRule(rule); err != nil {
			return nil, domain.NewAppErrorWithCause(
				domain.ErrStoreCorrupt,
				"Rule snapshot contains an invalid rule",
				500,
				err,
				map[string]any{"path": s.path, "rule_id": rule.ID, "index": i},
			)
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, domain.NewAppError(
				domain.ErrStoreCorrupt,
				"Rule snapshot contains a duplicate id",
				500,
				map[string]any{"path": s.path, "rule_id": rule.ID},
			)
		}
		seen[rule.ID] = struct{}{}
	}

	if snap.Rules == nil {
		snap.Rules = []domain.Rule{}
	}
	return snap.Rules, nil
}

// Save writes the full rule collection to the snapshot file.
// Uses atomic write pattern: temp file → sync → rename, so a failed save
// never leaves a truncated snapshot behind.
func (s *FileStore) Save(ctx context.Context, rules []domain.Rule) error {
	select {
	case <-ctx.Done():
		return domain.NewAppErrorWithCause(
			domain.ErrTimeout,
			"Save cancelled",
			408,
			ctx.Err(),
			map[string]any{"operation": "save"},
		)
	default:
	}

	if rules == nil {
		rules = []domain.Rule{}
	}

	data, err := s.marshal(snapshot{Rules: rules})
	if err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrStoreWrite,
			"Failed to serialize rule snapshot",
			500,
			err,
			map[string]any{"path": s.path},
		)
	}

	if err := atomicWrite(s.path, data); err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrStoreWrite,
			"Failed to write rule snapshot",
			500,
			err,
			map[string]any{"path": s.path},
		)
	}

	return nil
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *FileStore) marshal(snap snapshot) ([]byte, error) {
	if s.isYAML() {
		return yaml.Marshal(snap)
	}
	return json.MarshalIndent(snap, "", "  ")
}

func (s *FileStore) unmarshal(data []byte, snap *snapshot) error {
	if s.isYAML() {
		return yaml.Unmarshal(data, snap)
	}
	return json.Unmarshal(data, snap)
}

// atomicWrite performs an atomic file write using temp file → sync → rename pattern
func atomicWrite(targetPath string, data []byte) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Create temp file in the same directory to ensure same filesystem
	tempFile, err := os.CreateTemp(dir, ".rules-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("failed to rename temp file to target: %w", err)
	}

	success = true
	return nil
}
