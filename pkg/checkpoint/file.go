package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/storage"
)

// FileStore keeps offsets in a single JSON object, {"SOURCE": offset}.
type FileStore struct {
	path   string
	logger logger.Logger
}

// NewFileStore creates a store backed by path. The file is not touched until
// Load or Save.
func NewFileStore(path string, log logger.Logger) *FileStore {
	if log == nil {
		log = logger.GetLogger()
	}
	return &FileStore{path: path, logger: log}
}

// Path returns the checkpoint file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. A missing file is a cold start. A file that cannot
// be read or decoded is set aside as <path>.corrupt and treated as a cold
// start, since every record it describes is still in the corpus.
func (s *FileStore) Load(sources []string) (Offsets, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.DebugWithFields("No checkpoint found, starting fresh", map[string]interface{}{
			"path": s.path,
		})
		return fill(nil, sources), nil
	}
	if err != nil {
		s.logger.WarnWithFields("Checkpoint unreadable, starting fresh", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return fill(nil, sources), nil
	}

	var offsets Offsets
	if err := json.Unmarshal(data, &offsets); err != nil {
		s.quarantine(data, err)
		return fill(nil, sources), nil
	}

	for source, offset := range offsets {
		if offset < 0 {
			s.logger.WarnWithFields("Negative checkpoint offset reset to zero", map[string]interface{}{
				"source": source,
				"offset": offset,
			})
			offsets[source] = 0
		}
	}

	s.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"path":    s.path,
		"sources": len(offsets),
	})
	return fill(offsets, sources), nil
}

func (s *FileStore) quarantine(data []byte, cause error) {
	backup := s.path + ".corrupt"
	fields := map[string]interface{}{
		"path":   s.path,
		"backup": backup,
		"error":  cause.Error(),
	}
	if err := os.WriteFile(backup, data, 0644); err != nil {
		fields["backup_error"] = err.Error()
	}
	s.logger.WarnWithFields("Checkpoint corrupt, starting fresh", fields)
}

// Save writes the whole document through a temporary file and a rename.
func (s *FileStore) Save(offsets Offsets) error {
	data, err := json.MarshalIndent(offsets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	data = append(data, '\n')

	if err := storage.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (s *FileStore) Close() error {
	return nil
}
