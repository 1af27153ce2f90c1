package prefs

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"guernika/internal/fileutil"
	"guernika/internal/logging"
)

// Store reads and writes the preferences document at a fixed path.
type Store struct {
	path   string
	home   string
	logger *slog.Logger
}

// NewStore returns a store backed by path. A nil logger discards output.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		path:   path,
		home:   homeDir(),
		logger: logging.NewComponentLogger(logger, "prefs"),
	}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Defaults returns the document a fresh install starts from.
func (s *Store) Defaults() Document {
	return Default(s.home)
}

// Load returns the stored document. Missing, unreadable, or corrupt files
// yield defaults; keys absent from the file keep their defaults.
func (s *Store) Load() Document {
	doc := s.Defaults()
	if strings.TrimSpace(s.path) == "" {
		return doc
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Debug("preferences unreadable; using defaults",
			logging.String("path", s.path),
			logging.Error(err),
		)
		return doc
	}

	decoded := s.Defaults()
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&decoded); err != nil {
		s.logger.Debug("preferences malformed; using defaults",
			logging.String("path", s.path),
			logging.Error(err),
		)
		return doc
	}
	return decoded
}

// Save replaces the stored document with doc.
func (s *Store) Save(doc Document) error {
	if strings.TrimSpace(s.path) == "" {
		return fmt.Errorf("save preferences: no path configured")
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	s.logger.Debug("preferences saved", logging.String("path", s.path))
	return nil
}
