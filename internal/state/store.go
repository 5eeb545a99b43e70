package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"DipSentinel/internal/model"
)

// ErrCorrupt is returned by Load when the persisted state cannot be decoded.
var ErrCorrupt = errors.New("state file corrupt")

// Store persists the monthly trigger state of one instrument.
// Load returns (nil, nil) when nothing was saved yet.
type Store interface {
	Load() (*model.MonthlyTriggerState, error)
	Save(st *model.MonthlyTriggerState) error
}

// FileStore keeps the state as an indented JSON document.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the state file. A missing file yields (nil, nil).
func (s *FileStore) Load() (*model.MonthlyTriggerState, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st model.MonthlyTriggerState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &st, nil
}

// Save writes the state through a temp file and rename so a crash never
// leaves a half-written document behind.
func (s *FileStore) Save(st *model.MonthlyTriggerState) error {
	st.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// LoadOrDefault loads the state for symbol, falling back to a fresh state
// when the store is empty, unreadable, corrupt or holds another symbol.
// The fresh state has no month yet, so the first bar always rolls it over.
func LoadOrDefault(store Store, symbol string) *model.MonthlyTriggerState {
	fresh := model.NewMonthlyTriggerState(symbol, model.MonthKey{})
	st, err := store.Load()
	switch {
	case err != nil:
		log.Warn().Err(err).Str("symbol", symbol).Msg("load state failed, starting from a fresh state")
		return fresh
	case st == nil:
		log.Info().Str("symbol", symbol).Msg("no saved state, starting from a fresh state")
		return fresh
	case st.Symbol != "" && st.Symbol != symbol:
		log.Warn().Str("symbol", symbol).Str("saved_symbol", st.Symbol).Msg("saved state belongs to another symbol, ignoring it")
		return fresh
	}
	st.Symbol = symbol
	log.Info().Str("symbol", symbol).Stringer("month", st.Month).Str("last_check", st.LastCheckedDate).Msg("state loaded")
	return st
}

// MemoryStore keeps the state in memory; used for replay and tests.
type MemoryStore struct {
	st *model.MonthlyTriggerState
}

func (m *MemoryStore) Load() (*model.MonthlyTriggerState, error) {
	if m.st == nil {
		return nil, nil
	}
	return m.st.Clone(), nil
}

func (m *MemoryStore) Save(st *model.MonthlyTriggerState) error {
	m.st = st.Clone()
	return nil
}
