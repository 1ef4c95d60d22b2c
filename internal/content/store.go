// Package content loads car and track definitions from the configured
// asset directories (§6 "content directories", treated as an external
// collaborator by §1 but consumed directly by the registry and
// scheduler). Track loading is grounded on the teacher corpus's
// loadTrackFromCSV (encoding/csv, '#' comment lines); car configs use
// the same TOML decoder as internal/config.
package content

import (
	"fmt"
	"sync"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

// Store is a read-mostly registry of immutable car and track configs,
// built once at startup and handed to the registry and scheduler.
type Store struct {
	mu     sync.RWMutex
	cars   map[model.CarConfigID]*model.CarConfig
	tracks map[model.TrackConfigID]*model.TrackConfig
}

func NewStore() *Store {
	return &Store{
		cars:   make(map[model.CarConfigID]*model.CarConfig),
		tracks: make(map[model.TrackConfigID]*model.TrackConfig),
	}
}

func (s *Store) AddCar(cfg *model.CarConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cars[cfg.ID] = cfg
}

func (s *Store) AddTrack(cfg *model.TrackConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[cfg.ID] = cfg
}

func (s *Store) GetCar(id model.CarConfigID) (*model.CarConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cars[id]
	return c, ok
}

func (s *Store) GetTrack(id model.TrackConfigID) (*model.TrackConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	return t, ok
}

func (s *Store) ListCars() []*model.CarConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.CarConfig, 0, len(s.cars))
	for _, c := range s.cars {
		out = append(out, c)
	}
	return out
}

func (s *Store) ListTracks() []*model.TrackConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.TrackConfig, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

// ErrEmpty is returned when a content directory produced zero usable
// entries; the caller (cmd/apexsim-server) treats this as Fatal per §7.
type ErrEmpty struct{ Dir string }

func (e *ErrEmpty) Error() string { return fmt.Sprintf("content: no entries loaded from %s", e.Dir) }
