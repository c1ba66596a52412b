package backends

import (
	"sync"

	"github.com/mrlokans/librarysync/internal/config"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/replication"
)

// Selection resolves the active source of a kind.
type Selection interface {
	ActiveSource(kind entities.StorageKind) string
}

// Set keeps one long-lived handler per kind so connections and listings
// survive between calls. Every lookup re-applies the configured settings
// with the currently active source.
type Set struct {
	deps      Deps
	cfg       config.Replication
	selection Selection

	mu       sync.Mutex
	handlers map[entities.StorageKind]replication.Handler
}

func NewSet(deps Deps, cfg config.Replication, selection Selection) *Set {
	return &Set{
		deps:      deps,
		cfg:       cfg,
		selection: selection,
		handlers:  map[entities.StorageKind]replication.Handler{},
	}
}

// Handler returns the handler of kind, creating it on first use.
func (s *Set) Handler(kind entities.StorageKind) (replication.Handler, error) {
	settings := SettingsFromConfig(s.cfg, s.selection.ActiveSource(kind))

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handlers[kind]; ok {
		h.UpdateSettings(settings)
		return h, nil
	}
	h, err := New(kind, s.deps, settings)
	if err != nil {
		return nil, err
	}
	s.handlers[kind] = h
	return h, nil
}
