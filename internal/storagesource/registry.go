package storagesource

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mrlokans/librarysync/internal/entities"
)

// Well-known source names.
const (
	GoogleDriveDefault = "gdrive-default"
	OneDriveDefault    = "onedrive-default"

	InternalBrowserSource = "internal-browser"
	InternalExportSource  = "internal-export"
)

var internalSources = map[string]struct{}{
	InternalBrowserSource: {},
	InternalExportSource:  {},
}

// DefaultSourceName returns the fixed default name of a kind, or "" if the
// kind has none.
func DefaultSourceName(kind entities.StorageKind) string {
	switch kind {
	case entities.StorageKindGoogleDrive:
		return GoogleDriveDefault
	case entities.StorageKindOneDrive:
		return OneDriveDefault
	}
	return ""
}

// IsDefaultSource reports whether name is a per-kind default or a reserved
// internal name. Such sources cannot be renamed or deleted.
func IsDefaultSource(name string) bool {
	if name == GoogleDriveDefault || name == OneDriveDefault {
		return true
	}
	_, ok := internalSources[name]
	return ok
}

// PointerStore persists active source pointers. settings.Repository satisfies it.
type PointerStore interface {
	GetByPrefix(prefix string) (map[string]string, error)
	GetValue(key string) (string, bool, error)
	SetSetting(key, value string) error
}

// Registry maps each storage kind to the name of its active source, and
// tracks which kind is currently selected.
type Registry struct {
	mu      sync.RWMutex
	active  map[entities.StorageKind]string
	current entities.StorageKind
	store   PointerStore
}

// NewRegistry creates a registry with default pointers. A nil store keeps
// pointers in memory only.
func NewRegistry(store PointerStore) *Registry {
	r := &Registry{
		active:  make(map[entities.StorageKind]string, len(entities.SourceKinds)),
		current: entities.StorageKindBrowser,
		store:   store,
	}
	for _, kind := range entities.SourceKinds {
		r.active[kind] = DefaultSourceName(kind)
	}
	return r
}

// Load restores persisted pointers.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}

	pointers, err := r.store.GetByPrefix(entities.SettingKeyActiveSourcePrefix)
	if err != nil {
		return fmt.Errorf("failed to load active storage sources: %w", err)
	}
	current, ok, err := r.store.GetValue(entities.SettingKeyCurrentStorageKind)
	if err != nil {
		return fmt.Errorf("failed to load current storage kind: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, name := range pointers {
		k := entities.StorageKind(kind)
		if _, known := r.active[k]; known {
			r.active[k] = resolveName(name, k)
		}
	}
	if ok && entities.StorageKind(current).Valid() {
		r.current = entities.StorageKind(current)
	}
	return nil
}

func resolveName(name string, kind entities.StorageKind) string {
	if name == "" {
		return DefaultSourceName(kind)
	}
	return name
}

// SetActiveSource points kind at name. An empty name resets cloud kinds to
// their default; for the filesystem kind it also switches the current
// selection to the in-browser default.
func (r *Registry) SetActiveSource(name string, kind entities.StorageKind) error {
	if !slices.Contains(entities.SourceKinds, kind) {
		return fmt.Errorf("%w: unknown storage kind %q", ErrConfiguration, kind)
	}

	value := name
	if kind.IsCloud() {
		value = resolveName(name, kind)
	}
	resetCurrent := kind == entities.StorageKindFilesystem && name == ""

	r.mu.Lock()
	r.active[kind] = value
	if resetCurrent {
		r.current = entities.StorageKindBrowser
	}
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	if err := r.store.SetSetting(entities.ActiveSourceSettingKey(kind), value); err != nil {
		return fmt.Errorf("failed to persist active %s source: %w", kind, err)
	}
	if resetCurrent {
		if err := r.store.SetSetting(entities.SettingKeyCurrentStorageKind, string(entities.StorageKindBrowser)); err != nil {
			return fmt.Errorf("failed to persist current storage kind: %w", err)
		}
	}
	return nil
}

// ActiveSource returns the name of the active source of kind.
func (r *Registry) ActiveSource(kind entities.StorageKind) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[kind]
}

// CurrentKind returns the currently selected storage kind.
func (r *Registry) CurrentKind() entities.StorageKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Registry) SetCurrentKind(kind entities.StorageKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown storage kind %q", ErrConfiguration, kind)
	}

	r.mu.Lock()
	r.current = kind
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	if err := r.store.SetSetting(entities.SettingKeyCurrentStorageKind, string(kind)); err != nil {
		return fmt.Errorf("failed to persist current storage kind: %w", err)
	}
	return nil
}
