package storagesource

import (
	"context"
	"sort"
	"sync"

	"github.com/mrlokans/librarysync/internal/entities"
)

type memorySources struct {
	mu      sync.Mutex
	records   map[string]entities.StorageSource
	renameErr error
}

func newMemorySources(records ...entities.StorageSource) *memorySources {
	m := &memorySources{records: map[string]entities.StorageSource{}}
	for _, r := range records {
		m.records[r.Name] = r
	}
	return m
}

func (m *memorySources) Get(_ context.Context, name string) (*entities.StorageSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[name]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memorySources) List(_ context.Context, kind entities.StorageKind) ([]entities.StorageSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.StorageSource
	for _, r := range m.records {
		if kind == "" || r.Type == kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memorySources) Rename(_ context.Context, oldName string, source *entities.StorageSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renameErr != nil {
		return m.renameErr
	}
	if oldName != "" {
		delete(m.records, oldName)
	}
	m.records[source.Name] = *source
	return nil
}

func (m *memorySources) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

func (m *memorySources) EnsureExists(_ context.Context, defaults ...entities.StorageSource) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, d := range defaults {
		if _, ok := m.records[d.Name]; !ok {
			m.records[d.Name] = d
			created++
		}
	}
	return created, nil
}

type memoryManager struct {
	secrets map[string]string
	getErr  error
	setErr  error
	gets    int
}

func newMemoryManager() *memoryManager {
	return &memoryManager{secrets: map[string]string{}}
}

func (m *memoryManager) Get(_ context.Context, name string) (string, bool, error) {
	m.gets++
	if m.getErr != nil {
		return "", false, m.getErr
	}
	s, ok := m.secrets[name]
	return s, ok, nil
}

func (m *memoryManager) Set(_ context.Context, name, secret string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.secrets[name] = secret
	return nil
}

func (m *memoryManager) Delete(_ context.Context, name string) error {
	delete(m.secrets, name)
	return nil
}

type memoryPointers struct {
	values map[string]string
}

func newMemoryPointers() *memoryPointers {
	return &memoryPointers{values: map[string]string{}}
}

func (m *memoryPointers) GetByPrefix(prefix string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = v
		}
	}
	return out, nil
}

func (m *memoryPointers) GetValue(key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryPointers) SetSetting(key, value string) error {
	m.values[key] = value
	return nil
}

type recordingPrompter struct {
	calls        int
	descriptions []string
	props        []UnlockProps
	result       *UnlockAction
	err          error
}

func (p *recordingPrompter) Prompt(_ context.Context, description string, props UnlockProps) (*UnlockAction, error) {
	p.calls++
	p.descriptions = append(p.descriptions, description)
	p.props = append(p.props, props)
	return p.result, p.err
}
