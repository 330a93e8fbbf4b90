package contactstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/store"
)

// MemoryStore keeps contacts in memory in insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts []model.Contact
	byID     map[int64]int
}

// NewMemoryStore returns a store holding contacts. Later duplicates replace
// earlier ones.
func NewMemoryStore(contacts ...model.Contact) *MemoryStore {
	m := &MemoryStore{byID: make(map[int64]int)}
	for _, c := range contacts {
		m.Put(c)
	}
	return m
}

// Put inserts or replaces a contact.
func (m *MemoryStore) Put(c model.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[c.ID]; ok {
		m.contacts[i] = c
		return
	}
	m.byID[c.ID] = len(m.contacts)
	m.contacts = append(m.contacts, c)
}

// Len returns the number of contacts.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contacts)
}

// Fetch returns the contact with the given id or store.ErrContactNotFound.
func (m *MemoryStore) Fetch(_ context.Context, id int64) (model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return model.Contact{}, fmt.Errorf("%w: %d", store.ErrContactNotFound, id)
	}
	return m.contacts[i], nil
}

// FetchPage returns up to limit contacts starting at offset.
func (m *MemoryStore) FetchPage(_ context.Context, offset, limit int) ([]model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(m.contacts) || limit <= 0 {
		return []model.Contact{}, nil
	}
	end := offset + limit
	if end > len(m.contacts) {
		end = len(m.contacts)
	}
	out := make([]model.Contact, end-offset)
	copy(out, m.contacts[offset:end])
	return out, nil
}

// LoadFile reads a JSON or YAML list of contacts.
func LoadFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	contacts, err := DecodeContacts(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemoryStore(contacts...), nil
}

// DecodeContacts parses a contact list. YAML documents are converted to JSON
// first so both formats share the same date handling.
func DecodeContacts(r io.Reader, format string) ([]model.Contact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	switch format {
	case "yaml", "yml":
		var raw []map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		for _, m := range raw {
			for k, v := range m {
				if t, ok := v.(time.Time); ok {
					m[k] = t.Format(model.DateLayout)
				}
			}
		}
		if data, err = json.Marshal(raw); err != nil {
			return nil, err
		}
	case "json":
	default:
		return nil, fmt.Errorf("unsupported contacts format %q", format)
	}
	var contacts []model.Contact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}
