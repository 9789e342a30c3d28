package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/kv"
)

const contactsKey = "eod:contacts"

// ContactStore holds the bank/accounts contacts the address-book UI manages.
// The engine only lists them for display and wipes them on administrative
// clear; it never validates that a record's ContactID resolves.
type ContactStore struct {
	mu  sync.Mutex
	kv  kv.Backend
	log *zap.Logger
}

func NewContactStore(backend kv.Backend, log *zap.Logger) *ContactStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactStore{kv: backend, log: log}
}

// List returns all contacts sorted by name.
func (s *ContactStore) List(ctx context.Context) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].Name < contacts[j].Name })
	return contacts, nil
}

// Put inserts or replaces a contact, assigning an ID when empty.
func (s *ContactStore) Put(ctx context.Context, c domain.Contact) (domain.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contacts, err := s.load(ctx)
	if err != nil {
		return domain.Contact{}, err
	}

	replaced := false
	for i := range contacts {
		if contacts[i].ID == c.ID {
			contacts[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		contacts = append(contacts, c)
	}
	return c, s.save(ctx, contacts)
}

// ClearAll wipes the contacts. Administrative clear path only.
func (s *ContactStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, contactsKey); err != nil {
		return fmt.Errorf("contact wipe failed: %w", err)
	}
	return nil
}

func (s *ContactStore) load(ctx context.Context) ([]domain.Contact, error) {
	raw, ok, err := s.kv.Get(ctx, contactsKey)
	if err != nil {
		return nil, fmt.Errorf("contact load failed: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var contacts []domain.Contact
	if err := json.Unmarshal([]byte(raw), &contacts); err != nil {
		s.log.Warn("discarding malformed contact list", zap.Error(err))
		return nil, nil
	}
	return contacts, nil
}

func (s *ContactStore) save(ctx context.Context, contacts []domain.Contact) error {
	raw, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("contact encode failed: %w", err)
	}
	if err := s.kv.Set(ctx, contactsKey, string(raw)); err != nil {
		return fmt.Errorf("contact write failed: %w", err)
	}
	return nil
}
