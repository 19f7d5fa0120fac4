package patronstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"librarysvc/pkg/domain"
)

// MemoryStore keeps patrons in-process with the same observable semantics
// as MongoStore: generated identifiers, unique emails, set-membership
// checkout/return and the documented orderings.
type MemoryStore struct {
	mu      sync.RWMutex
	patrons map[string]domain.Patron
	email   map[string]string // email -> patron ID
	now     func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patrons: make(map[string]domain.Patron),
		email:   make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(_ context.Context, patron domain.Patron) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.email[patron.Email]; taken {
		return "", fmt.Errorf("create patron: %w", domain.ErrDuplicateKey)
	}
	patron.ID = primitive.NewObjectID().Hex()
	if patron.BooksCheckedOut == nil {
		patron.BooksCheckedOut = []string{}
	}
	m.patrons[patron.ID] = patron
	m.email[patron.Email] = patron.ID
	return patron.ID, nil
}

func (m *MemoryStore) Update(_ context.Context, patron domain.Patron) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.patrons[patron.ID]
	if !ok {
		return "", fmt.Errorf("%w: patron %s", domain.ErrNotFound, patron.ID)
	}
	if prev.Email != patron.Email {
		if _, taken := m.email[patron.Email]; taken {
			return "", fmt.Errorf("update patron: %w", domain.ErrDuplicateKey)
		}
		delete(m.email, prev.Email)
		m.email[patron.Email] = patron.ID
	}
	patron.UpdatedAt = m.now()
	m.patrons[patron.ID] = patron
	return patron.ID, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (domain.Patron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	patron, ok := m.patrons[id]
	if !ok {
		return domain.Patron{}, fmt.Errorf("%w: patron %s", domain.ErrNotFound, id)
	}
	return clone(patron), nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (domain.Patron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.Patron{}, fmt.Errorf("%w: email %s", domain.ErrNotFound, email)
	}
	return clone(m.patrons[id]), nil
}

func (m *MemoryStore) DeleteByID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	patron, ok := m.patrons[id]
	if !ok {
		return false, nil
	}
	delete(m.patrons, id)
	delete(m.email, patron.Email)
	return true, nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int, activeOnly bool) ([]domain.Patron, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.collect(func(p domain.Patron) bool {
		return !activeOnly || p.Active
	})
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []domain.Patron{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) SearchByName(_ context.Context, name string, limit int) ([]domain.Patron, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := m.collect(func(p domain.Patron) bool {
		return strings.Contains(strings.ToLower(p.FirstName), needle) ||
			strings.Contains(strings.ToLower(p.LastName), needle)
	})
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastName < matched[j].LastName
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) ListByMembershipType(_ context.Context, membership domain.MembershipType) ([]domain.Patron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := m.collect(func(p domain.Patron) bool {
		return p.MembershipType == membership
	})
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastName < matched[j].LastName
	})
	return matched, nil
}

// collect assumes a read lock is held.
func (m *MemoryStore) collect(keep func(domain.Patron) bool) []domain.Patron {
	out := []domain.Patron{}
	for _, p := range m.patrons {
		if keep(p) {
			out = append(out, clone(p))
		}
	}
	return out
}

func (m *MemoryStore) CheckoutBook(_ context.Context, patronID, bookID string, maxBooks int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	patron, ok := m.patrons[patronID]
	if !ok {
		return false, fmt.Errorf("%w: patron %s", domain.ErrNotFound, patronID)
	}
	for _, id := range patron.BooksCheckedOut {
		if id == bookID {
			return false, nil
		}
	}
	if maxBooks > 0 && len(patron.BooksCheckedOut) >= maxBooks {
		return false, fmt.Errorf("%w: patron %s holds %d of %d books",
			domain.ErrPatronIneligible, patronID, len(patron.BooksCheckedOut), maxBooks)
	}
	patron.BooksCheckedOut = append(append([]string{}, patron.BooksCheckedOut...), bookID)
	patron.TotalBorrowed++
	patron.UpdatedAt = m.now()
	m.patrons[patronID] = patron
	return true, nil
}

func (m *MemoryStore) ReturnBook(_ context.Context, patronID, bookID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	patron, ok := m.patrons[patronID]
	if !ok {
		return false, fmt.Errorf("%w: patron %s", domain.ErrNotFound, patronID)
	}
	for i, id := range patron.BooksCheckedOut {
		if id == bookID {
			books := append([]string{}, patron.BooksCheckedOut...)
			patron.BooksCheckedOut = append(books[:i], books[i+1:]...)
			patron.UpdatedAt = m.now()
			m.patrons[patronID] = patron
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) FindByCheckedOutBook(_ context.Context, bookID string) (domain.Patron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, patron := range m.patrons {
		for _, id := range patron.BooksCheckedOut {
			if id == bookID {
				return clone(patron), nil
			}
		}
	}
	return domain.Patron{}, fmt.Errorf("%w: no patron holds book %s", domain.ErrNotFound, bookID)
}

func clone(p domain.Patron) domain.Patron {
	p.BooksCheckedOut = append([]string{}, p.BooksCheckedOut...)
	return p
}
