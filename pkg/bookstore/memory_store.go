package bookstore

import (
	"context"
	"fmt"
	"sync"

	"librarysvc/pkg/domain"
)

// MemoryStore keeps books in-process. It mirrors the GormStore semantics,
// including the conditional checked_out update, and backs the lending and
// server tests.
type MemoryStore struct {
	mu    sync.RWMutex
	books map[string]domain.Book
	isbn  map[int64]string // isbn -> book ID
	order []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[string]domain.Book),
		isbn:  make(map[int64]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, book domain.Book) (string, error) {
	if book.ID == "" {
		return "", fmt.Errorf("%w: book id required", domain.ErrBadRequest)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[book.ID]; exists {
		return "", fmt.Errorf("create book: %w", domain.ErrDuplicateKey)
	}
	if _, exists := m.isbn[book.ISBN]; exists {
		return "", fmt.Errorf("create book: %w", domain.ErrDuplicateKey)
	}
	m.books[book.ID] = book
	m.isbn[book.ISBN] = book.ID
	m.order = append(m.order, book.ID)
	return book.ID, nil
}

func (m *MemoryStore) Update(_ context.Context, book domain.Book) (string, error) {
	if book.ID == "" {
		return "", fmt.Errorf("%w: book id required", domain.ErrBadRequest)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.books[book.ID]
	if !ok {
		return "", fmt.Errorf("%w: book %s", domain.ErrNotFound, book.ID)
	}
	if prev.ISBN != book.ISBN {
		if _, taken := m.isbn[book.ISBN]; taken {
			return "", fmt.Errorf("update book: %w", domain.ErrDuplicateKey)
		}
		delete(m.isbn, prev.ISBN)
		m.isbn[book.ISBN] = book.ID
	}
	m.books[book.ID] = book
	return book.ID, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[id]
	if !ok {
		return domain.Book{}, fmt.Errorf("%w: book %s", domain.ErrNotFound, id)
	}
	return book, nil
}

func (m *MemoryStore) GetByISBN(_ context.Context, isbn int64) (domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.isbn[isbn]
	if !ok {
		return domain.Book{}, fmt.Errorf("%w: isbn %d", domain.ErrNotFound, isbn)
	}
	return m.books[id], nil
}

func (m *MemoryStore) DeleteByID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return false, nil
	}
	m.remove(book)
	return true, nil
}

func (m *MemoryStore) DeleteByISBN(_ context.Context, isbn int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.isbn[isbn]
	if !ok {
		return false, nil
	}
	m.remove(m.books[id])
	return true, nil
}

// remove assumes the write lock is held.
func (m *MemoryStore) remove(book domain.Book) {
	delete(m.books, book.ID)
	delete(m.isbn, book.ISBN)
	for i, id := range m.order {
		if id == book.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	books := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		if len(books) == limit {
			break
		}
		books = append(books, m.books[id])
	}
	return books, nil
}

func (m *MemoryStore) SetCheckedOut(_ context.Context, id string, from, to bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok || book.CheckedOut != from {
		return false, nil
	}
	book.CheckedOut = to
	m.books[id] = book
	return true, nil
}
