package bookstore

import (
	"context"

	"librarysvc/pkg/domain"
)

// Store defines persistence operations for book records. Books are
// addressable by two independent unique keys, the primary identifier and
// the ISBN.
type Store interface {
	// Create persists a new book. It fails with domain.ErrDuplicateKey
	// when the identifier or ISBN is already taken.
	Create(ctx context.Context, book domain.Book) (string, error)
	// Update replaces the full record keyed by identifier. It fails with
	// domain.ErrNotFound when the identifier is absent.
	Update(ctx context.Context, book domain.Book) (string, error)

	GetByID(ctx context.Context, id string) (domain.Book, error)
	GetByISBN(ctx context.Context, isbn int64) (domain.Book, error)

	// DeleteByID and DeleteByISBN report whether a row was actually
	// removed; deleting a missing row returns false, not an error.
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByISBN(ctx context.Context, isbn int64) (bool, error)

	List(ctx context.Context, limit int) ([]domain.Book, error)

	// SetCheckedOut flips checked_out from one observed state to another
	// in a single conditional update and reports whether the row changed.
	// A false result means the row is missing or its state already moved,
	// which is how concurrent transitions on one book are linearized.
	SetCheckedOut(ctx context.Context, id string, from, to bool) (bool, error)
}
