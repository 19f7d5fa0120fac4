package patronstore

import (
	"context"

	"librarysvc/pkg/domain"
)

// Store defines persistence operations for patron records plus the
// set-membership mutations used by lending.
type Store interface {
	// Create persists a new patron and returns the store-generated
	// identifier. It fails with domain.ErrDuplicateKey when the email is
	// already registered.
	Create(ctx context.Context, patron domain.Patron) (string, error)
	// Update replaces the record keyed by identifier and refreshes
	// updated_at. It fails with domain.ErrNotFound when absent.
	Update(ctx context.Context, patron domain.Patron) (string, error)

	GetByID(ctx context.Context, id string) (domain.Patron, error)
	GetByEmail(ctx context.Context, email string) (domain.Patron, error)

	// DeleteByID reports whether a record was actually removed.
	DeleteByID(ctx context.Context, id string) (bool, error)

	// List pages through patrons ordered by creation time descending.
	List(ctx context.Context, limit, offset int, activeOnly bool) ([]domain.Patron, error)
	// SearchByName matches a case-insensitive substring against first or
	// last name, ordered by last name ascending.
	SearchByName(ctx context.Context, name string, limit int) ([]domain.Patron, error)
	// ListByMembershipType returns patrons of one tier, ordered by last
	// name ascending.
	ListByMembershipType(ctx context.Context, membership domain.MembershipType) ([]domain.Patron, error)

	// CheckoutBook atomically adds bookID to the patron's checked-out set,
	// increments the lifetime borrow counter and refreshes updated_at.
	// The add only applies while the set holds fewer than maxBooks
	// elements (maxBooks <= 0 disables the guard); a full set fails with
	// domain.ErrPatronIneligible. A missing patron fails with
	// domain.ErrNotFound. Adding a book already in the set returns false
	// with no error and leaves the counter untouched, never a false
	// success.
	CheckoutBook(ctx context.Context, patronID, bookID string, maxBooks int) (bool, error)
	// ReturnBook atomically removes bookID from the set; false when the
	// book was not in it, domain.ErrNotFound when the patron is missing.
	ReturnBook(ctx context.Context, patronID, bookID string) (bool, error)
	// FindByCheckedOutBook returns the patron currently holding bookID,
	// or domain.ErrNotFound when no patron holds it.
	FindByCheckedOutBook(ctx context.Context, bookID string) (domain.Patron, error)
}
