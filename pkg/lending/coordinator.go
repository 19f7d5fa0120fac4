// Package lending holds the domain core: resolving books by dual-typed
// keys and transitioning them between available and checked-out while
// keeping the book store and the patron store mutually consistent without
// a shared transaction.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"librarysvc/pkg/bookstore"
	"librarysvc/pkg/domain"
	"librarysvc/pkg/intentlog"
	"librarysvc/pkg/patronstore"
)

// DefaultMaxBooksPerPatron bounds a patron's checked-out set.
const DefaultMaxBooksPerPatron = 5

// Config wires the coordinator's dependencies.
type Config struct {
	Books    bookstore.Store
	Patrons  patronstore.Store
	Intents  intentlog.Log
	MaxBooks int
	Now      func() time.Time
	Logger   *slog.Logger
}

// Coordinator is the single authority for the Available ⇄ CheckedOut
// transition. All facade traffic goes through it.
type Coordinator struct {
	books    bookstore.Store
	patrons  patronstore.Store
	intents  intentlog.Log
	maxBooks int
	now      func() time.Time
	log      *slog.Logger
}

// New constructs the coordinator. Books and Patrons are required; the
// intent log defaults to a no-op.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Books == nil {
		return nil, errors.New("lending: book store required")
	}
	if cfg.Patrons == nil {
		return nil, errors.New("lending: patron store required")
	}
	intents := cfg.Intents
	if intents == nil {
		intents = intentlog.Noop{}
	}
	maxBooks := cfg.MaxBooks
	if maxBooks <= 0 {
		maxBooks = DefaultMaxBooksPerPatron
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		books:    cfg.Books,
		patrons:  cfg.Patrons,
		intents:  intents,
		maxBooks: maxBooks,
		now:      now,
		log:      logger,
	}, nil
}

// AddBook persists a new catalog record.
func (c *Coordinator) AddBook(ctx context.Context, book domain.Book) (string, error) {
	if book.ID == "" {
		return "", fmt.Errorf("%w: book id required", domain.ErrBadRequest)
	}
	return c.books.Create(ctx, book)
}

// UpdateBook replaces the full record keyed by identifier.
func (c *Coordinator) UpdateBook(ctx context.Context, book domain.Book) (string, error) {
	return c.books.Update(ctx, book)
}

// GetBook resolves a book by either key kind.
func (c *Coordinator) GetBook(ctx context.Context, key domain.BookKey) (domain.Book, error) {
	return resolveAccessor(c.books, key.Kind).get(ctx, key)
}

// ListBooks returns up to limit catalog records.
func (c *Coordinator) ListBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	return c.books.List(ctx, limit)
}

// DeleteBook removes a book by either key kind, reporting whether a record
// was actually deleted.
func (c *Coordinator) DeleteBook(ctx context.Context, key domain.BookKey) (bool, error) {
	return resolveAccessor(c.books, key.Kind).del(ctx, key)
}

// Checkout transitions a book from available to checked out on behalf of a
// patron. Checking out a book that is already checked out is a no-op
// success returning the current identifier. The two-store write is
// bracketed by intent records and compensated on divergence.
func (c *Coordinator) Checkout(ctx context.Context, key domain.BookKey, patronID string) (string, error) {
	if patronID == "" {
		return "", fmt.Errorf("%w: patron id required", domain.ErrBadRequest)
	}
	book, err := resolveAccessor(c.books, key.Kind).get(ctx, key)
	if err != nil {
		return "", err
	}
	if book.CheckedOut {
		// A repeat checkout by the holding patron is a no-op success,
		// mirroring the set semantics on the patron side. Anyone else
		// gets a conflict, never a second copy.
		holder, herr := c.patrons.FindByCheckedOutBook(ctx, book.ID)
		if herr == nil && holder.ID == patronID {
			return book.ID, nil
		}
		if herr != nil && !errors.Is(herr, domain.ErrNotFound) {
			return "", herr
		}
		return "", fmt.Errorf("%w: book %s is already checked out", domain.ErrConflict, book.ID)
	}

	patron, err := c.patrons.GetByID(ctx, patronID)
	if err != nil {
		return "", err
	}
	if !patron.CanCheckout(c.now(), c.maxBooks) {
		return "", fmt.Errorf("%w: patron %s (active=%t, holding %d of %d)",
			domain.ErrPatronIneligible, patronID, patron.Active, len(patron.BooksCheckedOut), c.maxBooks)
	}

	// Intent is advisory: it must not block lending when the intent store
	// is down, only make divergence discoverable afterwards.
	if err := c.intents.Begin(ctx, intentlog.OpCheckout, book.ID, patronID); err != nil {
		c.log.Warn("intent record failed", "op", "checkout", "book_id", book.ID, "err", err)
	}

	changed, err := c.books.SetCheckedOut(ctx, book.ID, false, true)
	if err != nil {
		return "", err
	}
	if !changed {
		// The conditional update lost a race: the book vanished or was
		// checked out by a concurrent worker since we read it.
		if _, gerr := c.books.GetByID(ctx, book.ID); gerr != nil {
			return "", gerr
		}
		return "", fmt.Errorf("%w: book %s was checked out concurrently", domain.ErrConflict, book.ID)
	}

	added, err := c.patrons.CheckoutBook(ctx, patronID, book.ID, c.maxBooks)
	if err != nil {
		// Covers the patron vanishing or filling up between the
		// eligibility read and the set mutation; the book flip is reverted
		// and the divergence is surfaced, never a silent success.
		return "", c.compensate(ctx, intentlog.OpCheckout, book.ID, patronID, err, true)
	}
	if !added {
		// The book was already in the set. Both stores agree on the final
		// state, so this is not a failure.
		c.log.Warn("patron already held book at checkout", "book_id", book.ID, "patron_id", patronID)
	}
	if err := c.intents.Complete(ctx, intentlog.OpCheckout, book.ID, patronID); err != nil {
		c.log.Warn("intent clear failed", "op", "checkout", "book_id", book.ID, "err", err)
	}
	c.log.Info("book checked out", "book_id", book.ID, "patron_id", patronID, "patron", patron.FullName())
	return book.ID, nil
}

// Return transitions a book from checked out back to available and removes
// it from the holding patron's set. Returning an already-available book is
// a no-op success.
func (c *Coordinator) Return(ctx context.Context, key domain.BookKey) (string, error) {
	book, err := resolveAccessor(c.books, key.Kind).get(ctx, key)
	if err != nil {
		return "", err
	}
	if !book.CheckedOut {
		return book.ID, nil
	}

	holder, err := c.patrons.FindByCheckedOutBook(ctx, book.ID)
	holderKnown := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if !holderKnown {
		// Book-side state says checked out but no patron holds it; a prior
		// divergence. The return still proceeds on the book side.
		c.log.Warn("no patron holds checked-out book", "book_id", book.ID)
	}

	if holderKnown {
		if err := c.intents.Begin(ctx, intentlog.OpReturn, book.ID, holder.ID); err != nil {
			c.log.Warn("intent record failed", "op", "return", "book_id", book.ID, "err", err)
		}
	}

	changed, err := c.books.SetCheckedOut(ctx, book.ID, true, false)
	if err != nil {
		return "", err
	}
	if !changed {
		current, gerr := c.books.GetByID(ctx, book.ID)
		if gerr != nil {
			return "", gerr
		}
		if !current.CheckedOut {
			// A concurrent return already landed; same no-op success as a
			// repeat return.
			return book.ID, nil
		}
		return "", fmt.Errorf("%w: book %s changed state concurrently", domain.ErrConflict, book.ID)
	}

	if holderKnown {
		removed, rerr := c.patrons.ReturnBook(ctx, holder.ID, book.ID)
		if rerr != nil {
			return "", c.compensate(ctx, intentlog.OpReturn, book.ID, holder.ID, rerr, false)
		}
		if !removed {
			c.log.Warn("book was not in holder's set at return", "book_id", book.ID, "patron_id", holder.ID)
		}
		if err := c.intents.Complete(ctx, intentlog.OpReturn, book.ID, holder.ID); err != nil {
			c.log.Warn("intent clear failed", "op", "return", "book_id", book.ID, "err", err)
		}
	}
	return book.ID, nil
}

// compensate reverts the book-side flip after the patron-side mutation
// failed. checkedOut is the state the failed operation had set. Whether or
// not the revert lands, the caller gets a PartialFailureError, never a
// silent success.
func (c *Coordinator) compensate(ctx context.Context, op intentlog.Op, bookID, patronID string, cause error, checkedOut bool) error {
	pf := &domain.PartialFailureError{
		Op:       string(op),
		BookID:   bookID,
		PatronID: patronID,
		Cause:    cause,
	}
	reverted, rerr := c.books.SetCheckedOut(ctx, bookID, checkedOut, !checkedOut)
	switch {
	case rerr != nil:
		pf.CompensationErr = rerr
	case !reverted:
		pf.CompensationErr = fmt.Errorf("book %s no longer in expected state", bookID)
	default:
		pf.Compensated = true
	}
	if pf.Compensated {
		if err := c.intents.Complete(ctx, op, bookID, patronID); err != nil {
			c.log.Warn("intent clear failed after compensation", "op", op, "book_id", bookID, "err", err)
		}
	} else {
		if err := c.intents.MarkDivergent(ctx, op, bookID, patronID, cause.Error()); err != nil {
			c.log.Warn("intent divergence mark failed", "op", op, "book_id", bookID, "err", err)
		}
	}
	c.log.Error("lending partial failure", "op", op, "book_id", bookID, "patron_id", patronID,
		"compensated", pf.Compensated, "err", cause)
	return pf
}

// EnrollPatron registers a new patron with sane defaults applied.
func (c *Coordinator) EnrollPatron(ctx context.Context, patron domain.Patron) (string, error) {
	if patron.FirstName == "" || patron.LastName == "" {
		return "", fmt.Errorf("%w: patron name required", domain.ErrBadRequest)
	}
	if patron.Email == "" {
		return "", fmt.Errorf("%w: patron email required", domain.ErrBadRequest)
	}
	if patron.MembershipType == "" {
		patron.MembershipType = domain.MembershipCommunity
	}
	if _, ok := domain.ParseMembershipType(string(patron.MembershipType)); !ok {
		return "", fmt.Errorf("%w: unknown membership type %q", domain.ErrBadRequest, patron.MembershipType)
	}
	now := c.now()
	if patron.MembershipStart.IsZero() {
		patron.MembershipStart = now
	}
	patron.BooksCheckedOut = []string{}
	patron.TotalBorrowed = 0
	patron.Active = true
	patron.CreatedAt = now
	patron.UpdatedAt = now
	return c.patrons.Create(ctx, patron)
}

// GetPatron returns one patron by identifier.
func (c *Coordinator) GetPatron(ctx context.Context, id string) (domain.Patron, error) {
	return c.patrons.GetByID(ctx, id)
}

// GetPatronByEmail returns one patron by unique email.
func (c *Coordinator) GetPatronByEmail(ctx context.Context, email string) (domain.Patron, error) {
	return c.patrons.GetByEmail(ctx, email)
}

// UpdatePatron replaces a patron's profile.
func (c *Coordinator) UpdatePatron(ctx context.Context, patron domain.Patron) (string, error) {
	if patron.ID == "" {
		return "", fmt.Errorf("%w: patron id required", domain.ErrBadRequest)
	}
	if patron.MembershipType != "" {
		if _, ok := domain.ParseMembershipType(string(patron.MembershipType)); !ok {
			return "", fmt.Errorf("%w: unknown membership type %q", domain.ErrBadRequest, patron.MembershipType)
		}
	}
	return c.patrons.Update(ctx, patron)
}

// DeletePatron removes a patron, reporting whether a record was deleted.
func (c *Coordinator) DeletePatron(ctx context.Context, id string) (bool, error) {
	return c.patrons.DeleteByID(ctx, id)
}

// ListPatrons pages through patrons newest first.
func (c *Coordinator) ListPatrons(ctx context.Context, limit, offset int, activeOnly bool) ([]domain.Patron, error) {
	return c.patrons.List(ctx, limit, offset, activeOnly)
}

// SearchPatrons matches patrons by name substring.
func (c *Coordinator) SearchPatrons(ctx context.Context, name string, limit int) ([]domain.Patron, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: search term required", domain.ErrBadRequest)
	}
	return c.patrons.SearchByName(ctx, name, limit)
}

// PatronsByMembership lists patrons of one membership tier.
func (c *Coordinator) PatronsByMembership(ctx context.Context, membership domain.MembershipType) ([]domain.Patron, error) {
	if _, ok := domain.ParseMembershipType(string(membership)); !ok {
		return nil, fmt.Errorf("%w: unknown membership type %q", domain.ErrBadRequest, membership)
	}
	return c.patrons.ListByMembershipType(ctx, membership)
}

// PendingIntents lists outstanding intent records for reconciliation.
func (c *Coordinator) PendingIntents(ctx context.Context) ([]intentlog.Record, error) {
	return c.intents.Pending(ctx)
}
