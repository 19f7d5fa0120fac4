package lending

import (
	"context"
	"fmt"

	"librarysvc/pkg/bookstore"
	"librarysvc/pkg/domain"
)

// accessor bundles the read and delete paths for one key kind so that
// callers never branch on the kind themselves.
type accessor struct {
	get func(ctx context.Context, key domain.BookKey) (domain.Book, error)
	del func(ctx context.Context, key domain.BookKey) (bool, error)
}

// resolveAccessor dispatches a key kind to the matching book store
// operations. Pure dispatch, no I/O. An unknown kind is a programming
// error: the facade validates kinds at the boundary, so this fails fast
// instead of returning a recoverable error.
func resolveAccessor(books bookstore.Store, kind domain.KeyKind) accessor {
	switch kind {
	case domain.KeyKindPrimary:
		return accessor{
			get: func(ctx context.Context, key domain.BookKey) (domain.Book, error) {
				return books.GetByID(ctx, key.ID)
			},
			del: func(ctx context.Context, key domain.BookKey) (bool, error) {
				return books.DeleteByID(ctx, key.ID)
			},
		}
	case domain.KeyKindISBN:
		return accessor{
			get: func(ctx context.Context, key domain.BookKey) (domain.Book, error) {
				return books.GetByISBN(ctx, key.ISBN)
			},
			del: func(ctx context.Context, key domain.BookKey) (bool, error) {
				return books.DeleteByISBN(ctx, key.ISBN)
			},
		}
	}
	panic(fmt.Sprintf("lending: unknown key kind %d", kind))
}
