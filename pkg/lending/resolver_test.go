package lending

import (
	"context"
	"testing"

	"librarysvc/pkg/bookstore"
	"librarysvc/pkg/domain"
)

func TestResolveAccessorDispatch(t *testing.T) {
	books := bookstore.NewMemoryStore()
	ctx := context.Background()
	if _, err := books.Create(ctx, domain.Book{ID: "b-1", ISBN: 111}); err != nil {
		t.Fatalf("create: %v", err)
	}

	byID, err := resolveAccessor(books, domain.KeyKindPrimary).get(ctx, domain.PrimaryKey("b-1"))
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	byISBN, err := resolveAccessor(books, domain.KeyKindISBN).get(ctx, domain.ISBNKey(111))
	if err != nil {
		t.Fatalf("get by isbn: %v", err)
	}
	if byID != byISBN {
		t.Fatalf("both kinds must resolve the same record: %+v vs %+v", byID, byISBN)
	}

	deleted, err := resolveAccessor(books, domain.KeyKindISBN).del(ctx, domain.ISBNKey(111))
	if err != nil || !deleted {
		t.Fatalf("delete by isbn: deleted=%t err=%v", deleted, err)
	}
}

func TestResolveAccessorUnknownKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("unknown key kind must panic")
		}
	}()
	resolveAccessor(bookstore.NewMemoryStore(), domain.KeyKind(42))
}
