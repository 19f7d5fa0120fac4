package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"librarysvc/pkg/bookstore"
	"librarysvc/pkg/domain"
	"librarysvc/pkg/lending"
	"librarysvc/pkg/patronstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	coord, err := lending.New(lending.Config{
		Books:   bookstore.NewMemoryStore(),
		Patrons: patronstore.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	srv, err := New(Config{Lending: coord})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createBook(t *testing.T, srv *Server, book domain.Book) string {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/books", book)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[map[string]string](t, rec)["id"]
}

func enrollPatron(t *testing.T, srv *Server, email string) string {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/patrons", domain.Patron{
		FirstName: "Ada", LastName: "Lovelace", Email: email,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll patron: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[map[string]string](t, rec)["id"]
}

func TestCreateBookAssignsIdentifier(t *testing.T) {
	srv := newTestServer(t)
	id := createBook(t, srv, domain.Book{Title: "Dune", Author: "Herbert", ISBN: 111})
	if id == "" {
		t.Fatal("server must assign an identifier when absent")
	}

	rec := doJSON(t, srv, http.MethodGet, "/books/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get book: status %d", rec.Code)
	}
	book := decode[domain.Book](t, rec)
	if book.ID != id || book.Title != "Dune" {
		t.Fatalf("unexpected book: %+v", book)
	}
}

func TestCreateBookInvalidBody(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Code != codeBadRequest {
		t.Fatalf("want code %s, got %s", codeBadRequest, resp.Code)
	}
}

func TestGetBookByISBN(t *testing.T) {
	srv := newTestServer(t)
	id := createBook(t, srv, domain.Book{Title: "Dune", ISBN: 111})

	rec := doJSON(t, srv, http.MethodGet, "/books/111?kind=isbn", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by isbn: status %d body %s", rec.Code, rec.Body.String())
	}
	book := decode[domain.Book](t, rec)
	if book.ID != id {
		t.Fatalf("isbn resolved wrong record: %+v", book)
	}

	rec = doJSON(t, srv, http.MethodGet, "/books/not-a-number?kind=isbn", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed isbn: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/books/111?kind=barcode", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind: status %d", rec.Code)
	}
}

func TestGetBookNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/books/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Code != codeNotFound {
		t.Fatalf("want code %s, got %s", codeNotFound, resp.Code)
	}
	if resp.RequestID == "" {
		t.Fatal("error payload should carry the request id")
	}
}

func TestCheckoutAndReturnFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createBook(t, srv, domain.Book{Title: "Dune", ISBN: 111})
	patronID := enrollPatron(t, srv, "ada@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/books/111/checkout?kind=isbn", map[string]string{"patronId": patronID})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]string](t, rec)["id"]; got != id {
		t.Fatalf("checkout returned %s, want %s", got, id)
	}

	rec = doJSON(t, srv, http.MethodGet, "/books/111?kind=isbn", nil)
	if book := decode[domain.Book](t, rec); !book.CheckedOut {
		t.Fatalf("book should be checked out: %+v", book)
	}
	rec = doJSON(t, srv, http.MethodGet, "/patrons/"+patronID, nil)
	if patron := decode[domain.Patron](t, rec); len(patron.BooksCheckedOut) != 1 {
		t.Fatalf("patron set should contain the book: %+v", patron)
	}

	rec = doJSON(t, srv, http.MethodPost, "/books/111/return?kind=isbn", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("return: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodGet, "/books/111?kind=isbn", nil)
	if book := decode[domain.Book](t, rec); book.CheckedOut {
		t.Fatalf("book should be available: %+v", book)
	}
	rec = doJSON(t, srv, http.MethodGet, "/patrons/"+patronID, nil)
	if patron := decode[domain.Patron](t, rec); len(patron.BooksCheckedOut) != 0 {
		t.Fatalf("patron set should be empty: %+v", patron)
	}
}

func TestCheckoutIneligiblePatronIsConflict(t *testing.T) {
	srv := newTestServer(t)
	patronID := enrollPatron(t, srv, "ada@example.com")
	for i := 0; i < lending.DefaultMaxBooksPerPatron; i++ {
		id := createBook(t, srv, domain.Book{Title: "Vol", ISBN: int64(100 + i)})
		rec := doJSON(t, srv, http.MethodPost, "/books/"+id+"/checkout", map[string]string{"patronId": patronID})
		if rec.Code != http.StatusOK {
			t.Fatalf("checkout %d: status %d", i, rec.Code)
		}
	}

	over := createBook(t, srv, domain.Book{Title: "One more", ISBN: 999})
	rec := doJSON(t, srv, http.MethodPost, "/books/"+over+"/checkout", map[string]string{"patronId": patronID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if resp := decode[errorResponse](t, rec); resp.Code != codeConflict {
		t.Fatalf("want code %s, got %s", codeConflict, resp.Code)
	}
}

func TestDeleteBookReportsOutcome(t *testing.T) {
	srv := newTestServer(t)
	createBook(t, srv, domain.Book{Title: "Dune", ISBN: 111})

	rec := doJSON(t, srv, http.MethodDelete, "/books/111?kind=isbn", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if !decode[map[string]bool](t, rec)["deleted"] {
		t.Fatal("first delete should report true")
	}

	rec = doJSON(t, srv, http.MethodDelete, "/books/111?kind=isbn", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second delete: status %d", rec.Code)
	}
	if decode[map[string]bool](t, rec)["deleted"] {
		t.Fatal("deleting a missing book must report false, not an error")
	}
}

func TestListBooksHonorsLimit(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		createBook(t, srv, domain.Book{Title: fmt.Sprintf("Vol %d", i), ISBN: int64(100 + i)})
	}
	rec := doJSON(t, srv, http.MethodGet, "/books?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	out := decode[struct {
		Items []domain.Book `json:"items"`
		Count int           `json:"count"`
	}](t, rec)
	if out.Count != 2 || len(out.Items) != 2 {
		t.Fatalf("unexpected list: %+v", out)
	}
}

func TestEnrollDuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	enrollPatron(t, srv, "ada@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/patrons", domain.Patron{
		FirstName: "Ada", LastName: "Byron", Email: "ada@example.com",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if resp := decode[errorResponse](t, rec); resp.Code != codeConflict {
		t.Fatalf("want code %s, got %s", codeConflict, resp.Code)
	}
}

func TestPatronQueries(t *testing.T) {
	srv := newTestServer(t)
	enrollPatron(t, srv, "ada@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/patrons", domain.Patron{
		FirstName: "Alan", LastName: "Turing", Email: "alan@example.com",
		MembershipType: domain.MembershipFaculty,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll: status %d", rec.Code)
	}

	type listResponse struct {
		Items []domain.Patron `json:"items"`
		Count int             `json:"count"`
	}

	rec = doJSON(t, srv, http.MethodGet, "/patrons?q=tur", nil)
	if out := decode[listResponse](t, rec); out.Count != 1 || out.Items[0].LastName != "Turing" {
		t.Fatalf("search: %+v", out)
	}

	rec = doJSON(t, srv, http.MethodGet, "/patrons?membership=faculty", nil)
	if out := decode[listResponse](t, rec); out.Count != 1 || out.Items[0].Email != "alan@example.com" {
		t.Fatalf("membership filter: %+v", out)
	}

	rec = doJSON(t, srv, http.MethodGet, "/patrons?membership=royalty", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown membership: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/patrons?email=ada@example.com", nil)
	if out := decode[listResponse](t, rec); out.Count != 1 || out.Items[0].Email != "ada@example.com" {
		t.Fatalf("email lookup: %+v", out)
	}

	rec = doJSON(t, srv, http.MethodGet, "/patrons", nil)
	if out := decode[listResponse](t, rec); out.Count != 2 {
		t.Fatalf("list: %+v", out)
	}
}

func TestUpdateAndDeletePatron(t *testing.T) {
	srv := newTestServer(t)
	id := enrollPatron(t, srv, "ada@example.com")

	rec := doJSON(t, srv, http.MethodGet, "/patrons/"+id, nil)
	patron := decode[domain.Patron](t, rec)
	patron.Phone = "555-0100"
	rec = doJSON(t, srv, http.MethodPut, "/patrons/"+id, patron)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/patrons/"+id, nil)
	if got := decode[domain.Patron](t, rec); got.Phone != "555-0100" {
		t.Fatalf("update not applied: %+v", got)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/patrons/"+id, nil)
	if !decode[map[string]bool](t, rec)["deleted"] {
		t.Fatal("delete should report true")
	}
	rec = doJSON(t, srv, http.MethodDelete, "/patrons/"+id, nil)
	if decode[map[string]bool](t, rec)["deleted"] {
		t.Fatal("second delete must report false")
	}
}

func TestOpsRouterServesIntents(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/internal/lending/intents", nil)
	rec := httptest.NewRecorder()
	srv.OpsRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	out := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if out.Count != 0 {
		t.Fatalf("no intents expected, got %d", out.Count)
	}
}
