package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"librarysvc/internal/util"
	"librarysvc/pkg/domain"
	"librarysvc/pkg/lending"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Lending *lending.Coordinator
}

// Server exposes the RPC surface of the library service.
type Server struct {
	lending *lending.Coordinator
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Lending == nil {
		return nil, errors.New("server: lending coordinator required")
	}
	s := &Server{
		lending: cfg.Lending,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured public handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("library", s.mux))
}

// OpsRouter returns the operational handler served on the ops listener.
func (s *Server) OpsRouter() http.Handler {
	ops := http.NewServeMux()
	ops.HandleFunc("/healthz", s.handleHealth)
	ops.HandleFunc("/internal/lending/intents", s.handleIntents)
	return util.WithRequestID(util.WithRequestLog("library-ops", ops))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// books
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookByKey)

	// patrons
	s.mux.HandleFunc("/patrons", s.handlePatrons)
	s.mux.HandleFunc("/patrons/", s.handlePatronByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	records, err := s.lending.PendingIntents(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"count": len(records),
	})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBook(w, r)
	case http.MethodGet:
		s.handleListBooks(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var book domain.Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	id, err := s.lending.AddBook(r.Context(), book)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 100)
	books, err := s.lending.ListBooks(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

// /books/{key} with ?kind=id|isbn, plus /books/{key}/checkout and
// /books/{key}/return.
func (s *Server) handleBookByKey(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.SplitN(path, "/", 2)
	rawKey := parts[0]
	if rawKey == "" {
		notFound(w, "not found")
		return
	}
	key, ok := parseBookKey(rawKey, r.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid book key")
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "checkout":
			s.handleCheckout(w, r, key)
		case "return":
			s.handleReturn(w, r, key)
		default:
			notFound(w, "not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		book, err := s.lending.GetBook(r.Context(), key)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		s.handleUpdateBook(w, r, key)
	case http.MethodDelete:
		deleted, err := s.lending.DeleteBook(r.Context(), key)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, key domain.BookKey) {
	if key.Kind != domain.KeyKindPrimary {
		writeError(w, http.StatusBadRequest, codeBadRequest, "update is keyed by primary identifier")
		return
	}
	var book domain.Book
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	book.ID = key.ID
	id, err := s.lending.UpdateBook(r.Context(), book)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, key domain.BookKey) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		PatronID string `json:"patronId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	id, err := s.lending.Checkout(r.Context(), key, req.PatronID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request, key domain.BookKey) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, err := s.lending.Return(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handlePatrons(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleEnrollPatron(w, r)
	case http.MethodGet:
		s.handleListPatrons(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleEnrollPatron(w http.ResponseWriter, r *http.Request) {
	var patron domain.Patron
	if err := json.NewDecoder(r.Body).Decode(&patron); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	id, err := s.lending.EnrollPatron(r.Context(), patron)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListPatrons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var (
		patrons []domain.Patron
		err     error
	)
	switch {
	case q.Get("email") != "":
		var patron domain.Patron
		patron, err = s.lending.GetPatronByEmail(ctx, q.Get("email"))
		if err == nil {
			patrons = []domain.Patron{patron}
		}
	case q.Get("q") != "":
		patrons, err = s.lending.SearchPatrons(ctx, q.Get("q"), intQuery(r, "limit", 50))
	case q.Get("membership") != "":
		patrons, err = s.lending.PatronsByMembership(ctx, domain.MembershipType(q.Get("membership")))
	default:
		activeOnly := q.Get("active") != "false"
		patrons, err = s.lending.ListPatrons(ctx, intQuery(r, "limit", 100), intQuery(r, "offset", 0), activeOnly)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": patrons,
		"count": len(patrons),
	})
}

// /patrons/{id}
func (s *Server) handlePatronByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/patrons/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		patron, err := s.lending.GetPatron(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, patron)
	case http.MethodPut:
		var patron domain.Patron
		if err := json.NewDecoder(r.Body).Decode(&patron); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}
		patron.ID = id
		updatedID, err := s.lending.UpdatePatron(r.Context(), patron)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": updatedID})
	case http.MethodDelete:
		deleted, err := s.lending.DeletePatron(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	default:
		methodNotAllowed(w)
	}
}

func parseBookKey(raw, kindParam string) (domain.BookKey, bool) {
	kind, ok := domain.ParseKeyKind(kindParam)
	if !ok {
		return domain.BookKey{}, false
	}
	if kind == domain.KeyKindISBN {
		isbn, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.BookKey{}, false
		}
		return domain.ISBNKey(isbn), true
	}
	return domain.PrimaryKey(raw), true
}

func intQuery(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
