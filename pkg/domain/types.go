package domain

import "time"

// MembershipType classifies a patron's membership tier.
type MembershipType string

const (
	MembershipStudent   MembershipType = "student"
	MembershipFaculty   MembershipType = "faculty"
	MembershipCommunity MembershipType = "community"
	MembershipPremium   MembershipType = "premium"
)

// ParseMembershipType normalizes a raw tier string.
func ParseMembershipType(s string) (MembershipType, bool) {
	switch MembershipType(s) {
	case MembershipStudent, MembershipFaculty, MembershipCommunity, MembershipPremium:
		return MembershipType(s), true
	}
	return "", false
}

// Book is a catalog record. A book is addressable by either its primary
// identifier or its ISBN; both resolve to the same row.
type Book struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	ISBN        int64  `json:"isbnNumber"`
	CheckedOut  bool   `json:"checkedOut"`
}

// Patron is a library member and the owner of its checked-out book set.
type Patron struct {
	ID              string         `json:"id"`
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone,omitempty"`
	Address         string         `json:"address,omitempty"`
	MembershipType  MembershipType `json:"membershipType"`
	MembershipStart time.Time      `json:"membershipStartDate"`
	MembershipEnd   *time.Time     `json:"membershipEndDate,omitempty"`
	BooksCheckedOut []string       `json:"booksCheckedOut"`
	TotalBorrowed   int            `json:"totalBooksBorrowed"`
	Active          bool           `json:"active"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// FullName returns the patron's display name.
func (p Patron) FullName() string {
	return p.FirstName + " " + p.LastName
}

// MembershipCurrent reports whether the membership is active at now.
// A nil end date means the membership never expires.
func (p Patron) MembershipCurrent(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.MembershipEnd != nil {
		return !now.After(*p.MembershipEnd)
	}
	return true
}

// CanCheckout reports whether the patron may check out another book.
func (p Patron) CanCheckout(now time.Time, maxBooks int) bool {
	return p.MembershipCurrent(now) && len(p.BooksCheckedOut) < maxBooks
}

// KeyKind tags which unique key a caller is using to address a book.
type KeyKind int

const (
	KeyKindPrimary KeyKind = iota
	KeyKindISBN
)

func (k KeyKind) String() string {
	switch k {
	case KeyKindPrimary:
		return "id"
	case KeyKindISBN:
		return "isbn"
	}
	return "unknown"
}

// ParseKeyKind maps a wire value to a KeyKind.
func ParseKeyKind(s string) (KeyKind, bool) {
	switch s {
	case "", "id", "primary":
		return KeyKindPrimary, true
	case "isbn":
		return KeyKindISBN, true
	}
	return 0, false
}

// BookKey is a tagged dual-typed book address.
type BookKey struct {
	Kind KeyKind
	ID   string
	ISBN int64
}

// PrimaryKey addresses a book by its primary identifier.
func PrimaryKey(id string) BookKey {
	return BookKey{Kind: KeyKindPrimary, ID: id}
}

// ISBNKey addresses a book by its ISBN.
func ISBNKey(isbn int64) BookKey {
	return BookKey{Kind: KeyKindISBN, ISBN: isbn}
}
