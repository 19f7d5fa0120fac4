package patronstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"librarysvc/pkg/domain"
)

const collectionName = "patrons"

// patronDoc maps a patron onto the document schema.
type patronDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	FirstName       string             `bson:"first_name"`
	LastName        string             `bson:"last_name"`
	Email           string             `bson:"email"`
	Phone           string             `bson:"phone,omitempty"`
	Address         string             `bson:"address,omitempty"`
	MembershipType  string             `bson:"membership_type"`
	MembershipStart time.Time          `bson:"membership_start_date"`
	MembershipEnd   *time.Time         `bson:"membership_end_date,omitempty"`
	BooksCheckedOut []string           `bson:"books_checked_out"`
	TotalBorrowed   int                `bson:"total_books_borrowed"`
	Active          bool               `bson:"active"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

func (d patronDoc) toDomain() domain.Patron {
	books := d.BooksCheckedOut
	if books == nil {
		books = []string{}
	}
	return domain.Patron{
		ID:              d.ID.Hex(),
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Email:           d.Email,
		Phone:           d.Phone,
		Address:         d.Address,
		MembershipType:  domain.MembershipType(d.MembershipType),
		MembershipStart: d.MembershipStart,
		MembershipEnd:   d.MembershipEnd,
		BooksCheckedOut: books,
		TotalBorrowed:   d.TotalBorrowed,
		Active:          d.Active,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func docFromPatron(p domain.Patron) patronDoc {
	return patronDoc{
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Email:           p.Email,
		Phone:           p.Phone,
		Address:         p.Address,
		MembershipType:  string(p.MembershipType),
		MembershipStart: p.MembershipStart,
		MembershipEnd:   p.MembershipEnd,
		BooksCheckedOut: p.BooksCheckedOut,
		TotalBorrowed:   p.TotalBorrowed,
		Active:          p.Active,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the patrons collection of db. The caller owns the
// client lifecycle; connect and disconnect happen at the process entry
// point, not here.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the unique email index and the read-path indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "membership_type", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "first_name", Value: 1}, {Key: "last_name", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create patron indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, patron domain.Patron) (string, error) {
	doc := docFromPatron(patron)
	if doc.BooksCheckedOut == nil {
		doc.BooksCheckedOut = []string{}
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", mapMongoErr("create patron", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("create patron: unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (s *MongoStore) Update(ctx context.Context, patron domain.Patron) (string, error) {
	oid, err := objectID(patron.ID)
	if err != nil {
		return "", err
	}
	doc := docFromPatron(patron)
	doc.UpdatedAt = time.Now().UTC()
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": doc})
	if err != nil {
		return "", mapMongoErr("update patron", err)
	}
	if res.MatchedCount == 0 {
		return "", fmt.Errorf("%w: patron %s", domain.ErrNotFound, patron.ID)
	}
	return patron.ID, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (domain.Patron, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.Patron{}, err
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (domain.Patron, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (domain.Patron, error) {
	var doc patronDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Patron{}, mapMongoErr("get patron", err)
	}
	return doc.toDomain(), nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	oid, err := objectID(id)
	if err != nil {
		return false, nil
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, mapMongoErr("delete patron", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) List(ctx context.Context, limit, offset int, activeOnly bool) ([]domain.Patron, error) {
	if limit <= 0 {
		limit = 100
	}
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}
	opts := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findMany(ctx, "list patrons", filter, opts)
}

func (s *MongoStore) SearchByName(ctx context.Context, name string, limit int) ([]domain.Patron, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"first_name": bson.M{"$regex": name, "$options": "i"}},
		bson.M{"last_name": bson.M{"$regex": name, "$options": "i"}},
	}}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "last_name", Value: 1}})
	return s.findMany(ctx, "search patrons", filter, opts)
}

func (s *MongoStore) ListByMembershipType(ctx context.Context, membership domain.MembershipType) ([]domain.Patron, error) {
	filter := bson.M{"membership_type": string(membership)}
	opts := options.Find().SetSort(bson.D{{Key: "last_name", Value: 1}})
	return s.findMany(ctx, "list patrons by membership", filter, opts)
}

func (s *MongoStore) findMany(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]domain.Patron, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapMongoErr(op, err)
	}
	defer cur.Close(ctx)
	patrons := []domain.Patron{}
	for cur.Next(ctx) {
		var doc patronDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		patrons = append(patrons, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, mapMongoErr(op, err)
	}
	return patrons, nil
}

// CheckoutBook filters the update on the book being absent from the set
// and the set being under the limit, so the $inc and updated_at never fire
// on a no-op add. A plain $addToSet filter would still modify the document
// through the companion operators and report a false success.
func (s *MongoStore) CheckoutBook(ctx context.Context, patronID, bookID string, maxBooks int) (bool, error) {
	oid, err := objectID(patronID)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":               oid,
		"books_checked_out": bson.M{"$ne": bookID},
	}
	if maxBooks > 0 {
		filter["$expr"] = bson.M{"$lt": bson.A{bson.M{"$size": "$books_checked_out"}, maxBooks}}
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{
		"$addToSet": bson.M{"books_checked_out": bookID},
		"$inc":      bson.M{"total_books_borrowed": 1},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return false, mapMongoErr("checkout book", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	// Nothing matched: tell a missing patron apart from a no-op add and
	// from a full set with a follow-up read.
	patron, err := s.GetByID(ctx, patronID)
	if err != nil {
		return false, err
	}
	for _, id := range patron.BooksCheckedOut {
		if id == bookID {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: patron %s holds %d of %d books",
		domain.ErrPatronIneligible, patronID, len(patron.BooksCheckedOut), maxBooks)
}

// ReturnBook filters on set containment for the same reason: the $set on
// updated_at would otherwise report a modification even when $pull removed
// nothing.
func (s *MongoStore) ReturnBook(ctx context.Context, patronID, bookID string) (bool, error) {
	oid, err := objectID(patronID)
	if err != nil {
		return false, err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid, "books_checked_out": bookID}, bson.M{
		"$pull": bson.M{"books_checked_out": bookID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return false, mapMongoErr("return book", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	if _, err := s.GetByID(ctx, patronID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *MongoStore) FindByCheckedOutBook(ctx context.Context, bookID string) (domain.Patron, error) {
	return s.findOne(ctx, bson.M{"books_checked_out": bookID})
}

// objectID parses a hex identifier. A malformed identifier cannot address
// any document, so it maps to not-found rather than an internal error.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: patron %s", domain.ErrNotFound, id)
	}
	return oid, nil
}

func mapMongoErr(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicateKey)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
