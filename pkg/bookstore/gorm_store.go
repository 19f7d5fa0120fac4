package bookstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"librarysvc/pkg/domain"
)

// bookRow maps a book onto the relational schema.
type bookRow struct {
	ID          string `gorm:"column:id;primaryKey"`
	Title       string `gorm:"column:title"`
	Author      string `gorm:"column:author"`
	Description string `gorm:"column:description"`
	ISBNNumber  int64  `gorm:"column:isbn_number;uniqueIndex"`
	CheckedOut  bool   `gorm:"column:checked_out"`
}

func (bookRow) TableName() string { return "books" }

func (r bookRow) toDomain() domain.Book {
	return domain.Book{
		ID:          r.ID,
		Title:       r.Title,
		Author:      r.Author,
		Description: r.Description,
		ISBN:        r.ISBNNumber,
		CheckedOut:  r.CheckedOut,
	}
}

func rowFromBook(b domain.Book) bookRow {
	return bookRow{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		ISBNNumber:  b.ISBN,
		CheckedOut:  b.CheckedOut,
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&bookRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Create(ctx context.Context, book domain.Book) (string, error) {
	if book.ID == "" {
		return "", fmt.Errorf("%w: book id required", domain.ErrBadRequest)
	}
	row := rowFromBook(book)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", mapGormErr("create book", err)
	}
	return book.ID, nil
}

func (s *GormStore) Update(ctx context.Context, book domain.Book) (string, error) {
	if book.ID == "" {
		return "", fmt.Errorf("%w: book id required", domain.ErrBadRequest)
	}
	res := s.db.WithContext(ctx).
		Model(&bookRow{}).
		Where("id = ?", book.ID).
		Select("title", "author", "description", "isbn_number", "checked_out").
		Updates(rowFromBook(book))
	if res.Error != nil {
		return "", mapGormErr("update book", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("%w: book %s", domain.ErrNotFound, book.ID)
	}
	return book.ID, nil
}

func (s *GormStore) GetByID(ctx context.Context, id string) (domain.Book, error) {
	var row bookRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		return domain.Book{}, mapGormErr("get book by id", err)
	}
	return row.toDomain(), nil
}

func (s *GormStore) GetByISBN(ctx context.Context, isbn int64) (domain.Book, error) {
	var row bookRow
	err := s.db.WithContext(ctx).First(&row, "isbn_number = ?", isbn).Error
	if err != nil {
		return domain.Book{}, mapGormErr("get book by isbn", err)
	}
	return row.toDomain(), nil
}

func (s *GormStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&bookRow{})
	if res.Error != nil {
		return false, mapGormErr("delete book by id", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) DeleteByISBN(ctx context.Context, isbn int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("isbn_number = ?", isbn).Delete(&bookRow{})
	if res.Error != nil {
		return false, mapGormErr("delete book by isbn", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) List(ctx context.Context, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []bookRow
	err := s.db.WithContext(ctx).Order("id").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, mapGormErr("list books", err)
	}
	books := make([]domain.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toDomain())
	}
	return books, nil
}

// SetCheckedOut is the conditional-update primitive: the UPDATE only matches
// when checked_out still holds the observed value, so two racing transitions
// on one book cannot both succeed.
func (s *GormStore) SetCheckedOut(ctx context.Context, id string, from, to bool) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&bookRow{}).
		Where("id = ? AND checked_out = ?", id, from).
		Update("checked_out", to)
	if res.Error != nil {
		return false, mapGormErr("set checked_out", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func mapGormErr(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicateKey)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
