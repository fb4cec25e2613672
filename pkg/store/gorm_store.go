package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"langgrade/pkg/domain"
)

const migrateLockID int64 = 51730917

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens Postgres and runs auto-migrations under an advisory lock
// so concurrent instances migrate once.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithDialector opens any GORM dialector and migrates without
// locking. Used with SQLite in tests and local runs.
func NewGormStoreWithDialector(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func gormConfig() *gorm.Config {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return &gorm.Config{Logger: gormLog, TranslateError: true}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&GradedBookModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertBook adds a row and maps unique violations to ErrDuplicateBook.
func (s *GormStore) InsertBook(b domain.GradedBook) error {
	model := bookToModel(b)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateBook
		}
		return err
	}
	return nil
}

// FindCandidates matches name OR author, ignoring case and surrounding space.
func (s *GormStore) FindCandidates(name, author string) ([]domain.GradedBook, error) {
	return s.listBooks("created_at desc",
		"LOWER(TRIM(bookname)) = ? OR LOWER(TRIM(author)) = ?",
		NormalizeKey(name), NormalizeKey(author))
}

// SetCover sets cover_url for id.
func (s *GormStore) SetCover(id, coverURL string) error {
	return s.db.Model(&GradedBookModel{}).Where("id = ?", id).Update("cover_url", coverURL).Error
}

// UpdateCover sets cover_url for a book owned by ownerEmail.
func (s *GormStore) UpdateCover(id, ownerEmail, coverURL string) (bool, error) {
	res := s.db.Model(&GradedBookModel{}).
		Where("id = ? AND useremail = ?", id, ownerEmail).
		Update("cover_url", coverURL)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListBooks returns every book, newest first.
func (s *GormStore) ListBooks() ([]domain.GradedBook, error) {
	return s.listBooks("created_at desc")
}

// ListBooksByOwner returns books saved by email, newest first.
func (s *GormStore) ListBooksByOwner(email string) ([]domain.GradedBook, error) {
	return s.listBooks("created_at desc", "useremail = ?", email)
}

// SearchBooks matches q against name, author and level.
func (s *GormStore) SearchBooks(q string) ([]domain.GradedBook, error) {
	p := likePattern(q)
	return s.listBooks("created_at desc",
		"LOWER(bookname) LIKE ? OR LOWER(author) LIKE ? OR LOWER(languagelevel) LIKE ?", p, p, p)
}

func (s *GormStore) listBooks(order string, conds ...any) ([]domain.GradedBook, error) {
	var models []GradedBookModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.GradedBook, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.GradedBook, bool, error) {
	var model GradedBookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.GradedBook{}, false, nil
		}
		return domain.GradedBook{}, false, err
	}
	return bookFromModel(model), true, nil
}

// likePattern builds a lowercase substring pattern. Wildcard characters in s
// are removed rather than escaped.
func likePattern(s string) string {
	s = strings.NewReplacer("%", "", "_", "").Replace(NormalizeKey(s))
	return "%" + s + "%"
}
