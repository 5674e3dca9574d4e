package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"idx-flow/database"
)

// PostgresStore keeps objects in the object_blobs table.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore creates a store on an open database.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db.DB()}
}

// Exists reports whether key is present.
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.ObjectBlob{}).Where("key = ?", key).Count(&count).Error
	if err != nil {
		return false, database.WrapDBError("Exists", err)
	}
	return count > 0, nil
}

// Get loads an object.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob database.ObjectBlob
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Key: key}
	}
	if err != nil {
		return nil, database.WrapDBError("Get", err)
	}
	return blob.Content, nil
}

// Put upserts an object.
func (s *PostgresStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	blob := &database.ObjectBlob{
		Key:         key,
		Content:     data,
		ContentType: contentType,
		Size:        len(data),
		UpdatedAt:   time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "content_type", "size", "updated_at"}),
	}).Create(blob).Error
	if err != nil {
		return database.WrapDBError("Put", err)
	}
	return nil
}

// List returns keys starting with prefix, sorted.
func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&database.ObjectBlob{}).
		Where("key LIKE ?", escapeLike(prefix)+"%").
		Order("key ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, database.WrapDBError("List", err)
	}
	return keys, nil
}

// Ping verifies the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return database.WrapDBError("Ping", err)
	}
	return sqlDB.PingContext(ctx)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
