package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements Store on top of GORM and SQLite.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// Option customizes a GormStore.
type Option func(*GormStore)

// WithClock overrides the clock used to stamp new messages.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to the SQLite database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, debug bool, opts ...Option) (*GormStore, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	sqlDB.SetMaxOpenConns(1)

	return New(db, opts...)
}

// New wraps an existing GORM handle and runs migrations.
func New(db *gorm.DB, opts ...Option) (*GormStore, error) {
	if err := db.AutoMigrate(&Room{}, &Message{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &GormStore{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateRoom inserts a room with a unique, non-empty name.
func (s *GormStore) CreateRoom(ctx context.Context, name string) (Room, error) {
	if strings.TrimSpace(name) == "" {
		return Room{}, fmt.Errorf("room name is required: %w", ErrValidation)
	}

	room := Room{Name: name}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Room{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		return tx.Create(&room).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return Room{}, fmt.Errorf("create room %q: %w", name, ErrConflict)
		}
		return Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// ListRooms returns every room ordered by id.
func (s *GormStore) ListRooms(ctx context.Context) ([]Room, error) {
	rooms := make([]Room, 0)
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// GetRoom looks a room up by id.
func (s *GormStore) GetRoom(ctx context.Context, id uint) (Room, error) {
	room, err := findRoom(s.db.WithContext(ctx), id)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// AppendMessage persists a message in an existing room. The timestamp is
// assigned here, never taken from the client.
func (s *GormStore) AppendMessage(ctx context.Context, roomID uint, username, content string) (Message, error) {
	if strings.TrimSpace(username) == "" {
		return Message{}, fmt.Errorf("username is required: %w", ErrValidation)
	}

	var msg Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findRoom(tx, roomID); err != nil {
			return err
		}
		msg = Message{
			RoomID:    roomID,
			Username:  username,
			Content:   content,
			Timestamp: s.now().UTC().Truncate(time.Microsecond),
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a room's history ordered by (timestamp, id).
func (s *GormStore) ListMessages(ctx context.Context, roomID uint) ([]Message, error) {
	db := s.db.WithContext(ctx)
	if _, err := findRoom(db, roomID); err != nil {
		return nil, err
	}

	messages := make([]Message, 0)
	if err := db.Where("room_id = ?", roomID).Order("timestamp ASC").Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Close releases the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func findRoom(db *gorm.DB, id uint) (Room, error) {
	var room Room
	if err := db.First(&room, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Room{}, fmt.Errorf("room %d: %w", id, ErrNotFound)
		}
		return Room{}, fmt.Errorf("failed to find room: %w", err)
	}
	return room, nil
}
