// Package store keeps the chat transcript of the running process in an
// in-memory SQLite database. Nothing is written to disk.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rudransh-shrivastava/offgrid/internal/protocol"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const memoryDSN = ":memory:"

// Open returns a private in-memory database with the schema migrated.
func Open() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(memoryDSN), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// every new connection to :memory: is a separate empty database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate transcript db: %w", err)
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type MessageStore struct {
	DB *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{DB: db}
}

func (ms *MessageStore) Record(ctx context.Context, msg *Message) error {
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}
	return ms.DB.WithContext(ctx).Create(msg).Error
}

// FromFrame converts text and file frames into transcript messages.
// Presence frames are not part of the transcript and report false.
func FromFrame(sessionID, contact string, f protocol.Frame, local bool) (Message, bool) {
	msg := Message{SessionID: sessionID, Contact: contact, Local: local}
	switch f := f.(type) {
	case protocol.Text:
		msg.Kind = KindText
		msg.Text = f.Text
	case protocol.File:
		msg.Kind = KindFile
		msg.FileName = f.Name
		msg.FileSize = int64(len(f.Data))
	default:
		return Message{}, false
	}
	return msg, true
}

func (ms *MessageStore) List(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	err := ms.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&msgs).Error
	return msgs, err
}

func (ms *MessageStore) Count(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := ms.DB.WithContext(ctx).Model(&Message{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}

func (ms *MessageStore) Clear(ctx context.Context, sessionID string) error {
	return ms.DB.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&Message{}).Error
}
