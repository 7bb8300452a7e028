package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dastankg/orimi-merchen/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseStore keeps sessions in a SQL database through GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore migrates the sessions table and returns the store
func NewDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	if err := db.AutoMigrate(&models.Session{}); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return &DatabaseStore{db: db}, nil
}

func (d *DatabaseStore) Get(ctx context.Context, identity string) (*models.Session, error) {
	var session models.Session
	err := d.db.WithContext(ctx).Where("identity = ?", identity).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

func (d *DatabaseStore) Put(ctx context.Context, session *models.Session) error {
	if session == nil || session.Identity == "" {
		return fmt.Errorf("session identity is required")
	}
	if !session.State.Valid() {
		return fmt.Errorf("invalid session state %q", session.State)
	}

	row := session.Clone()
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "agent_phone", "shop_name", "latitude", "longitude",
			"category", "brand", "competitor_count", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (d *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *DatabaseStore) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
