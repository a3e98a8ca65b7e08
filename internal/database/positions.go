package database

import (
	"context"
	"fmt"

	"binance-dip-bot-go/internal/models"
	"gorm.io/gorm"
)

// PositionStore persists the open position so it can be resumed after a restart.
type PositionStore struct {
	db *gorm.DB
}

// NewPositionStore creates a position store on top of db.
func NewPositionStore(db *gorm.DB) *PositionStore {
	return &PositionStore{db: db}
}

// LoadPosition returns the stored position for symbol, or nil when there is none.
func (s *PositionStore) LoadPosition(ctx context.Context, symbol string) (*models.Position, error) {
	var pos models.Position
	res := s.db.WithContext(ctx).Where("symbol = ?", symbol).Limit(1).Find(&pos)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load position for %s: %w", symbol, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &pos, nil
}

// AnyPosition returns whichever position is stored, or nil.
func (s *PositionStore) AnyPosition(ctx context.Context) (*models.Position, error) {
	var pos models.Position
	res := s.db.WithContext(ctx).Order("id").Limit(1).Find(&pos)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load position: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &pos, nil
}

// SavePosition records pos as the open position.
func (s *PositionStore) SavePosition(ctx context.Context, pos *models.Position) error {
	if err := s.db.WithContext(ctx).Create(pos).Error; err != nil {
		return fmt.Errorf("failed to save position for %s: %w", pos.Symbol, err)
	}
	return nil
}

// DeletePosition removes the stored position for symbol.
func (s *PositionStore) DeletePosition(ctx context.Context, symbol string) error {
	// Hard delete: the symbol index is unique and a soft-deleted row would block the next entry.
	if err := s.db.WithContext(ctx).Unscoped().Where("symbol = ?", symbol).Delete(&models.Position{}).Error; err != nil {
		return fmt.Errorf("failed to delete position for %s: %w", symbol, err)
	}
	return nil
}
