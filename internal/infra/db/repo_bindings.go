package db

import (
	"context"
	"errors"
	"time"

	"crossid/internal/domain"

	"gorm.io/gorm"
)

type BindingRepository struct {
	db *gorm.DB
}

func NewBindingRepository(db *gorm.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

func (r *BindingRepository) GetActive(ctx context.Context, did, chainID string) (*domain.ChainBinding, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ChainBindingModel
	err := r.db.WithContext(ctx).
		Where("did = ? AND chain_id = ? AND is_active", did, chainID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	binding := bindingFromModel(model)
	return &binding, nil
}

func (r *BindingRepository) ListActiveByDID(ctx context.Context, did string) ([]domain.ChainBinding, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ChainBindingModel
	err := r.db.WithContext(ctx).
		Where("did = ? AND is_active", did).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	bindings := make([]domain.ChainBinding, 0, len(models))
	for _, model := range models {
		bindings = append(bindings, bindingFromModel(model))
	}
	return bindings, nil
}

// Upsert deactivates the current active binding for (did, chain), if any, and
// inserts the replacement. Old rows are kept as an audit trail.
func (r *BindingRepository) Upsert(ctx context.Context, binding domain.ChainBinding) error {
	if r.db == nil {
		return errDBUnavailable
	}
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&ChainBindingModel{}).
			Where("did = ? AND chain_id = ? AND is_active", binding.DID, binding.ChainID).
			Updates(map[string]any{"is_active": false, "updated_at": now}).Error
		if err != nil {
			return err
		}
		model := ChainBindingModel{
			DID:       binding.DID,
			ChainID:   binding.ChainID,
			Address:   binding.Address,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(&model).Error
	})
}

func (r *BindingRepository) HasActiveAddress(ctx context.Context, did, address string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ChainBindingModel{}).
		Where("did = ? AND address = ? AND is_active", did, address).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func bindingFromModel(model ChainBindingModel) domain.ChainBinding {
	return domain.ChainBinding{
		DID:       model.DID,
		ChainID:   model.ChainID,
		Address:   model.Address,
		IsActive:  model.IsActive,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
