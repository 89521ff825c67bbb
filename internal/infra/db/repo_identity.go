package db

import (
	"context"
	"errors"
	"time"

	"crossid/internal/domain"
	"crossid/internal/usecase"

	"gorm.io/gorm"
)

type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) GetByWallet(ctx context.Context, walletAddress string) (*domain.IdentityRecord, error) {
	return r.getOne(ctx, "wallet_address = ?", walletAddress)
}

func (r *IdentityRepository) GetByDID(ctx context.Context, did string) (*domain.IdentityRecord, error) {
	return r.getOne(ctx, "did = ?", did)
}

func (r *IdentityRepository) getOne(ctx context.Context, query string, arg string) (*domain.IdentityRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model IdentityRecordModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	record := identityFromModel(model)
	return &record, nil
}

func (r *IdentityRepository) Create(ctx context.Context, record domain.IdentityRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := IdentityRecordModel{
		DID:             record.DID,
		WalletAddress:   record.WalletAddress,
		ChainID:         record.ChainID,
		IdentityTokenID: record.IdentityTokenID,
		CreatedAt:       createdAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *IdentityRepository) SetTokenID(ctx context.Context, did string, tokenID int64) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Model(&IdentityRecordModel{}).
		Where("did = ?", did).
		Update("identity_token_id", tokenID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *IdentityRepository) Delete(ctx context.Context, did string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Where("did = ?", did).Delete(&IdentityRecordModel{}).Error
}

func (r *IdentityRepository) ListMissingToken(ctx context.Context) ([]domain.IdentityRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []IdentityRecordModel
	err := r.db.WithContext(ctx).
		Where("identity_token_id IS NULL").
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	records := make([]domain.IdentityRecord, 0, len(models))
	for _, model := range models {
		records = append(records, identityFromModel(model))
	}
	return records, nil
}

func identityFromModel(model IdentityRecordModel) domain.IdentityRecord {
	return domain.IdentityRecord{
		DID:             model.DID,
		WalletAddress:   model.WalletAddress,
		ChainID:         model.ChainID,
		IdentityTokenID: model.IdentityTokenID,
		CreatedAt:       model.CreatedAt,
	}
}

// TxStore runs identity and DID-document writes in one transaction.
type TxStore struct {
	db *gorm.DB
}

func NewTxStore(db *gorm.DB) *TxStore {
	return &TxStore{db: db}
}

func (s *TxStore) WithTx(ctx context.Context, fn func(identities usecase.IdentityRepository, documents usecase.DidDocumentRepository) error) error {
	if s.db == nil {
		return errDBUnavailable
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewIdentityRepository(tx), NewDidDocumentRepository(tx))
	})
}
