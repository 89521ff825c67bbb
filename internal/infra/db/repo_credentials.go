package db

import (
	"context"
	"errors"
	"time"

	"crossid/internal/domain"

	"gorm.io/gorm"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) GetByHash(ctx context.Context, credentialHash string) (*domain.Credential, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model CredentialModel
	err := r.db.WithContext(ctx).
		Where("credential_hash = ?", credentialHash).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	cred := credentialFromModel(model)
	return &cred, nil
}

func (r *CredentialRepository) Create(ctx context.Context, cred domain.Credential) error {
	if r.db == nil {
		return errDBUnavailable
	}
	now := time.Now().UTC()
	model := CredentialModel{
		CredentialHash:  cred.CredentialHash,
		IssuerDID:       cred.IssuerDID,
		SubjectDID:      cred.SubjectDID,
		Type:            cred.Type,
		SchemaRef:       cred.SchemaRef,
		IssuanceDate:    cred.IssuanceDate,
		ExpirationDate:  cred.ExpirationDate,
		RevocationDate:  cred.RevocationDate,
		Status:          cred.Status,
		ContentAddress:  cred.ContentAddress,
		Proof:           cred.Proof,
		IdentityTokenID: cred.IdentityTokenID,
		Anchored:        cred.Anchored,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// MarkRevoked is a conditional update so REVOKED stays terminal even when two
// revokers race: only one caller sees a transitioned row.
func (r *CredentialRepository) MarkRevoked(ctx context.Context, credentialHash string, revokedAt time.Time, reason string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Model(&CredentialModel{}).
		Where("credential_hash = ? AND status <> ?", credentialHash, domain.CredentialStatusRevoked).
		Updates(map[string]any{
			"status":            domain.CredentialStatusRevoked,
			"revocation_date":   revokedAt,
			"revocation_reason": reason,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *CredentialRepository) SetAnchored(ctx context.Context, credentialHash string, anchored bool) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Model(&CredentialModel{}).
		Where("credential_hash = ?", credentialHash).
		Updates(map[string]any{"anchored": anchored, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) ListUnanchored(ctx context.Context, limit int) ([]domain.Credential, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	var models []CredentialModel
	err := r.db.WithContext(ctx).
		Where("NOT anchored").
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	creds := make([]domain.Credential, 0, len(models))
	for _, model := range models {
		creds = append(creds, credentialFromModel(model))
	}
	return creds, nil
}

func credentialFromModel(model CredentialModel) domain.Credential {
	return domain.Credential{
		CredentialHash:   model.CredentialHash,
		IssuerDID:        model.IssuerDID,
		SubjectDID:       model.SubjectDID,
		Type:             model.Type,
		SchemaRef:        model.SchemaRef,
		IssuanceDate:     model.IssuanceDate,
		ExpirationDate:   model.ExpirationDate,
		RevocationDate:   model.RevocationDate,
		RevocationReason: model.RevocationReason,
		Status:           model.Status,
		ContentAddress:   model.ContentAddress,
		Proof:            model.Proof,
		IdentityTokenID:  model.IdentityTokenID,
		Anchored:         model.Anchored,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
