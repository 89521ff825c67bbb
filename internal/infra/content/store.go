// Package content is a content-addressed document store backed by the
// relational store. Addresses are derived from the stored bytes, so retrieval
// is integrity-checked.
package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crossid/internal/domain"
	"crossid/internal/infra/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const addressPrefix = "cid:sha256:"

type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// AddressFor computes the content address without storing anything.
func AddressFor(doc []byte) string {
	sum := sha256.Sum256(doc)
	return addressPrefix + hex.EncodeToString(sum[:])
}

// Normalize re-encodes a JSON document with object keys sorted, so equal
// documents hash equally regardless of original key order. Numbers keep their
// source representation.
func Normalize(doc []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return json.Marshal(value)
}

// HashDocument is the deterministic content hash of the normalized document,
// hex encoded without the address prefix.
func HashDocument(doc []byte) (string, error) {
	normalized, err := Normalize(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Store) Put(ctx context.Context, doc []byte) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("content store unavailable")
	}
	address := AddressFor(doc)
	model := db.ContentObjectModel{
		Address:   address,
		Body:      append([]byte(nil), doc...),
		CreatedAt: time.Now().UTC(),
	}
	// Same address means same bytes; the conflict is a harmless re-put.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return "", err
	}
	return address, nil
}

// Hash implements the usecase ContentStore contract on top of HashDocument.
func (s *Store) Hash(doc []byte) (string, error) {
	return HashDocument(doc)
}

func (s *Store) Get(ctx context.Context, address string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("content store unavailable")
	}
	if !strings.HasPrefix(address, addressPrefix) {
		return nil, fmt.Errorf("%w: malformed content address", domain.ErrValidation)
	}
	var model db.ContentObjectModel
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if AddressFor(model.Body) != address {
		return nil, domain.ErrContentMismatch
	}
	return model.Body, nil
}
