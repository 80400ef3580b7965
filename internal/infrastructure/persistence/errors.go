package persistence

import (
	"errors"

	"github.com/propledger/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// notFound maps gorm.ErrRecordNotFound to shared.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

// duplicate maps a unique constraint violation to the given domain error.
// It relies on gorm.Config.TranslateError.
func duplicate(err error, mapped *shared.DomainError) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return mapped
	}
	return err
}
