package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// updateWithLock overwrites the row behind model while its stored version
// is still expected. model must already carry the bumped version. Every
// column except created_at is written so zero amounts and cleared pointers
// reach the row.
func updateWithLock(ctx context.Context, db *gorm.DB, model interface{}, id uuid.UUID, expected int, entity string) error {
	result := db.WithContext(ctx).
		Model(model).
		Select("*").
		Omit("created_at").
		Where("version = ?", expected).
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrStaleReference.WithMessage(entity + " " + id.String() + " no longer exists")
		}
		return shared.ErrConcurrencyConflict.WithMessage(entity + " was modified by another transaction")
	}
	return nil
}

// notFound maps gorm.ErrRecordNotFound to shared.ErrNotFound.
func notFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound.WithMessage(entity + " not found")
	}
	return err
}

// uniqueViolation reports whether err is a unique constraint violation and,
// when the driver exposes it, which constraint fired.
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint failed") {
		return msg, true
	}
	return "", false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// Repositories translate these into domain errors.
func IsUniqueViolation(err error) bool {
	_, ok := uniqueViolation(err)
	return ok
}
