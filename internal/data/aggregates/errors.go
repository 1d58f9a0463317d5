package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/domain"
)

// MapError classifies infrastructure failures into the domain sentinels
// and annotates them with the failing operation. Errors already carrying
// a sentinel pass through with only the operation added.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvariant),
		errors.Is(err, domain.ErrRetryable):
		return domain.WrapOp(op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.WrapOp(op, errors.Join(domain.ErrNotFound, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.WrapOp(op, errors.Join(domain.ErrRetryable, err))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return domain.WrapOp(op, errors.Join(domain.ErrConflict, err))
		case "40001", "40P01", "55P03": // serialization/deadlock/lock_not_available
			return domain.WrapOp(op, errors.Join(domain.ErrRetryable, err))
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return domain.WrapOp(op, errors.Join(domain.ErrConflict, err))
	case strings.Contains(msg, "deadlock"), strings.Contains(msg, "database is locked"):
		return domain.WrapOp(op, errors.Join(domain.ErrRetryable, err))
	default:
		return domain.WrapOp(op, err)
	}
}
