package repos

import (
	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type RatingRepo interface {
	GetByID(dbc dbctx.Context, id string) (*records.Rating, error)
	ListByResource(dbc dbctx.Context, resourceType, resourceID string) ([]*records.Rating, error)
}

type ratingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRatingRepo(db *gorm.DB, log *logger.Logger) RatingRepo {
	return &ratingRepo{db: db, log: log.With("repo", "RatingRepo")}
}

func (r *ratingRepo) base(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *ratingRepo) GetByID(dbc dbctx.Context, id string) (*records.Rating, error) {
	var rec records.Rating
	if err := r.base(dbc).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ratingRepo) ListByResource(dbc dbctx.Context, resourceType, resourceID string) ([]*records.Rating, error) {
	var recs []*records.Rating
	err := r.base(dbc).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created ASC").
		Find(&recs).Error
	return recs, err
}
