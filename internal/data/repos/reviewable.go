package repos

import (
	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type ReviewableRepo interface {
	GetByID(dbc dbctx.Context, id string) (*records.Reviewable, error)
	ListByResource(dbc dbctx.Context, resourceType, resourceID string) ([]*records.Reviewable, error)
	ListByType(dbc dbctx.Context, typeTag string) ([]*records.Reviewable, error)
}

type reviewableRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewableRepo(db *gorm.DB, log *logger.Logger) ReviewableRepo {
	return &reviewableRepo{db: db, log: log.With("repo", "ReviewableRepo")}
}

func (r *reviewableRepo) base(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *reviewableRepo) GetByID(dbc dbctx.Context, id string) (*records.Reviewable, error) {
	var rec records.Reviewable
	err := r.base(dbc).Preload("Reviews").First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *reviewableRepo) ListByResource(dbc dbctx.Context, resourceType, resourceID string) ([]*records.Reviewable, error) {
	var recs []*records.Reviewable
	err := r.base(dbc).
		Preload("Reviews").
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created DESC").
		Find(&recs).Error
	return recs, err
}

func (r *reviewableRepo) ListByType(dbc dbctx.Context, typeTag string) ([]*records.Reviewable, error) {
	var recs []*records.Reviewable
	err := r.base(dbc).
		Preload("Reviews").
		Where("type = ?", typeTag).
		Order("created DESC").
		Find(&recs).Error
	return recs, err
}
