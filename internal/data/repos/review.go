package repos

import (
	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

// ReviewRepo is row-level access to reviews. Aggregate writes own the
// mutation path; repos serve reads and targeted lookups.
type ReviewRepo interface {
	GetByID(dbc dbctx.Context, id string) (*records.Review, error)
	ListByResource(dbc dbctx.Context, resourceType, resourceID string) ([]*records.Review, error)
	ListByReviewer(dbc dbctx.Context, reviewer string) ([]*records.Review, error)
}

type reviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRepo(db *gorm.DB, log *logger.Logger) ReviewRepo {
	return &reviewRepo{db: db, log: log.With("repo", "ReviewRepo")}
}

func (r *reviewRepo) base(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *reviewRepo) GetByID(dbc dbctx.Context, id string) (*records.Review, error) {
	var rec records.Review
	if err := r.base(dbc).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *reviewRepo) ListByResource(dbc dbctx.Context, resourceType, resourceID string) ([]*records.Review, error) {
	var recs []*records.Review
	err := r.base(dbc).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created ASC").
		Find(&recs).Error
	return recs, err
}

func (r *reviewRepo) ListByReviewer(dbc dbctx.Context, reviewer string) ([]*records.Review, error) {
	var recs []*records.Review
	err := r.base(dbc).
		Where("reviewer = ?", reviewer).
		Order("created ASC").
		Find(&recs).Error
	return recs, err
}
