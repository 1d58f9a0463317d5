package repos

import (
	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type ActionOptRepo interface {
	GetByID(dbc dbctx.Context, id string) (*records.ActionOpt, error)
	ListByAction(dbc dbctx.Context, actionID string) ([]*records.ActionOpt, error)
}

type actionOptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActionOptRepo(db *gorm.DB, log *logger.Logger) ActionOptRepo {
	return &actionOptRepo{db: db, log: log.With("repo", "ActionOptRepo")}
}

func (r *actionOptRepo) base(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *actionOptRepo) GetByID(dbc dbctx.Context, id string) (*records.ActionOpt, error) {
	var rec records.ActionOpt
	err := r.base(dbc).Preload("Ratings").First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *actionOptRepo) ListByAction(dbc dbctx.Context, actionID string) ([]*records.ActionOpt, error) {
	var recs []*records.ActionOpt
	err := r.base(dbc).
		Preload("Ratings").
		Where("action_id = ?", actionID).
		Order("created ASC").
		Find(&recs).Error
	return recs, err
}
