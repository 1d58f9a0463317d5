package repos

import (
	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type ActionEventRepo interface {
	GetByID(dbc dbctx.Context, id string) (*records.ActionEvent, error)
	ListByEpisode(dbc dbctx.Context, episodeID string) ([]*records.ActionEvent, error)
	ListByNamespace(dbc dbctx.Context, namespace string) ([]*records.ActionEvent, error)
	CountByEpisode(dbc dbctx.Context, episodeID string) (int64, error)
}

type actionEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActionEventRepo(db *gorm.DB, log *logger.Logger) ActionEventRepo {
	return &actionEventRepo{db: db, log: log.With("repo", "ActionEventRepo")}
}

func (r *actionEventRepo) base(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *actionEventRepo) GetByID(dbc dbctx.Context, id string) (*records.ActionEvent, error) {
	var rec records.ActionEvent
	err := r.base(dbc).
		Preload("Reviews").
		Preload("Reviewables.Reviews").
		Preload("ActionOpts.Ratings").
		First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *actionEventRepo) ListByEpisode(dbc dbctx.Context, episodeID string) ([]*records.ActionEvent, error) {
	var recs []*records.ActionEvent
	err := r.base(dbc).
		Preload("Reviews").
		Preload("Reviewables.Reviews").
		Preload("ActionOpts.Ratings").
		Where("episode_id = ?", episodeID).
		Order("created ASC").
		Find(&recs).Error
	return recs, err
}

func (r *actionEventRepo) ListByNamespace(dbc dbctx.Context, namespace string) ([]*records.ActionEvent, error) {
	var recs []*records.ActionEvent
	err := r.base(dbc).
		Where("namespace = ?", namespace).
		Order("created ASC").
		Find(&recs).Error
	return recs, err
}

func (r *actionEventRepo) CountByEpisode(dbc dbctx.Context, episodeID string) (int64, error) {
	var count int64
	err := r.base(dbc).
		Model(&records.ActionEvent{}).
		Where("episode_id = ?", episodeID).
		Count(&count).Error
	return count, err
}
