package repos

import (
	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type EpisodeRepo interface {
	GetByID(dbc dbctx.Context, id string) (*records.Episode, error)
	ListByOwner(dbc dbctx.Context, ownerID string) ([]*records.Episode, error)
	List(dbc dbctx.Context) ([]*records.Episode, error)
}

type episodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEpisodeRepo(db *gorm.DB, log *logger.Logger) EpisodeRepo {
	return &episodeRepo{db: db, log: log.With("repo", "EpisodeRepo")}
}

func (r *episodeRepo) base(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *episodeRepo) GetByID(dbc dbctx.Context, id string) (*records.Episode, error) {
	var rec records.Episode
	if err := r.base(dbc).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *episodeRepo) ListByOwner(dbc dbctx.Context, ownerID string) ([]*records.Episode, error) {
	var recs []*records.Episode
	err := r.base(dbc).
		Where("owner_id = ?", ownerID).
		Order("created ASC").
		Find(&recs).Error
	return recs, err
}

func (r *episodeRepo) List(dbc dbctx.Context) ([]*records.Episode, error) {
	var recs []*records.Episode
	err := r.base(dbc).Order("created ASC").Find(&recs).Error
	return recs, err
}
