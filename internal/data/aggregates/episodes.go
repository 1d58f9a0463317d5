package aggregates

import (
	"context"
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

// EpisodeFilter narrows a Find over episodes. Nil fields match
// everything; Tag matches episodes whose tag list contains the value.
type EpisodeFilter struct {
	OwnerID    *string
	Device     *string
	DeviceType *string
	Tag        *string
}

// Episodes owns the episode row and orchestrates its action events
// through the ActionEvents aggregate.
type Episodes struct {
	db     *gorm.DB
	log    *logger.Logger
	runner TxRunner
	events *ActionEvents
	hooks  Hooks
}

func NewEpisodes(deps Deps, events *ActionEvents) *Episodes {
	deps = deps.withDefaults()
	return &Episodes{
		db:     deps.DB,
		log:    deps.Log.With("aggregate", "Episodes"),
		runner: deps.Runner,
		events: events,
		hooks:  deps.Hooks,
	}
}

// Save upserts the episode row and saves every attached action through
// the event save protocol.
func (s *Episodes) Save(ctx context.Context, ep *domain.Episode) error {
	const op = "episode.save"
	start := time.Now()
	err := s.save(ctx, op, ep)
	s.hooks.ObserveOperation(op, statusOf(err), time.Since(start))
	return err
}

func (s *Episodes) save(ctx context.Context, op string, ep *domain.Episode) error {
	if ep == nil || ep.ID == "" {
		return MapError(op, domain.ValidationError("episode id is required"))
	}
	rec, err := records.FromEpisode(ep)
	if err != nil {
		return MapError(op, err)
	}
	// Created is immutable across re-saves, so the upsert lists the
	// mutable columns instead of UpdateAll.
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tags", "labels", "device", "device_type", "owner_id", "updated",
			}),
		}).
		Create(rec).Error
	if err != nil {
		return MapError(op, err)
	}
	for _, action := range ep.Actions {
		action.EpisodeID = &ep.ID
		if err := s.events.Save(ctx, action); err != nil {
			return err
		}
	}
	return nil
}

// RecordEvent claims the event for the episode, saves it, appends it to
// the in-memory list, and touches only the episode's updated column. The
// episode row itself is never rewritten here, so concurrent recorders on
// the same episode cannot clobber each other's scalar state.
func (s *Episodes) RecordEvent(ctx context.Context, ep *domain.Episode, ev *domain.ActionEvent) error {
	const op = "episode.record_event"
	if ep == nil || ep.ID == "" {
		return MapError(op, domain.ValidationError("episode id is required"))
	}
	if ev == nil {
		return MapError(op, domain.ValidationError("action event is required"))
	}
	ev.EpisodeID = &ep.ID
	if err := s.events.Save(ctx, ev); err != nil {
		return err
	}
	if !slices.ContainsFunc(ep.Actions, func(a *domain.ActionEvent) bool { return a.ID == ev.ID }) {
		ep.Actions = append(ep.Actions, ev)
	}
	ep.Updated = domain.Now()
	res := s.db.WithContext(ctx).
		Model(&records.Episode{}).
		Where("id = ?", ep.ID).
		Update("updated", ep.Updated)
	if res.Error != nil {
		return MapError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Warn("recorded event against unsaved episode", "episode", ep.ID, "action_event", ev.ID)
	}
	return nil
}

// Record builds an event from args and records it in one step.
func (s *Episodes) Record(ctx context.Context, ep *domain.Episode, args domain.ActionEventArgs) (*domain.ActionEvent, error) {
	ev := domain.NewActionEvent(args)
	if err := s.RecordEvent(ctx, ep, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Get loads the episode with its actions fully hydrated, re-sorted by
// creation time.
func (s *Episodes) Get(ctx context.Context, id string) (*domain.Episode, error) {
	const op = "episode.get"
	if id == "" {
		return nil, MapError(op, domain.ValidationError("episode id is required"))
	}
	var rec records.Episode
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, MapError(op, err)
	}
	ep, err := rec.ToDomain()
	if err != nil {
		return nil, MapError(op, err)
	}
	actions, err := s.events.Find(ctx, ActionEventFilter{EpisodeID: &id})
	if err != nil {
		return nil, err
	}
	ep.Actions = actions
	ep.SortActions()
	return ep, nil
}

// Find returns matching episodes with their actions attached.
func (s *Episodes) Find(ctx context.Context, filter EpisodeFilter) ([]*domain.Episode, error) {
	const op = "episode.find"
	query := s.db.WithContext(ctx).Order("created ASC")
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Device != nil {
		query = query.Where("device = ?", *filter.Device)
	}
	if filter.DeviceType != nil {
		query = query.Where("device_type = ?", *filter.DeviceType)
	}
	var recs []*records.Episode
	if err := query.Find(&recs).Error; err != nil {
		return nil, MapError(op, err)
	}
	episodes := make([]*domain.Episode, 0, len(recs))
	for _, rec := range recs {
		ep, err := rec.ToDomain()
		if err != nil {
			return nil, MapError(op, err)
		}
		if filter.Tag != nil && !slices.Contains(ep.Tags, *filter.Tag) {
			continue
		}
		actions, err := s.events.Find(ctx, ActionEventFilter{EpisodeID: &ep.ID})
		if err != nil {
			return nil, err
		}
		ep.Actions = actions
		ep.SortActions()
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

// Delete removes the episode and all of its action events atomically.
func (s *Episodes) Delete(ctx context.Context, id string) error {
	const op = "episode.delete"
	if id == "" {
		return MapError(op, domain.ValidationError("episode id is required"))
	}
	err := s.runner.InTx(ctx, func(dbc dbctx.Context) error {
		tx := dbc.Tx
		var rec records.Episode
		err := tx.First(&rec, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFoundError("episode " + id + " not found")
		}
		if err != nil {
			return err
		}
		actionIDs, err := episodeActionIDs(tx, id)
		if err != nil {
			return err
		}
		for _, actionID := range actionIDs {
			if err := s.events.deleteTx(dbc, actionID); err != nil {
				return err
			}
		}
		return tx.Delete(&records.Episode{ID: id}).Error
	})
	return MapError(op, err)
}

// DeleteAllActions removes every action event from the episode, leaving
// the episode row itself in place.
func (s *Episodes) DeleteAllActions(ctx context.Context, ep *domain.Episode) error {
	const op = "episode.delete_all_actions"
	if ep == nil || ep.ID == "" {
		return MapError(op, domain.ValidationError("episode id is required"))
	}
	err := s.runner.InTx(ctx, func(dbc dbctx.Context) error {
		actionIDs, err := episodeActionIDs(dbc.Tx, ep.ID)
		if err != nil {
			return err
		}
		for _, actionID := range actionIDs {
			if err := s.events.deleteTx(dbc, actionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MapError(op, err)
	}
	ep.Actions = nil
	return s.touchUpdated(ctx, op, ep)
}

// DeleteAction removes a single action event from the episode. The
// target must be a member of the episode.
func (s *Episodes) DeleteAction(ctx context.Context, ep *domain.Episode, actionID string) error {
	const op = "episode.delete_action"
	if ep == nil || ep.ID == "" {
		return MapError(op, domain.ValidationError("episode id is required"))
	}
	idx, err := ep.EventIndex(actionID)
	if err != nil {
		return MapError(op, err)
	}
	err = s.runner.InTx(ctx, func(dbc dbctx.Context) error {
		return s.events.deleteTx(dbc, actionID)
	})
	if err != nil {
		return MapError(op, err)
	}
	ep.Actions = append(ep.Actions[:idx], ep.Actions[idx+1:]...)
	return s.touchUpdated(ctx, op, ep)
}

func (s *Episodes) touchUpdated(ctx context.Context, op string, ep *domain.Episode) error {
	ep.Updated = domain.Now()
	res := s.db.WithContext(ctx).
		Model(&records.Episode{}).
		Where("id = ?", ep.ID).
		Update("updated", ep.Updated)
	if res.Error != nil {
		return MapError(op, res.Error)
	}
	return nil
}

func episodeActionIDs(tx *gorm.DB, episodeID string) ([]string, error) {
	var ids []string
	err := tx.Model(&records.ActionEvent{}).
		Where("episode_id = ?", episodeID).
		Pluck("id", &ids).Error
	return ids, err
}

// ApproveOne posts an approving review on a single event of the episode.
func (s *Episodes) ApproveOne(ctx context.Context, ep *domain.Episode, actionID string, args domain.ReviewArgs) (*domain.Review, error) {
	return s.reviewOne(ctx, "episode.approve_one", ep, actionID, true, args)
}

// FailOne posts a rejecting review on a single event of the episode.
func (s *Episodes) FailOne(ctx context.Context, ep *domain.Episode, actionID string, args domain.ReviewArgs) (*domain.Review, error) {
	return s.reviewOne(ctx, "episode.fail_one", ep, actionID, false, args)
}

func (s *Episodes) reviewOne(ctx context.Context, op string, ep *domain.Episode, actionID string, approved bool, args domain.ReviewArgs) (*domain.Review, error) {
	if ep == nil {
		return nil, MapError(op, domain.ValidationError("episode is required"))
	}
	ev, err := ep.Event(actionID)
	if err != nil {
		return nil, MapError(op, err)
	}
	args.Approved = approved
	review, err := ev.PostReview(args)
	if err != nil {
		return nil, MapError(op, err)
	}
	if err := s.events.Save(ctx, ev); err != nil {
		return nil, err
	}
	return review, nil
}

// ApproveAll posts an approving review on every event of the episode.
// Hidden events are skipped unless includeHidden is set.
func (s *Episodes) ApproveAll(ctx context.Context, ep *domain.Episode, args domain.ReviewArgs, includeHidden bool) ([]*domain.Review, error) {
	const op = "episode.approve_all"
	if ep == nil {
		return nil, MapError(op, domain.ValidationError("episode is required"))
	}
	return s.reviewMany(ctx, op, ep, len(ep.Actions), true, args, includeHidden)
}

// FailAll posts a rejecting review on every event of the episode.
func (s *Episodes) FailAll(ctx context.Context, ep *domain.Episode, args domain.ReviewArgs, includeHidden bool) ([]*domain.Review, error) {
	const op = "episode.fail_all"
	if ep == nil {
		return nil, MapError(op, domain.ValidationError("episode is required"))
	}
	return s.reviewMany(ctx, op, ep, len(ep.Actions), false, args, includeHidden)
}

// ApprovePrior approves every event up to and including the target. The
// boundary is inclusive on the target's slice position; a missing target
// is an error and nothing is written.
func (s *Episodes) ApprovePrior(ctx context.Context, ep *domain.Episode, actionID string, args domain.ReviewArgs, includeHidden bool) ([]*domain.Review, error) {
	const op = "episode.approve_prior"
	idx, err := ep.EventIndex(actionID)
	if err != nil {
		return nil, MapError(op, err)
	}
	return s.reviewMany(ctx, op, ep, idx+1, true, args, includeHidden)
}

// FailPrior rejects every event up to and including the target.
func (s *Episodes) FailPrior(ctx context.Context, ep *domain.Episode, actionID string, args domain.ReviewArgs, includeHidden bool) ([]*domain.Review, error) {
	const op = "episode.fail_prior"
	idx, err := ep.EventIndex(actionID)
	if err != nil {
		return nil, MapError(op, err)
	}
	return s.reviewMany(ctx, op, ep, idx+1, false, args, includeHidden)
}

// reviewMany applies one verdict across ep.Actions[:bound]. Reviews are
// stamped with the full target id list for bulk-approval provenance.
func (s *Episodes) reviewMany(ctx context.Context, op string, ep *domain.Episode, bound int, approved bool, args domain.ReviewArgs, includeHidden bool) ([]*domain.Review, error) {
	if ep == nil {
		return nil, MapError(op, domain.ValidationError("episode is required"))
	}
	if bound > len(ep.Actions) {
		bound = len(ep.Actions)
	}
	targets := make([]*domain.ActionEvent, 0, bound)
	targetIDs := make([]string, 0, bound)
	for _, ev := range ep.Actions[:bound] {
		if ev.Hidden && !includeHidden {
			continue
		}
		targets = append(targets, ev)
		targetIDs = append(targetIDs, ev.ID)
	}
	args.Approved = approved
	reviews := make([]*domain.Review, 0, len(targets))
	for _, ev := range targets {
		review, err := ev.PostReview(args)
		if err != nil {
			return nil, MapError(op, err)
		}
		if len(targetIDs) > 1 {
			review.WithResources = slices.Clone(targetIDs)
		}
		if err := s.events.Save(ctx, ev); err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}
