package aggregates

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

// Deps bundles the shared collaborators of every aggregate.
type Deps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
}

func (d Deps) withDefaults() Deps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	return d
}

// ActionEventFilter narrows a Find over action events. Nil fields match
// everything.
type ActionEventFilter struct {
	EpisodeID *string
	Namespace *string
	OwnerID   *string
	AgentID   *string
	Model     *string
	Flagged   *bool
	Hidden    *bool
	Tool      *domain.ToolRef
}

// ActionEvents owns the versioned action-event row and its child rows
// (reviews, reviewables, action opts). All writes go through the
// optimistic-lock save protocol.
type ActionEvents struct {
	db     *gorm.DB
	log    *logger.Logger
	runner TxRunner
	guard  CASGuard
	hooks  Hooks
}

func NewActionEvents(deps Deps) *ActionEvents {
	deps = deps.withDefaults()
	return &ActionEvents{
		db:     deps.DB,
		log:    deps.Log.With("aggregate", "ActionEvents"),
		runner: deps.Runner,
		guard:  NewCASGuard(deps.DB),
		hooks:  deps.Hooks,
	}
}

// Save persists the event and its full child tree. The first attempt is
// a destructive write: scalars via compare-and-set on the version column,
// children replaced wholesale. On a version conflict the caller is not
// failed; the latest row is reloaded, only children the other writer does
// not already have are appended, and the commit is retried once. A second
// conflict is surfaced as a hard failure.
func (a *ActionEvents) Save(ctx context.Context, ev *domain.ActionEvent) error {
	const op = "action_event.save"
	start := time.Now()
	err := a.save(ctx, op, ev)
	a.hooks.ObserveOperation(op, statusOf(err), time.Since(start))
	return err
}

func (a *ActionEvents) save(ctx context.Context, op string, ev *domain.ActionEvent) error {
	if ev == nil || ev.ID == "" {
		return MapError(op, domain.ValidationError("action event id is required"))
	}
	ev.AdoptChildren()

	next := ev.Version + 1
	if ev.Version == 0 {
		next = 1
	}
	firstErr := a.runner.InTx(ctx, func(dbc dbctx.Context) error {
		return a.saveTx(dbc, ev)
	})
	if firstErr == nil {
		ev.Version = next
		return nil
	}
	mapped := MapError(op, firstErr)
	if !errors.Is(mapped, domain.ErrConflict) {
		return mapped
	}

	a.hooks.IncConflict(op)
	a.log.Warn("version conflict on save, merging new children and retrying",
		"action_event", ev.ID, "stale_version", ev.Version)

	var (
		merged     bool
		newVersion int
	)
	retryErr := a.runner.InTx(ctx, func(dbc dbctx.Context) error {
		m, v, err := a.mergeRetryTx(dbc, ev)
		merged, newVersion = m, v
		return err
	})
	if retryErr != nil {
		mappedRetry := MapError(op, retryErr)
		if errors.Is(mappedRetry, domain.ErrConflict) {
			return MapError(op, domain.ConflictError(
				"action event "+ev.ID+" still conflicted after merge retry"))
		}
		return mappedRetry
	}
	ev.Version = newVersion
	if merged {
		a.hooks.IncRetry(op)
		a.log.Info("merge retry committed new children",
			"action_event", ev.ID, "version", newVersion)
	} else {
		a.log.Info("concurrent save carried no new children, keeping persisted state",
			"action_event", ev.ID, "version", newVersion)
	}
	return nil
}

func (a *ActionEvents) saveTx(dbc dbctx.Context, ev *domain.ActionEvent) error {
	rec, err := records.FromActionEvent(ev)
	if err != nil {
		return err
	}
	table := records.ActionEvent{}.TableName()
	if ev.Version == 0 {
		rec.Version = 1
		if err := dbc.Tx.Create(rec).Error; err != nil {
			return err
		}
	} else {
		ok, err := a.guard.UpdateByVersion(dbc, table, ev.ID, ev.Version, scalarUpdates(rec))
		if err != nil {
			return err
		}
		if !ok {
			exists, err := a.guard.RowExists(dbc, table, ev.ID)
			if err != nil {
				return err
			}
			if !exists {
				// Deleted under a writer that had seen it; the save
				// cannot be resolved, only retried from scratch.
				return domain.ConflictError("action event " + ev.ID + " no longer exists")
			}
			return domain.ConflictError("stale version for action event " + ev.ID)
		}
	}
	return a.replaceChildrenTx(dbc, ev)
}

// scalarUpdates lists every mutable column of the event row. Version is
// owned by the CAS guard and created is immutable.
func scalarUpdates(rec *records.ActionEvent) map[string]any {
	return map[string]any{
		"state":          rec.State,
		"action":         rec.Action,
		"result":         rec.Result,
		"end_state":      rec.EndState,
		"tool":           rec.Tool,
		"namespace":      rec.Namespace,
		"prompt_id":      rec.PromptID,
		"prompt_payload": rec.PromptPayload,
		"metadata":       rec.Metadata,
		"event_order":    rec.EventOrder,
		"flagged":        rec.Flagged,
		"hidden":         rec.Hidden,
		"model":          rec.Model,
		"agent_id":       rec.AgentID,
		"owner_id":       rec.OwnerID,
		"started":        rec.Started,
		"ended":          rec.Ended,
		"episode_id":     rec.EpisodeID,
	}
}

func upsert(tx *gorm.DB, rec any) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
}

// replaceChildrenTx makes the persisted child set mirror the in-memory
// one exactly: rows upserted, join memberships replaced, orphaned opts
// removed.
func (a *ActionEvents) replaceChildrenTx(dbc dbctx.Context, ev *domain.ActionEvent) error {
	tx := dbc.Tx
	owner := &records.ActionEvent{ID: ev.ID}

	reviewRecs := make([]*records.Review, 0, len(ev.Reviews))
	for _, review := range ev.Reviews {
		rec, err := records.FromReview(review)
		if err != nil {
			return err
		}
		if err := upsert(tx, rec); err != nil {
			return err
		}
		reviewRecs = append(reviewRecs, rec)
	}
	if err := tx.Model(owner).Association("Reviews").Replace(reviewRecs); err != nil {
		return err
	}

	reviewableRecs := make([]*records.Reviewable, 0, len(ev.Reviewables))
	for _, reviewable := range ev.Reviewables {
		rec, err := records.FromReviewable(reviewable)
		if err != nil {
			return err
		}
		if err := upsert(tx, rec); err != nil {
			return err
		}
		nested := make([]*records.Review, 0, len(reviewable.Reviews))
		for _, review := range reviewable.Reviews {
			reviewRec, err := records.FromReview(review)
			if err != nil {
				return err
			}
			if err := upsert(tx, reviewRec); err != nil {
				return err
			}
			nested = append(nested, reviewRec)
		}
		if err := tx.Model(rec).Association("Reviews").Replace(nested); err != nil {
			return err
		}
		reviewableRecs = append(reviewableRecs, rec)
	}
	if err := tx.Model(owner).Association("Reviewables").Replace(reviewableRecs); err != nil {
		return err
	}

	optIDs := make([]string, 0, len(ev.ActionOpts))
	for _, opt := range ev.ActionOpts {
		opt.ActionID = ev.ID
		rec, err := records.FromActionOpt(opt)
		if err != nil {
			return err
		}
		if err := upsert(tx, rec); err != nil {
			return err
		}
		ratingRecs := make([]*records.Rating, 0, len(opt.Ratings))
		for _, rating := range opt.Ratings {
			ratingRec, err := records.FromRating(rating)
			if err != nil {
				return err
			}
			if err := upsert(tx, ratingRec); err != nil {
				return err
			}
			ratingRecs = append(ratingRecs, ratingRec)
		}
		if err := tx.Model(rec).Association("Ratings").Replace(ratingRecs); err != nil {
			return err
		}
		optIDs = append(optIDs, opt.ID)
	}
	staleQuery := tx.Where("action_id = ?", ev.ID)
	if len(optIDs) > 0 {
		staleQuery = staleQuery.Where("id NOT IN ?", optIDs)
	}
	var staleOpts []*records.ActionOpt
	if err := staleQuery.Preload("Ratings").Find(&staleOpts).Error; err != nil {
		return err
	}
	for _, stale := range staleOpts {
		ratings := stale.Ratings
		if err := tx.Model(stale).Association("Ratings").Clear(); err != nil {
			return err
		}
		for _, rating := range ratings {
			if err := tx.Delete(rating).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(stale).Error; err != nil {
			return err
		}
	}
	return nil
}

// mergeRetryTx is the second save attempt after a version conflict. It
// adopts the winner's row as the base, appends only children the winner
// does not already have, and bumps the version once more. With nothing
// new to add the other writer simply wins.
func (a *ActionEvents) mergeRetryTx(dbc dbctx.Context, ev *domain.ActionEvent) (bool, int, error) {
	tx := dbc.Tx
	var latest records.ActionEvent
	err := tx.
		Preload("Reviews").
		Preload("Reviewables").
		Preload("ActionOpts").
		First(&latest, "id = ?", ev.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, 0, domain.ConflictError("action event " + ev.ID + " vanished during save")
	}
	if err != nil {
		return false, 0, err
	}

	haveReviews := make(map[string]bool, len(latest.Reviews))
	for _, rec := range latest.Reviews {
		haveReviews[rec.ID] = true
	}
	haveReviewables := make(map[string]bool, len(latest.Reviewables))
	for _, rec := range latest.Reviewables {
		haveReviewables[rec.ID] = true
	}
	haveOpts := make(map[string]bool, len(latest.ActionOpts))
	for _, rec := range latest.ActionOpts {
		haveOpts[rec.ID] = true
	}

	merged := false
	owner := &records.ActionEvent{ID: ev.ID}
	for _, review := range ev.Reviews {
		if haveReviews[review.ID] {
			continue
		}
		rec, err := records.FromReview(review)
		if err != nil {
			return false, 0, err
		}
		if err := upsert(tx, rec); err != nil {
			return false, 0, err
		}
		if err := tx.Model(owner).Association("Reviews").Append(rec); err != nil {
			return false, 0, err
		}
		merged = true
	}
	for _, reviewable := range ev.Reviewables {
		if haveReviewables[reviewable.ID] {
			continue
		}
		rec, err := records.FromReviewable(reviewable)
		if err != nil {
			return false, 0, err
		}
		if err := upsert(tx, rec); err != nil {
			return false, 0, err
		}
		for _, review := range reviewable.Reviews {
			reviewRec, err := records.FromReview(review)
			if err != nil {
				return false, 0, err
			}
			if err := upsert(tx, reviewRec); err != nil {
				return false, 0, err
			}
			if err := tx.Model(rec).Association("Reviews").Append(reviewRec); err != nil {
				return false, 0, err
			}
		}
		if err := tx.Model(owner).Association("Reviewables").Append(rec); err != nil {
			return false, 0, err
		}
		merged = true
	}
	for _, opt := range ev.ActionOpts {
		if haveOpts[opt.ID] {
			continue
		}
		opt.ActionID = ev.ID
		rec, err := records.FromActionOpt(opt)
		if err != nil {
			return false, 0, err
		}
		if err := upsert(tx, rec); err != nil {
			return false, 0, err
		}
		for _, rating := range opt.Ratings {
			ratingRec, err := records.FromRating(rating)
			if err != nil {
				return false, 0, err
			}
			if err := upsert(tx, ratingRec); err != nil {
				return false, 0, err
			}
			if err := tx.Model(rec).Association("Ratings").Append(ratingRec); err != nil {
				return false, 0, err
			}
		}
		merged = true
	}

	if !merged {
		return false, latest.Version, nil
	}
	ok, err := a.guard.UpdateByVersion(dbc, records.ActionEvent{}.TableName(), ev.ID, latest.Version, map[string]any{})
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, domain.ConflictError("stale version for action event " + ev.ID)
	}
	return true, latest.Version + 1, nil
}

// Get loads the event and its full child tree.
func (a *ActionEvents) Get(ctx context.Context, id string) (*domain.ActionEvent, error) {
	const op = "action_event.get"
	if id == "" {
		return nil, MapError(op, domain.ValidationError("action event id is required"))
	}
	var rec records.ActionEvent
	err := a.db.WithContext(ctx).
		Preload("Reviews").
		Preload("Reviewables.Reviews").
		Preload("ActionOpts.Ratings").
		First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, MapError(op, err)
	}
	ev, err := rec.ToDomain()
	if err != nil {
		return nil, MapError(op, err)
	}
	return ev, nil
}

// Find returns fully-hydrated events matching the filter in creation
// order. The tool filter compares decoded refs since tools are stored as
// JSON.
func (a *ActionEvents) Find(ctx context.Context, filter ActionEventFilter) ([]*domain.ActionEvent, error) {
	const op = "action_event.find"
	query := a.db.WithContext(ctx).
		Preload("Reviews").
		Preload("Reviewables.Reviews").
		Preload("ActionOpts.Ratings").
		Order("created ASC")
	if filter.EpisodeID != nil {
		query = query.Where("episode_id = ?", *filter.EpisodeID)
	}
	if filter.Namespace != nil {
		query = query.Where("namespace = ?", *filter.Namespace)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.AgentID != nil {
		query = query.Where("agent_id = ?", *filter.AgentID)
	}
	if filter.Model != nil {
		query = query.Where("model = ?", *filter.Model)
	}
	if filter.Flagged != nil {
		query = query.Where("flagged = ?", *filter.Flagged)
	}
	if filter.Hidden != nil {
		query = query.Where("hidden = ?", *filter.Hidden)
	}
	var recs []*records.ActionEvent
	if err := query.Find(&recs).Error; err != nil {
		return nil, MapError(op, err)
	}
	events := make([]*domain.ActionEvent, 0, len(recs))
	for _, rec := range recs {
		ev, err := rec.ToDomain()
		if err != nil {
			return nil, MapError(op, err)
		}
		if filter.Tool != nil && ev.Tool != *filter.Tool {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Delete removes the event, its children, and their join memberships in
// one transaction.
func (a *ActionEvents) Delete(ctx context.Context, id string) error {
	const op = "action_event.delete"
	if id == "" {
		return MapError(op, domain.ValidationError("action event id is required"))
	}
	err := a.runner.InTx(ctx, func(dbc dbctx.Context) error {
		return a.deleteTx(dbc, id)
	})
	return MapError(op, err)
}

func (a *ActionEvents) deleteTx(dbc dbctx.Context, id string) error {
	tx := dbc.Tx
	var rec records.ActionEvent
	err := tx.
		Preload("Reviews").
		Preload("Reviewables.Reviews").
		Preload("ActionOpts.Ratings").
		First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError("action event " + id + " not found")
	}
	if err != nil {
		return err
	}

	// Clear zeroes the association slice on the model, so every child
	// list is snapshotted before its join rows go.
	for _, reviewable := range rec.Reviewables {
		nested := reviewable.Reviews
		if err := tx.Model(reviewable).Association("Reviews").Clear(); err != nil {
			return err
		}
		for _, review := range nested {
			if err := tx.Delete(review).Error; err != nil {
				return err
			}
		}
	}
	reviewables := rec.Reviewables
	if err := tx.Model(&rec).Association("Reviewables").Clear(); err != nil {
		return err
	}
	for _, reviewable := range reviewables {
		if err := tx.Delete(reviewable).Error; err != nil {
			return err
		}
	}

	reviews := rec.Reviews
	if err := tx.Model(&rec).Association("Reviews").Clear(); err != nil {
		return err
	}
	for _, review := range reviews {
		if err := tx.Delete(review).Error; err != nil {
			return err
		}
	}

	for _, opt := range rec.ActionOpts {
		ratings := opt.Ratings
		if err := tx.Model(opt).Association("Ratings").Clear(); err != nil {
			return err
		}
		for _, rating := range ratings {
			if err := tx.Delete(rating).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(opt).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&records.ActionEvent{ID: id}).Error
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
