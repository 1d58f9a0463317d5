package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/testutil"
)

func newAggregates(t *testing.T) (*ActionEvents, *Episodes, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	deps := Deps{DB: db, Log: testutil.Logger(t)}
	events := NewActionEvents(deps)
	episodes := NewEpisodes(deps, events)
	return events, episodes, db
}

func newEvent() *domain.ActionEvent {
	return domain.NewActionEvent(domain.ActionEventArgs{
		State:  domain.EnvState{Text: strPtr("before")},
		Action: domain.Action{Name: "click", Parameters: map[string]any{"x": 3.0}},
		Tool:   domain.ToolRef{Module: "browser", Name: "click", Version: "1"},
	})
}

func strPtr(s string) *string { return &s }

func TestSaveAndGetRoundTrip(t *testing.T) {
	events, _, _ := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	if _, err := ev.PostReview(domain.ReviewArgs{Reviewer: "alice", ReviewerType: domain.ReviewerHuman, Approved: true}); err != nil {
		t.Fatalf("PostReview: %v", err)
	}
	if _, err := ev.PostReviewable(domain.TypeBoundingBoxReviewable,
		json.RawMessage(`{"img":"frame.png","target":"mug","bbox":{"x0":1,"x1":5,"y0":1,"y1":5}}`)); err != nil {
		t.Fatalf("PostReviewable: %v", err)
	}
	opt := ev.AddActionOpt(domain.Action{Name: "scroll"}, nil, nil)
	if _, err := opt.PostRating(domain.RatingArgs{Reviewer: "bot", ReviewerType: domain.ReviewerAgent, Rating: 4}); err != nil {
		t.Fatalf("PostRating: %v", err)
	}

	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ev.Version != 1 {
		t.Fatalf("first save should leave version 1, got %d", ev.Version)
	}

	got, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Tool != ev.Tool || got.Namespace != "default" {
		t.Fatalf("scalars did not round trip: %+v", got)
	}
	if len(got.Reviews) != 1 || got.Reviews[0].Reviewer != "alice" {
		t.Fatalf("reviews did not round trip: %+v", got.Reviews)
	}
	if len(got.Reviewables) != 1 {
		t.Fatalf("reviewables did not round trip: %+v", got.Reviewables)
	}
	if _, ok := got.Reviewables[0].Payload.(domain.BoundingBoxPayload); !ok {
		t.Fatalf("reviewable payload decoded to %T", got.Reviewables[0].Payload)
	}
	if len(got.ActionOpts) != 1 || len(got.ActionOpts[0].Ratings) != 1 {
		t.Fatalf("opts/ratings did not round trip: %+v", got.ActionOpts)
	}
	if got.Version != 1 {
		t.Fatalf("loaded version should be 1, got %d", got.Version)
	}
}

func TestSaveBumpsVersionEachTime(t *testing.T) {
	events, _, _ := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	for want := 1; want <= 3; want++ {
		if err := events.Save(ctx, ev); err != nil {
			t.Fatalf("save %d: %v", want, err)
		}
		if ev.Version != want {
			t.Fatalf("after save %d expected version %d, got %d", want, want, ev.Version)
		}
	}
}

func TestRepostedReviewStaysSingleRow(t *testing.T) {
	events, _, db := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	if _, err := ev.PostReview(domain.ReviewArgs{Reviewer: "alice", ReviewerType: domain.ReviewerHuman, Approved: false}); err != nil {
		t.Fatalf("PostReview: %v", err)
	}
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if _, err := ev.PostReview(domain.ReviewArgs{Reviewer: "alice", ReviewerType: domain.ReviewerHuman, Approved: true}); err != nil {
		t.Fatalf("repost: %v", err)
	}
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Reviews) != 1 {
		t.Fatalf("expected one review after repost, got %d", len(got.Reviews))
	}
	if !got.Reviews[0].Approved {
		t.Fatal("repost should have flipped the verdict")
	}
	var count int64
	if err := db.Model(&records.Review{}).Count(&count).Error; err != nil {
		t.Fatalf("count reviews: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one review row, got %d", count)
	}
}

func TestConflictMergesNewChildren(t *testing.T) {
	events, _, _ := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("initial Save: %v", err)
	}

	// Two writers load the same version.
	left, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get left: %v", err)
	}
	right, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get right: %v", err)
	}

	if _, err := left.PostReview(domain.ReviewArgs{Reviewer: "alice", ReviewerType: domain.ReviewerHuman, Approved: true}); err != nil {
		t.Fatalf("left PostReview: %v", err)
	}
	if err := events.Save(ctx, left); err != nil {
		t.Fatalf("left Save: %v", err)
	}

	// Right still carries the stale version but brings a new child.
	if _, err := right.PostReview(domain.ReviewArgs{Reviewer: "bob", ReviewerType: domain.ReviewerHuman, Approved: false}); err != nil {
		t.Fatalf("right PostReview: %v", err)
	}
	if err := events.Save(ctx, right); err != nil {
		t.Fatalf("right Save should merge, not fail: %v", err)
	}
	if right.Version != 3 {
		t.Fatalf("merge retry should bump to version 3, got %d", right.Version)
	}

	got, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	reviewers := map[string]bool{}
	for _, review := range got.Reviews {
		reviewers[review.Reviewer] = true
	}
	if !reviewers["alice"] || !reviewers["bob"] {
		t.Fatalf("both writers' reviews should survive, got %v", reviewers)
	}
}

func TestConflictWithNoNewChildrenIsNoop(t *testing.T) {
	events, _, _ := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("initial Save: %v", err)
	}
	left, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get left: %v", err)
	}
	right, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get right: %v", err)
	}

	left.Flagged = true
	if err := events.Save(ctx, left); err != nil {
		t.Fatalf("left Save: %v", err)
	}

	// Right only edits scalars; the other writer wins.
	right.Hidden = true
	if err := events.Save(ctx, right); err != nil {
		t.Fatalf("no-new-children conflict should not fail: %v", err)
	}
	if right.Version != 2 {
		t.Fatalf("no-op merge should adopt the winner's version 2, got %d", right.Version)
	}

	got, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Flagged {
		t.Fatal("winner's scalar write should persist")
	}
	if got.Hidden {
		t.Fatal("loser's scalar write should be discarded")
	}
}

func TestConcurrentOptMergePreservesBoth(t *testing.T) {
	events, _, _ := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("initial Save: %v", err)
	}
	left, _ := events.Get(ctx, ev.ID)
	right, _ := events.Get(ctx, ev.ID)

	left.AddActionOpt(domain.Action{Name: "left-alt"}, nil, nil)
	if err := events.Save(ctx, left); err != nil {
		t.Fatalf("left Save: %v", err)
	}
	right.AddActionOpt(domain.Action{Name: "right-alt"}, nil, nil)
	if err := events.Save(ctx, right); err != nil {
		t.Fatalf("right Save: %v", err)
	}

	got, err := events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	names := map[string]bool{}
	for _, opt := range got.ActionOpts {
		names[opt.Action.Name] = true
	}
	if !names["left-alt"] || !names["right-alt"] {
		t.Fatalf("both opts should survive the merge, got %v", names)
	}
}

func TestDeleteCascadesToChildren(t *testing.T) {
	events, _, db := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	if _, err := ev.PostReview(domain.ReviewArgs{Reviewer: "alice", ReviewerType: domain.ReviewerHuman, Approved: true}); err != nil {
		t.Fatalf("PostReview: %v", err)
	}
	if _, err := ev.PostReviewable(domain.TypeAnnotationReviewable,
		json.RawMessage(`{"key":"scene","value":"kitchen"}`)); err != nil {
		t.Fatalf("PostReviewable: %v", err)
	}
	opt := ev.AddActionOpt(domain.Action{Name: "alt"}, nil, nil)
	if _, err := opt.PostRating(domain.RatingArgs{Reviewer: "bot", ReviewerType: domain.ReviewerAgent, Rating: 3}); err != nil {
		t.Fatalf("PostRating: %v", err)
	}
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := events.Delete(ctx, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, model := range []any{
		&records.ActionEvent{}, &records.Review{}, &records.Reviewable{},
		&records.ActionOpt{}, &records.Rating{},
	} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count %T: %v", model, err)
		}
		if count != 0 {
			t.Fatalf("%T rows should be gone, %d remain", model, count)
		}
	}
	for _, join := range []string{
		"action_event_reviews", "action_event_reviewables",
		"reviewable_reviews", "action_opt_ratings",
	} {
		var count int64
		if err := db.Table(join).Count(&count).Error; err != nil {
			t.Fatalf("count %s: %v", join, err)
		}
		if count != 0 {
			t.Fatalf("%s rows should be gone, %d remain", join, count)
		}
	}

	if _, err := events.Get(ctx, ev.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted event should be not-found, got %v", err)
	}
}

func TestRemovedOptDropsItsRatingRows(t *testing.T) {
	events, _, db := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	keep := ev.AddActionOpt(domain.Action{Name: "keep"}, nil, nil)
	drop := ev.AddActionOpt(domain.Action{Name: "drop"}, nil, nil)
	if _, err := drop.PostRating(domain.RatingArgs{Reviewer: "bot", ReviewerType: domain.ReviewerAgent, Rating: 2}); err != nil {
		t.Fatalf("PostRating: %v", err)
	}
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ev.ActionOpts = []*domain.ActionOpt{keep}
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	var ratingCount int64
	if err := db.Model(&records.Rating{}).Count(&ratingCount).Error; err != nil {
		t.Fatalf("count ratings: %v", err)
	}
	if ratingCount != 0 {
		t.Fatalf("removed opt's rating rows should be gone, %d remain", ratingCount)
	}
	var optCount int64
	if err := db.Model(&records.ActionOpt{}).Count(&optCount).Error; err != nil {
		t.Fatalf("count opts: %v", err)
	}
	if optCount != 1 {
		t.Fatalf("only the kept opt row should remain, got %d", optCount)
	}
}

func TestSaveOfDeletedEventIsConflict(t *testing.T) {
	events, _, _ := newAggregates(t)
	ctx := context.Background()

	ev := newEvent()
	if err := events.Save(ctx, ev); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := events.Delete(ctx, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ev.Flagged = true
	err := events.Save(ctx, ev)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("saving a concurrently deleted event should be a conflict, got %v", err)
	}
}

func TestGetMissingEventIsNotFound(t *testing.T) {
	events, _, _ := newAggregates(t)
	if _, err := events.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestFindFilters(t *testing.T) {
	events, _, _ := newAggregates(t)
	ctx := context.Background()

	flagged := newEvent()
	flagged.Flagged = true
	flagged.Namespace = "training"
	plain := newEvent()
	for _, ev := range []*domain.ActionEvent{flagged, plain} {
		if err := events.Save(ctx, ev); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	yes := true
	got, err := events.Find(ctx, ActionEventFilter{Flagged: &yes})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0].ID != flagged.ID {
		t.Fatalf("flagged filter should match exactly one event, got %d", len(got))
	}

	ns := "training"
	got, err = events.Find(ctx, ActionEventFilter{Namespace: &ns})
	if err != nil {
		t.Fatalf("Find namespace: %v", err)
	}
	if len(got) != 1 || got[0].Namespace != "training" {
		t.Fatalf("namespace filter mismatch: %d", len(got))
	}

	tool := flagged.Tool
	got, err = events.Find(ctx, ActionEventFilter{Tool: &tool})
	if err != nil {
		t.Fatalf("Find tool: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("both events share the tool, got %d", len(got))
	}
}
