package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func sampleEventArgs() ActionEventArgs {
	return ActionEventArgs{
		State:  EnvState{Text: ptr("a mug on a table")},
		Action: Action{Name: "click", Parameters: map[string]any{"x": 10.0, "y": 20.0}},
		Tool:   ToolRef{Module: "browser", Name: "click", Version: "1"},
	}
}

func TestNewActionEventDefaults(t *testing.T) {
	ev := NewActionEvent(sampleEventArgs())
	if ev.ID == "" {
		t.Fatal("event id not assigned")
	}
	if ev.Namespace != "default" {
		t.Fatalf("empty namespace should default, got %q", ev.Namespace)
	}
	if ev.Metadata == nil {
		t.Fatal("metadata should default to an empty map")
	}
	if ev.Started == 0 || ev.Ended == 0 {
		t.Fatal("started/ended should default to now")
	}
	if ev.Version != 0 {
		t.Fatalf("fresh event must carry version 0, got %d", ev.Version)
	}
}

func TestPostReviewDedupByReviewerIdentity(t *testing.T) {
	ev := NewActionEvent(sampleEventArgs())
	first, err := ev.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: true})
	if err != nil {
		t.Fatalf("first PostReview: %v", err)
	}
	// Same identity reposts: in-place update, no second row.
	second, err := ev.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: false})
	if err != nil {
		t.Fatalf("second PostReview: %v", err)
	}
	if len(ev.Reviews) != 1 || first != second {
		t.Fatalf("expected one review mutated in place, got %d", len(ev.Reviews))
	}
	if second.Approved {
		t.Fatal("repost should overwrite the verdict")
	}
	// Same name, different reviewer_type: distinct review.
	if _, err := ev.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerAgent, Approved: true}); err != nil {
		t.Fatalf("agent PostReview: %v", err)
	}
	if len(ev.Reviews) != 2 {
		t.Fatalf("distinct reviewer_type should add a review, got %d", len(ev.Reviews))
	}
}

func TestPostReviewRetainsCorrection(t *testing.T) {
	ev := NewActionEvent(sampleEventArgs())
	correction := json.RawMessage(`{"action":{"name":"scroll"}}`)
	if _, err := ev.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: false, Correction: correction}); err != nil {
		t.Fatalf("PostReview with correction: %v", err)
	}
	review, err := ev.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: true})
	if err != nil {
		t.Fatalf("repost without correction: %v", err)
	}
	if string(review.Correction) != string(correction) {
		t.Fatalf("prior correction should be retained, got %s", review.Correction)
	}
}

func TestPostReviewableThroughRegistry(t *testing.T) {
	ev := NewActionEvent(sampleEventArgs())
	reviewable, err := ev.PostReviewable(TypeBoundingBoxReviewable,
		json.RawMessage(`{"img":"frame.png","target":"mug","bbox":{"x0":1,"x1":5,"y0":1,"y1":5}}`))
	if err != nil {
		t.Fatalf("PostReviewable: %v", err)
	}
	if reviewable.ResourceType != ResourceAction || reviewable.ResourceID != ev.ID {
		t.Fatalf("reviewable not owned by the event: %s %s", reviewable.ResourceType, reviewable.ResourceID)
	}
	if _, err := ev.PostReviewable("NopeReviewable", json.RawMessage(`{}`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown tag should fail validation, got %v", err)
	}
	if _, err := ev.PostReviewable(TypeBoundingBoxReviewable,
		json.RawMessage(`{"img":"frame.png","bbox":{"x0":9,"x1":1,"y0":1,"y1":5}}`)); !errors.Is(err, ErrInvariant) {
		t.Fatalf("inverted box should violate the edge invariant, got %v", err)
	}
}

func TestAdoptChildrenBackfillsResourcePointers(t *testing.T) {
	ev := NewActionEvent(sampleEventArgs())
	review := &Review{ID: NewID(), Reviewer: "alice", ReviewerType: ReviewerHuman, Created: Now()}
	ev.Reviews = append(ev.Reviews, review)
	opt := ev.AddActionOpt(Action{Name: "alt"}, nil, nil)
	rating := &Rating{ID: NewID(), Reviewer: "bot", ReviewerType: ReviewerAgent, Rating: 3, LowerBound: 1, UpperBound: 5, Created: Now()}
	opt.Ratings = append(opt.Ratings, rating)

	ev.AdoptChildren()

	if review.ResourceID != ev.ID || review.ResourceType != ResourceAction {
		t.Fatalf("review not adopted: %s %s", review.ResourceType, review.ResourceID)
	}
	if opt.ActionID != ev.ID {
		t.Fatalf("opt not adopted: %s", opt.ActionID)
	}
	if rating.ResourceID != opt.ID || rating.ResourceType != ResourceActionOpt {
		t.Fatalf("rating not adopted: %s %s", rating.ResourceType, rating.ResourceID)
	}
}

func TestEpisodeEventIndexBoundary(t *testing.T) {
	ep := NewEpisode(EpisodeArgs{})
	var ids []string
	for i := 0; i < 5; i++ {
		ev := NewActionEvent(sampleEventArgs())
		ep.Append(ev)
		ids = append(ids, ev.ID)
	}
	idx, err := ep.EventIndex(ids[2])
	if err != nil {
		t.Fatalf("EventIndex: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}
	if _, err := ep.EventIndex("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id should be not-found, got %v", err)
	}
}

func TestActionEventV1RoundTrip(t *testing.T) {
	ev := NewActionEvent(sampleEventArgs())
	if _, err := ev.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: true}); err != nil {
		t.Fatalf("PostReview: %v", err)
	}
	opt := ev.AddActionOpt(Action{Name: "alt"}, nil, nil)
	if _, err := opt.PostRating(RatingArgs{Reviewer: "bot", ReviewerType: ReviewerAgent, Rating: 2}); err != nil {
		t.Fatalf("PostRating: %v", err)
	}

	v1, err := ev.ToV1()
	if err != nil {
		t.Fatalf("ToV1: %v", err)
	}
	back, err := ActionEventFromV1(v1, nil)
	if err != nil {
		t.Fatalf("ActionEventFromV1: %v", err)
	}
	if back.ID != ev.ID || back.Tool != ev.Tool || back.Namespace != ev.Namespace {
		t.Fatalf("scalars did not survive the wire")
	}
	if len(back.Reviews) != 1 || len(back.ActionOpts) != 1 {
		t.Fatalf("children lost on the wire: %d reviews, %d opts", len(back.Reviews), len(back.ActionOpts))
	}
	if back.Version != 0 {
		t.Fatalf("wire decode must reset version to 0, got %d", back.Version)
	}
}
