package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/domain"
)

// seedEpisode saves an episode with n events carrying strictly increasing
// creation times so load order is deterministic.
func seedEpisode(t *testing.T, episodes *Episodes, n int) *domain.Episode {
	t.Helper()
	ctx := context.Background()
	ep := domain.NewEpisode(domain.EpisodeArgs{Tags: []string{"sim"}})
	if err := episodes.Save(ctx, ep); err != nil {
		t.Fatalf("save episode: %v", err)
	}
	for i := 0; i < n; i++ {
		ev := newEvent()
		ev.Created = float64(1000 + i)
		if i%2 == 1 {
			ev.Hidden = true
		}
		if err := episodes.RecordEvent(ctx, ep, ev); err != nil {
			t.Fatalf("record event %d: %v", i, err)
		}
	}
	return ep
}

func reviewerArgs() domain.ReviewArgs {
	return domain.ReviewArgs{Reviewer: "alice", ReviewerType: domain.ReviewerHuman}
}

func TestRecordEventAttachesAndTouchesEpisode(t *testing.T) {
	_, episodes, db := newAggregates(t)
	ctx := context.Background()

	ep := domain.NewEpisode(domain.EpisodeArgs{})
	if err := episodes.Save(ctx, ep); err != nil {
		t.Fatalf("save episode: %v", err)
	}
	before := ep.Updated

	ev := newEvent()
	if err := episodes.RecordEvent(ctx, ep, ev); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if ev.EpisodeID == nil || *ev.EpisodeID != ep.ID {
		t.Fatal("event not claimed by the episode")
	}
	if len(ep.Actions) != 1 {
		t.Fatalf("in-memory list should hold the event, got %d", len(ep.Actions))
	}

	var row records.Episode
	if err := db.First(&row, "id = ?", ep.ID).Error; err != nil {
		t.Fatalf("load episode row: %v", err)
	}
	if row.Updated < before {
		t.Fatal("updated column should move forward")
	}

	got, err := episodes.Get(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Actions) != 1 || got.Actions[0].ID != ev.ID {
		t.Fatalf("loaded episode should carry the event, got %d", len(got.Actions))
	}
}

func TestGetSortsActionsByCreated(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()

	ep := domain.NewEpisode(domain.EpisodeArgs{})
	if err := episodes.Save(ctx, ep); err != nil {
		t.Fatalf("save episode: %v", err)
	}
	// Record out of creation order.
	late := newEvent()
	late.Created = 2000
	early := newEvent()
	early.Created = 1000
	for _, ev := range []*domain.ActionEvent{late, early} {
		if err := episodes.RecordEvent(ctx, ep, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := episodes.Get(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Actions[0].ID != early.ID || got.Actions[1].ID != late.ID {
		t.Fatal("actions should load in creation order")
	}
}

func TestApproveAllSkipsHiddenByDefault(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()
	ep := seedEpisode(t, episodes, 4) // indices 1 and 3 hidden

	reviews, err := episodes.ApproveAll(ctx, ep, reviewerArgs(), false)
	if err != nil {
		t.Fatalf("ApproveAll: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("hidden events should be skipped, got %d reviews", len(reviews))
	}

	got, err := episodes.Get(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i, ev := range got.Actions {
		wantReview := !ev.Hidden
		if (len(ev.Reviews) == 1) != wantReview {
			t.Errorf("action %d hidden=%v: got %d reviews", i, ev.Hidden, len(ev.Reviews))
		}
	}
}

func TestFailAllIncludesHiddenOnRequest(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()
	ep := seedEpisode(t, episodes, 4)

	reviews, err := episodes.FailAll(ctx, ep, reviewerArgs(), true)
	if err != nil {
		t.Fatalf("FailAll: %v", err)
	}
	if len(reviews) != 4 {
		t.Fatalf("include_hidden should review everything, got %d", len(reviews))
	}
	for _, review := range reviews {
		if review.Approved {
			t.Fatal("FailAll should post rejecting reviews")
		}
		if len(review.WithResources) != 4 {
			t.Fatalf("bulk review should carry provenance ids, got %d", len(review.WithResources))
		}
	}
}

func TestBulkReviewProvenanceIsIndependent(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()
	ep := seedEpisode(t, episodes, 4)

	reviews, err := episodes.ApproveAll(ctx, ep, reviewerArgs(), true)
	if err != nil {
		t.Fatalf("ApproveAll: %v", err)
	}
	if len(reviews) != 4 {
		t.Fatalf("expected 4 reviews, got %d", len(reviews))
	}
	reviews[0].WithResources[0] = "mutated"
	if reviews[1].WithResources[0] == "mutated" {
		t.Fatal("provenance lists must not share backing storage across reviews")
	}
}

func TestApprovePriorInclusiveBoundary(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()

	ep := domain.NewEpisode(domain.EpisodeArgs{})
	if err := episodes.Save(ctx, ep); err != nil {
		t.Fatalf("save episode: %v", err)
	}
	var ids []string
	for i := 0; i < 5; i++ {
		ev := newEvent()
		ev.Created = float64(1000 + i)
		if err := episodes.RecordEvent(ctx, ep, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
		ids = append(ids, ev.ID)
	}

	reviews, err := episodes.ApprovePrior(ctx, ep, ids[2], reviewerArgs(), false)
	if err != nil {
		t.Fatalf("ApprovePrior: %v", err)
	}
	if len(reviews) != 3 {
		t.Fatalf("target index 2 should review indices 0..2, got %d", len(reviews))
	}

	got, err := episodes.Get(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i, ev := range got.Actions {
		want := i <= 2
		if (len(ev.Reviews) == 1) != want {
			t.Errorf("action %d: expected reviewed=%v, got %d reviews", i, want, len(ev.Reviews))
		}
	}
}

func TestApprovePriorMissingTargetWritesNothing(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()
	ep := seedEpisode(t, episodes, 3)

	_, err := episodes.ApprovePrior(ctx, ep, "missing", reviewerArgs(), true)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing target should be not-found, got %v", err)
	}

	got, err := episodes.Get(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i, ev := range got.Actions {
		if len(ev.Reviews) != 0 {
			t.Errorf("action %d should carry no reviews after failed bulk op", i)
		}
	}
}

func TestDeleteAllActionsKeepsEpisode(t *testing.T) {
	_, episodes, db := newAggregates(t)
	ctx := context.Background()
	ep := seedEpisode(t, episodes, 3)

	if err := episodes.DeleteAllActions(ctx, ep); err != nil {
		t.Fatalf("DeleteAllActions: %v", err)
	}
	if len(ep.Actions) != 0 {
		t.Fatal("in-memory action list should be cleared")
	}

	var eventCount int64
	if err := db.Model(&records.ActionEvent{}).Count(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 0 {
		t.Fatalf("all event rows should be gone, %d remain", eventCount)
	}
	if _, err := episodes.Get(ctx, ep.ID); err != nil {
		t.Fatalf("episode row should survive: %v", err)
	}
}

func TestDeleteActionRemovesOne(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()
	ep := seedEpisode(t, episodes, 3)
	victim := ep.Actions[1].ID

	if err := episodes.DeleteAction(ctx, ep, victim); err != nil {
		t.Fatalf("DeleteAction: %v", err)
	}
	if len(ep.Actions) != 2 {
		t.Fatalf("expected 2 actions in memory, got %d", len(ep.Actions))
	}
	got, err := episodes.Get(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, ev := range got.Actions {
		if ev.ID == victim {
			t.Fatal("victim event should be gone")
		}
	}

	if err := episodes.DeleteAction(ctx, ep, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleting unknown action should be not-found, got %v", err)
	}
}

func TestEpisodeDeleteCascades(t *testing.T) {
	_, episodes, db := newAggregates(t)
	ctx := context.Background()
	ep := seedEpisode(t, episodes, 2)

	// Hang a full child tree off one event so the delete has
	// grandchildren to cascade through.
	target := ep.Actions[0]
	if _, err := target.PostReview(reviewerArgs()); err != nil {
		t.Fatalf("PostReview: %v", err)
	}
	if _, err := target.PostReviewable(domain.TypeAnnotationReviewable,
		json.RawMessage(`{"key":"scene","value":"lab"}`)); err != nil {
		t.Fatalf("PostReviewable: %v", err)
	}
	opt := target.AddActionOpt(domain.Action{Name: "alt"}, nil, nil)
	if _, err := opt.PostRating(domain.RatingArgs{Reviewer: "bot", ReviewerType: domain.ReviewerAgent, Rating: 3}); err != nil {
		t.Fatalf("PostRating: %v", err)
	}
	if err := episodes.RecordEvent(ctx, ep, target); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	if err := episodes.Delete(ctx, ep.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, model := range []any{
		&records.Episode{}, &records.ActionEvent{}, &records.Review{},
		&records.Reviewable{}, &records.ActionOpt{}, &records.Rating{},
	} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count %T: %v", model, err)
		}
		if count != 0 {
			t.Fatalf("%T rows should be gone, %d remain", model, count)
		}
	}
	if err := episodes.Delete(ctx, ep.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("double delete should be not-found, got %v", err)
	}
}

func TestEpisodeResaveKeepsCreated(t *testing.T) {
	_, episodes, db := newAggregates(t)
	ctx := context.Background()

	ep := domain.NewEpisode(domain.EpisodeArgs{})
	ep.Created = 1234
	if err := episodes.Save(ctx, ep); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	ep.Created = 9999
	ep.Tags = []string{"relabeled"}
	if err := episodes.Save(ctx, ep); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	var row records.Episode
	if err := db.First(&row, "id = ?", ep.ID).Error; err != nil {
		t.Fatalf("load episode row: %v", err)
	}
	if row.Created != 1234 {
		t.Fatalf("created must survive re-saves, got %v", row.Created)
	}
	var tags []string
	if err := json.Unmarshal(row.Tags, &tags); err != nil {
		t.Fatalf("decode tags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "relabeled" {
		t.Fatalf("mutable columns should still update, got %v", tags)
	}
}

func TestFindEpisodesByTag(t *testing.T) {
	_, episodes, _ := newAggregates(t)
	ctx := context.Background()

	tagged := domain.NewEpisode(domain.EpisodeArgs{Tags: []string{"curated"}})
	other := domain.NewEpisode(domain.EpisodeArgs{Tags: []string{"raw"}})
	for _, ep := range []*domain.Episode{tagged, other} {
		if err := episodes.Save(ctx, ep); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	tag := "curated"
	got, err := episodes.Find(ctx, EpisodeFilter{Tag: &tag})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0].ID != tagged.ID {
		t.Fatalf("tag filter should match exactly one episode, got %d", len(got))
	}
}
