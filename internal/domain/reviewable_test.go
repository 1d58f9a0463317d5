package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeReviewableUnknownTag(t *testing.T) {
	_, err := DecodeReviewablePayload("MysteryReviewable", []byte(`{}`))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown tag should fail validation, got %v", err)
	}
}

func TestBoundingBoxEdgeOrdering(t *testing.T) {
	cases := []struct {
		name string
		box  BoundingBox
		ok   bool
	}{
		{"ordered", BoundingBox{X0: 1, X1: 10, Y0: 2, Y1: 20}, true},
		{"x inverted", BoundingBox{X0: 10, X1: 1, Y0: 2, Y1: 20}, false},
		{"y inverted", BoundingBox{X0: 1, X1: 10, Y0: 20, Y1: 2}, false},
		{"degenerate", BoundingBox{X0: 5, X1: 5, Y0: 2, Y1: 20}, false},
	}
	for _, tc := range cases {
		err := tc.box.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: expected valid, got %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvariant) {
			t.Errorf("%s: expected invariant violation, got %v", tc.name, err)
		}
	}
}

func TestBoundingBoxPayloadRequiresImage(t *testing.T) {
	p := BoundingBoxPayload{BBox: BoundingBox{X0: 0, X1: 1, Y0: 0, Y1: 1}}
	if err := p.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing image should fail validation, got %v", err)
	}
}

func TestAnnotationDefaultsAnnotatorType(t *testing.T) {
	payload, err := DecodeReviewablePayload(TypeAnnotationReviewable, []byte(`{"key":"scene","value":"kitchen"}`))
	if err != nil {
		t.Fatalf("decode annotation: %v", err)
	}
	annotation, ok := payload.(AnnotationPayload)
	if !ok {
		t.Fatalf("expected AnnotationPayload, got %T", payload)
	}
	if annotation.AnnotatorType != string(ReviewerAgent) {
		t.Fatalf("empty annotator_type should default to agent, got %q", annotation.AnnotatorType)
	}
}

func TestReviewableV1RoundTripWithNestedReviews(t *testing.T) {
	payload := BoundingBoxPayload{
		Img:    "https://example.com/frame-4.png",
		Target: "mug",
		BBox:   BoundingBox{X0: 10, X1: 40, Y0: 12, Y1: 44},
	}
	reviewable, err := NewReviewable(payload, ResourceAction, "ev-1")
	if err != nil {
		t.Fatalf("NewReviewable: %v", err)
	}
	if _, err := reviewable.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: true}); err != nil {
		t.Fatalf("PostReview: %v", err)
	}

	v1, err := reviewable.ToV1()
	if err != nil {
		t.Fatalf("ToV1: %v", err)
	}
	if v1.Type != TypeBoundingBoxReviewable {
		t.Fatalf("wrong type tag: %q", v1.Type)
	}
	raw, err := json.Marshal(v1)
	if err != nil {
		t.Fatalf("marshal wire form: %v", err)
	}
	var decoded V1Reviewable
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal wire form: %v", err)
	}
	back, err := ReviewableFromV1(decoded)
	if err != nil {
		t.Fatalf("ReviewableFromV1: %v", err)
	}
	box, ok := back.Payload.(BoundingBoxPayload)
	if !ok {
		t.Fatalf("expected BoundingBoxPayload, got %T", back.Payload)
	}
	if box != payload {
		t.Fatalf("payload did not survive the wire: %+v vs %+v", box, payload)
	}
	if len(back.Reviews) != 1 || back.Reviews[0].Reviewer != "alice" {
		t.Fatalf("nested review lost on the wire: %+v", back.Reviews)
	}
}

func TestReviewablePostReviewDedup(t *testing.T) {
	reviewable, err := NewReviewable(AnnotationPayload{Key: "k", Value: "v", AnnotatorType: string(ReviewerAgent)}, ResourceAction, "ev-1")
	if err != nil {
		t.Fatalf("NewReviewable: %v", err)
	}
	first, err := reviewable.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: false})
	if err != nil {
		t.Fatalf("first PostReview: %v", err)
	}
	second, err := reviewable.PostReview(ReviewArgs{Reviewer: "alice", ReviewerType: ReviewerHuman, Approved: true})
	if err != nil {
		t.Fatalf("second PostReview: %v", err)
	}
	if len(reviewable.Reviews) != 1 {
		t.Fatalf("expected one review after repost, got %d", len(reviewable.Reviews))
	}
	if first != second {
		t.Fatalf("repost should mutate the existing review in place")
	}
	if !second.Approved || second.Updated == nil {
		t.Fatalf("repost should flip the verdict and stamp updated")
	}
}
