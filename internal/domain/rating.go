package domain

import (
	"encoding/json"
	"fmt"
)

const (
	DefaultRatingLowerBound = 1
	DefaultRatingUpperBound = 5
)

// Rating is a bounded numeric score on a resource, typically attached to
// an ActionOpt. Bounds are validated at construction, not at save time.
type Rating struct {
	ID               string
	Reviewer         string
	ReviewerType     ReviewerType
	Rating           int
	UpperBound       int
	LowerBound       int
	Reason           *string
	ResourceType     ResourceType
	ResourceID       string
	WithResources    []string
	ParentID         *string
	Correction       json.RawMessage
	CorrectionSchema json.RawMessage
	Created          float64
	Updated          *float64
}

// RatingArgs carries the caller-supplied fields of a rating post.
// Zero bounds default to 1..5 inclusive.
type RatingArgs struct {
	Reviewer         string
	ReviewerType     ReviewerType
	Rating           int
	UpperBound       int
	LowerBound       int
	Reason           *string
	ParentID         *string
	Correction       json.RawMessage
	CorrectionSchema json.RawMessage
}

// NewRating validates bounds up front. ResourceID may be back-filled
// later by the owning ActionOpt before save.
func NewRating(args RatingArgs, resourceType ResourceType, resourceID string) (*Rating, error) {
	if args.Reviewer == "" {
		return nil, ValidationError("rating requires a reviewer")
	}
	lower, upper := args.LowerBound, args.UpperBound
	if lower == 0 && upper == 0 {
		lower, upper = DefaultRatingLowerBound, DefaultRatingUpperBound
	}
	if lower > upper {
		return nil, ValidationError(fmt.Sprintf("rating lower bound %d exceeds upper bound %d", lower, upper))
	}
	if args.Rating < lower || args.Rating > upper {
		return nil, ValidationError(fmt.Sprintf("rating %d outside bounds [%d, %d]", args.Rating, lower, upper))
	}
	reviewerType := args.ReviewerType
	if reviewerType == "" {
		reviewerType = ReviewerHuman
	}
	return &Rating{
		ID:               NewID(),
		Reviewer:         args.Reviewer,
		ReviewerType:     reviewerType,
		Rating:           args.Rating,
		UpperBound:       upper,
		LowerBound:       lower,
		Reason:           args.Reason,
		ResourceType:     resourceType,
		ResourceID:       resourceID,
		ParentID:         args.ParentID,
		Correction:       args.Correction,
		CorrectionSchema: args.CorrectionSchema,
		Created:          Now(),
	}, nil
}

// V1Rating is the versioned wire form of a Rating.
type V1Rating struct {
	ID               string          `json:"id"`
	Reviewer         string          `json:"reviewer"`
	Rating           int             `json:"rating"`
	ReviewerType     string          `json:"reviewer_type"`
	RatingUpperBound int             `json:"rating_upper_bound"`
	RatingLowerBound int             `json:"rating_lower_bound"`
	Reason           *string         `json:"reason,omitempty"`
	ResourceType     string          `json:"resource_type"`
	ResourceID       string          `json:"resource_id"`
	WithResources    []string        `json:"with_resources,omitempty"`
	ParentID         *string         `json:"parent_id,omitempty"`
	Correction       json.RawMessage `json:"correction,omitempty"`
	CorrectionSchema json.RawMessage `json:"correction_schema,omitempty"`
	Created          float64         `json:"created"`
	Updated          *float64        `json:"updated,omitempty"`
}

func (r *Rating) ToV1() V1Rating {
	return V1Rating{
		ID:               r.ID,
		Reviewer:         r.Reviewer,
		Rating:           r.Rating,
		ReviewerType:     string(r.ReviewerType),
		RatingUpperBound: r.UpperBound,
		RatingLowerBound: r.LowerBound,
		Reason:           r.Reason,
		ResourceType:     string(r.ResourceType),
		ResourceID:       r.ResourceID,
		WithResources:    r.WithResources,
		ParentID:         r.ParentID,
		Correction:       r.Correction,
		CorrectionSchema: r.CorrectionSchema,
		Created:          r.Created,
		Updated:          r.Updated,
	}
}

// RatingFromV1 rebuilds a Rating from its wire form without re-running
// bounds validation; the wire value is trusted to have been validated at
// construction time.
func RatingFromV1(v1 V1Rating) *Rating {
	return &Rating{
		ID:               v1.ID,
		Reviewer:         v1.Reviewer,
		ReviewerType:     ReviewerType(v1.ReviewerType),
		Rating:           v1.Rating,
		UpperBound:       v1.RatingUpperBound,
		LowerBound:       v1.RatingLowerBound,
		Reason:           v1.Reason,
		ResourceType:     ResourceType(v1.ResourceType),
		ResourceID:       v1.ResourceID,
		WithResources:    v1.WithResources,
		ParentID:         v1.ParentID,
		Correction:       v1.Correction,
		CorrectionSchema: v1.CorrectionSchema,
		Created:          v1.Created,
		Updated:          v1.Updated,
	}
}
