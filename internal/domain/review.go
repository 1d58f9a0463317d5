package domain

import (
	"encoding/json"
)

// Review is a boolean approve/reject verdict on a resource, keyed by
// reviewer identity. A resource carries at most one Review per
// (reviewer, reviewer_type) pair; reposting updates the existing row.
type Review struct {
	ID               string
	Reviewer         string
	ReviewerType     ReviewerType
	Approved         bool
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

// ReviewArgs carries the caller-supplied fields of a post_review call.
type ReviewArgs struct {
	Reviewer         string
	ReviewerType     ReviewerType
	Approved         bool
	Reason           *string
	ParentID         *string
	Correction       json.RawMessage
	CorrectionSchema json.RawMessage
}

func (a ReviewArgs) validate() error {
	if a.Reviewer == "" {
		return ValidationError("review requires a reviewer")
	}
	switch a.ReviewerType {
	case ReviewerHuman, ReviewerAgent:
	case "":
		return ValidationError("review requires a reviewer_type")
	default:
		return ValidationError("unknown reviewer_type: " + string(a.ReviewerType))
	}
	return nil
}

// NewReview builds a review against the given resource. Corrections are
// always structured JSON; raw strings must be JSON-encoded by the caller.
func NewReview(args ReviewArgs, resourceType ResourceType, resourceID string) (*Review, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	return &Review{
		ID:               NewID(),
		Reviewer:         args.Reviewer,
		ReviewerType:     args.ReviewerType,
		Approved:         args.Approved,
		Reason:           args.Reason,
		ResourceType:     resourceType,
		ResourceID:       resourceID,
		ParentID:         args.ParentID,
		Correction:       args.Correction,
		CorrectionSchema: args.CorrectionSchema,
		Created:          Now(),
	}, nil
}

// Apply overwrites the verdict fields from a repeated post_review call.
// The prior correction is retained unless a new one is supplied.
func (r *Review) Apply(args ReviewArgs) {
	r.Approved = args.Approved
	r.Reason = args.Reason
	r.Updated = ptr(Now())
	if len(args.Correction) > 0 {
		r.Correction = args.Correction
	}
	if len(args.CorrectionSchema) > 0 {
		r.CorrectionSchema = args.CorrectionSchema
	}
}

// V1Review is the versioned wire form of a Review.
type V1Review struct {
	ID               string          `json:"id"`
	Reviewer         string          `json:"reviewer"`
	Approved         bool            `json:"approved"`
	ReviewerType     string          `json:"reviewer_type"`
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

func (r *Review) ToV1() V1Review {
	return V1Review{
		ID:               r.ID,
		Reviewer:         r.Reviewer,
		Approved:         r.Approved,
		ReviewerType:     string(r.ReviewerType),
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

// ReviewFromV1 rebuilds a fully-formed Review from its wire form.
func ReviewFromV1(v1 V1Review) *Review {
	return &Review{
		ID:               v1.ID,
		Reviewer:         v1.Reviewer,
		ReviewerType:     ReviewerType(v1.ReviewerType),
		Approved:         v1.Approved,
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
