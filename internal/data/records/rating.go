package records

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/agentgym/episodic-backend/internal/domain"
)

// Rating is the persisted row behind domain.Rating. Bounds travel with
// the row so historical scores stay interpretable if defaults change.
type Rating struct {
	ID               string         `gorm:"primaryKey" json:"id"`
	Reviewer         string         `gorm:"not null;index" json:"reviewer"`
	ReviewerType     string         `gorm:"not null" json:"reviewer_type"`
	Rating           int            `gorm:"not null" json:"rating"`
	UpperBound       int            `gorm:"not null" json:"rating_upper_bound"`
	LowerBound       int            `gorm:"not null" json:"rating_lower_bound"`
	Reason           *string        `json:"reason,omitempty"`
	ResourceType     string         `gorm:"not null;index:idx_rating_resource" json:"resource_type"`
	ResourceID       string         `gorm:"not null;index:idx_rating_resource" json:"resource_id"`
	WithResources    datatypes.JSON `json:"with_resources,omitempty"`
	ParentID         *string        `gorm:"index" json:"parent_id,omitempty"`
	Parent           *Rating        `gorm:"foreignKey:ParentID;references:ID" json:"-"`
	Correction       datatypes.JSON `json:"correction,omitempty"`
	CorrectionSchema datatypes.JSON `json:"correction_schema,omitempty"`
	Created          float64        `gorm:"not null" json:"created"`
	Updated          *float64       `json:"updated,omitempty"`
}

func (Rating) TableName() string { return "ratings" }

func FromRating(rating *domain.Rating) (*Rating, error) {
	var withResources datatypes.JSON
	if rating.WithResources != nil {
		raw, err := json.Marshal(rating.WithResources)
		if err != nil {
			return nil, err
		}
		withResources = datatypes.JSON(raw)
	}
	return &Rating{
		ID:               rating.ID,
		Reviewer:         rating.Reviewer,
		ReviewerType:     string(rating.ReviewerType),
		Rating:           rating.Rating,
		UpperBound:       rating.UpperBound,
		LowerBound:       rating.LowerBound,
		Reason:           rating.Reason,
		ResourceType:     string(rating.ResourceType),
		ResourceID:       rating.ResourceID,
		WithResources:    withResources,
		ParentID:         rating.ParentID,
		Correction:       datatypes.JSON(rating.Correction),
		CorrectionSchema: datatypes.JSON(rating.CorrectionSchema),
		Created:          rating.Created,
		Updated:          rating.Updated,
	}, nil
}

func (r *Rating) ToDomain() (*domain.Rating, error) {
	var withResources []string
	if len(r.WithResources) > 0 {
		if err := json.Unmarshal(r.WithResources, &withResources); err != nil {
			return nil, err
		}
	}
	return &domain.Rating{
		ID:               r.ID,
		Reviewer:         r.Reviewer,
		ReviewerType:     domain.ReviewerType(r.ReviewerType),
		Rating:           r.Rating,
		UpperBound:       r.UpperBound,
		LowerBound:       r.LowerBound,
		Reason:           r.Reason,
		ResourceType:     domain.ResourceType(r.ResourceType),
		ResourceID:       r.ResourceID,
		WithResources:    withResources,
		ParentID:         r.ParentID,
		Correction:       json.RawMessage(r.Correction),
		CorrectionSchema: json.RawMessage(r.CorrectionSchema),
		Created:          r.Created,
		Updated:          r.Updated,
	}, nil
}
