package records

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/agentgym/episodic-backend/internal/domain"
)

// Review is the persisted row behind domain.Review. Corrections are
// always structured jsonb; there is no raw-string fallback.
type Review struct {
	ID               string         `gorm:"primaryKey" json:"id"`
	Reviewer         string         `gorm:"not null;index" json:"reviewer"`
	ReviewerType     string         `gorm:"not null" json:"reviewer_type"`
	Approved         bool           `gorm:"not null" json:"approved"`
	Reason           *string        `json:"reason,omitempty"`
	ResourceType     string         `gorm:"not null;index:idx_review_resource" json:"resource_type"`
	ResourceID       string         `gorm:"not null;index:idx_review_resource" json:"resource_id"`
	WithResources    datatypes.JSON `json:"with_resources,omitempty"`
	ParentID         *string        `gorm:"index" json:"parent_id,omitempty"`
	Parent           *Review        `gorm:"foreignKey:ParentID;references:ID" json:"-"`
	Correction       datatypes.JSON `json:"correction,omitempty"`
	CorrectionSchema datatypes.JSON `json:"correction_schema,omitempty"`
	Created          float64        `gorm:"not null" json:"created"`
	Updated          *float64       `json:"updated,omitempty"`
}

func (Review) TableName() string { return "reviews" }

func FromReview(review *domain.Review) (*Review, error) {
	var withResources datatypes.JSON
	if review.WithResources != nil {
		raw, err := json.Marshal(review.WithResources)
		if err != nil {
			return nil, err
		}
		withResources = datatypes.JSON(raw)
	}
	return &Review{
		ID:               review.ID,
		Reviewer:         review.Reviewer,
		ReviewerType:     string(review.ReviewerType),
		Approved:         review.Approved,
		Reason:           review.Reason,
		ResourceType:     string(review.ResourceType),
		ResourceID:       review.ResourceID,
		WithResources:    withResources,
		ParentID:         review.ParentID,
		Correction:       datatypes.JSON(review.Correction),
		CorrectionSchema: datatypes.JSON(review.CorrectionSchema),
		Created:          review.Created,
		Updated:          review.Updated,
	}, nil
}

func (r *Review) ToDomain() (*domain.Review, error) {
	var withResources []string
	if len(r.WithResources) > 0 {
		if err := json.Unmarshal(r.WithResources, &withResources); err != nil {
			return nil, err
		}
	}
	return &domain.Review{
		ID:               r.ID,
		Reviewer:         r.Reviewer,
		ReviewerType:     domain.ReviewerType(r.ReviewerType),
		Approved:         r.Approved,
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
