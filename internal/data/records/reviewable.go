package records

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/agentgym/episodic-backend/internal/domain"
)

// Reviewable stores any registered variant generically: the type column
// holds the registry tag, the payload column its JSON body. Reviews hang
// off the reviewable_reviews join table.
type Reviewable struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	Type         string         `gorm:"not null;index" json:"type"`
	Payload      datatypes.JSON `gorm:"not null" json:"reviewable"`
	ResourceType string         `gorm:"not null;index:idx_reviewable_resource" json:"resource_type"`
	ResourceID   string         `gorm:"not null;index:idx_reviewable_resource" json:"resource_id"`
	Reviews      []*Review      `gorm:"many2many:reviewable_reviews" json:"reviews"`
	Created      float64        `gorm:"not null;index" json:"created"`
	Updated      *float64       `json:"updated,omitempty"`
}

func (Reviewable) TableName() string { return "reviewables" }

func FromReviewable(reviewable *domain.Reviewable) (*Reviewable, error) {
	raw, err := json.Marshal(reviewable.Payload)
	if err != nil {
		return nil, err
	}
	return &Reviewable{
		ID:           reviewable.ID,
		Type:         reviewable.Payload.TypeTag(),
		Payload:      datatypes.JSON(raw),
		ResourceType: string(reviewable.ResourceType),
		ResourceID:   reviewable.ResourceID,
		Created:      reviewable.Created,
		Updated:      reviewable.Updated,
	}, nil
}

func (r *Reviewable) ToDomain() (*domain.Reviewable, error) {
	payload, err := domain.DecodeReviewablePayload(r.Type, r.Payload)
	if err != nil {
		return nil, err
	}
	reviews := make([]*domain.Review, 0, len(r.Reviews))
	for _, reviewRec := range r.Reviews {
		review, err := reviewRec.ToDomain()
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	if len(reviews) == 0 {
		reviews = nil
	}
	return &domain.Reviewable{
		ID:           r.ID,
		ResourceType: domain.ResourceType(r.ResourceType),
		ResourceID:   r.ResourceID,
		Payload:      payload,
		Reviews:      reviews,
		Created:      r.Created,
		Updated:      r.Updated,
	}, nil
}
