package records

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/agentgym/episodic-backend/internal/domain"
)

// ActionOpt is the persisted row behind domain.ActionOpt. Ratings attach
// through the action_opt_ratings join table.
type ActionOpt struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	Action        datatypes.JSON `gorm:"not null" json:"action"`
	PromptID      *string        `json:"prompt_id,omitempty"`
	PromptPayload datatypes.JSON `json:"prompt_payload,omitempty"`
	ActionID      string         `gorm:"not null;index" json:"action_id"`
	Ratings       []*Rating      `gorm:"many2many:action_opt_ratings" json:"ratings"`
	Created       float64        `gorm:"not null" json:"created"`
	Updated       float64        `gorm:"not null" json:"updated"`
}

func (ActionOpt) TableName() string { return "action_opts" }

func FromActionOpt(opt *domain.ActionOpt) (*ActionOpt, error) {
	action, err := json.Marshal(opt.Action)
	if err != nil {
		return nil, err
	}
	rec := &ActionOpt{
		ID:       opt.ID,
		Action:   datatypes.JSON(action),
		ActionID: opt.ActionID,
		Created:  opt.Created,
		Updated:  opt.Updated,
	}
	if !opt.Prompt.IsZero() {
		rec.PromptID = opt.Prompt.ID
		rec.PromptPayload = datatypes.JSON(opt.Prompt.Payload)
	}
	return rec, nil
}

func (r *ActionOpt) ToDomain() (*domain.ActionOpt, error) {
	var action domain.Action
	if err := json.Unmarshal(r.Action, &action); err != nil {
		return nil, err
	}
	ratings := make([]*domain.Rating, 0, len(r.Ratings))
	for _, ratingRec := range r.Ratings {
		rating, err := ratingRec.ToDomain()
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	if len(ratings) == 0 {
		ratings = nil
	}
	opt := &domain.ActionOpt{
		ID:       r.ID,
		Action:   action,
		Ratings:  ratings,
		ActionID: r.ActionID,
		Created:  r.Created,
		Updated:  r.Updated,
	}
	if r.PromptID != nil || len(r.PromptPayload) > 0 {
		opt.Prompt = &domain.PromptRef{ID: r.PromptID, Payload: json.RawMessage(r.PromptPayload)}
	}
	return opt, nil
}
