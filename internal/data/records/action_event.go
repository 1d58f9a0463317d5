package records

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/agentgym/episodic-backend/internal/domain"
)

// ActionEvent is the versioned row at the center of the aggregate. The
// version column backs the optimistic-lock protocol: every successful
// update must bump it, and writers carrying a stale version are rejected.
type ActionEvent struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	Version       int            `gorm:"not null;default:1" json:"version"`
	State         datatypes.JSON `gorm:"not null" json:"state"`
	Action        datatypes.JSON `gorm:"not null" json:"action"`
	Result        datatypes.JSON `json:"result,omitempty"`
	EndState      datatypes.JSON `json:"end_state,omitempty"`
	Tool          datatypes.JSON `gorm:"not null" json:"tool"`
	Namespace     string         `gorm:"not null;default:default;index" json:"namespace"`
	PromptID      *string        `json:"prompt_id,omitempty"`
	PromptPayload datatypes.JSON `json:"prompt_payload,omitempty"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	EventOrder    *int           `gorm:"index" json:"event_order,omitempty"`
	Flagged       bool           `gorm:"not null;default:false" json:"flagged"`
	Hidden        bool           `gorm:"not null;default:false" json:"hidden"`
	Model         *string        `json:"model,omitempty"`
	AgentID       *string        `gorm:"index" json:"agent_id,omitempty"`
	OwnerID       *string        `gorm:"index" json:"owner_id,omitempty"`
	Created       float64        `gorm:"not null;index" json:"created"`
	Started       float64        `gorm:"not null" json:"started"`
	Ended         float64        `gorm:"not null" json:"ended"`
	EpisodeID     *string        `gorm:"index" json:"episode_id,omitempty"`

	Reviews     []*Review     `gorm:"many2many:action_event_reviews" json:"reviews"`
	Reviewables []*Reviewable `gorm:"many2many:action_event_reviewables" json:"reviewables"`
	ActionOpts  []*ActionOpt  `gorm:"foreignKey:ActionID;references:ID" json:"action_opts"`
}

func (ActionEvent) TableName() string { return "action_events" }

// FromActionEvent serializes the scalar fields only; child rows and join
// memberships are reconciled by the aggregate save.
func FromActionEvent(ev *domain.ActionEvent) (*ActionEvent, error) {
	state, err := json.Marshal(ev.State)
	if err != nil {
		return nil, err
	}
	action, err := json.Marshal(ev.Action)
	if err != nil {
		return nil, err
	}
	result, err := json.Marshal(ev.Result)
	if err != nil {
		return nil, err
	}
	tool, err := json.Marshal(ev.Tool)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return nil, err
	}
	rec := &ActionEvent{
		ID:         ev.ID,
		Version:    ev.Version,
		State:      datatypes.JSON(state),
		Action:     datatypes.JSON(action),
		Result:     datatypes.JSON(result),
		Tool:       datatypes.JSON(tool),
		Namespace:  ev.Namespace,
		Metadata:   datatypes.JSON(metadata),
		EventOrder: ev.EventOrder,
		Flagged:    ev.Flagged,
		Hidden:     ev.Hidden,
		Model:      ev.Model,
		AgentID:    ev.AgentID,
		OwnerID:    ev.OwnerID,
		Created:    ev.Created,
		Started:    ev.Started,
		Ended:      ev.Ended,
		EpisodeID:  ev.EpisodeID,
	}
	if ev.EndState != nil {
		endState, err := json.Marshal(ev.EndState)
		if err != nil {
			return nil, err
		}
		rec.EndState = datatypes.JSON(endState)
	}
	if !ev.Prompt.IsZero() {
		rec.PromptID = ev.Prompt.ID
		rec.PromptPayload = datatypes.JSON(ev.Prompt.Payload)
	}
	return rec, nil
}

func (r *ActionEvent) ToDomain() (*domain.ActionEvent, error) {
	var state domain.EnvState
	if err := json.Unmarshal(r.State, &state); err != nil {
		return nil, err
	}
	var action domain.Action
	if err := json.Unmarshal(r.Action, &action); err != nil {
		return nil, err
	}
	var tool domain.ToolRef
	if err := json.Unmarshal(r.Tool, &tool); err != nil {
		return nil, err
	}
	var result any
	if len(r.Result) > 0 {
		if err := json.Unmarshal(r.Result, &result); err != nil {
			return nil, err
		}
	}
	metadata := map[string]any{}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return nil, err
		}
	}
	var endState *domain.EnvState
	if len(r.EndState) > 0 {
		endState = &domain.EnvState{}
		if err := json.Unmarshal(r.EndState, endState); err != nil {
			return nil, err
		}
	}

	reviews := make([]*domain.Review, 0, len(r.Reviews))
	for _, reviewRec := range r.Reviews {
		review, err := reviewRec.ToDomain()
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	reviewables := make([]*domain.Reviewable, 0, len(r.Reviewables))
	for _, reviewableRec := range r.Reviewables {
		reviewable, err := reviewableRec.ToDomain()
		if err != nil {
			return nil, err
		}
		reviewables = append(reviewables, reviewable)
	}
	opts := make([]*domain.ActionOpt, 0, len(r.ActionOpts))
	for _, optRec := range r.ActionOpts {
		opt, err := optRec.ToDomain()
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	if len(reviews) == 0 {
		reviews = nil
	}
	if len(reviewables) == 0 {
		reviewables = nil
	}
	if len(opts) == 0 {
		opts = nil
	}

	ev := &domain.ActionEvent{
		ID:          r.ID,
		State:       state,
		Action:      action,
		Result:      result,
		EndState:    endState,
		EventOrder:  r.EventOrder,
		Tool:        tool,
		Namespace:   r.Namespace,
		Metadata:    metadata,
		Created:     r.Created,
		Started:     r.Started,
		Ended:       r.Ended,
		Flagged:     r.Flagged,
		Hidden:      r.Hidden,
		Model:       r.Model,
		AgentID:     r.AgentID,
		OwnerID:     r.OwnerID,
		EpisodeID:   r.EpisodeID,
		Reviews:     reviews,
		Reviewables: reviewables,
		ActionOpts:  opts,
		Version:     r.Version,
	}
	if r.PromptID != nil || len(r.PromptPayload) > 0 {
		ev.Prompt = &domain.PromptRef{ID: r.PromptID, Payload: json.RawMessage(r.PromptPayload)}
	}
	return ev, nil
}
