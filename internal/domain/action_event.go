package domain

import (
	"encoding/json"
)

// ActionEvent is one recorded agent action: the environment before and
// after, the action taken, its result, and every judgment attached to it.
// Version mirrors the persisted row's optimistic-lock counter; zero means
// the event has never been saved.
type ActionEvent struct {
	ID         string
	State      EnvState
	Action     Action
	Result     any
	EndState   *EnvState
	EventOrder *int
	Tool       ToolRef
	Namespace  string
	Prompt     *PromptRef
	Metadata   map[string]any
	Created    float64
	Started    float64
	Ended      float64
	Flagged    bool
	Hidden     bool
	Model      *string
	AgentID    *string
	OwnerID    *string
	EpisodeID  *string

	Reviews     []*Review
	Reviewables []*Reviewable
	ActionOpts  []*ActionOpt

	Version int
}

// ActionEventArgs carries the construction-time fields of an ActionEvent.
type ActionEventArgs struct {
	State       EnvState
	Action      Action
	Tool        ToolRef
	Result      any
	EndState    *EnvState
	EventOrder  *int
	Namespace   string
	Prompt      *PromptRef
	Metadata    map[string]any
	Flagged     bool
	Hidden      bool
	Model       *string
	AgentID     *string
	OwnerID     *string
	EpisodeID   *string
	Started     float64
	Ended       float64
	Reviews     []*Review
	Reviewables []*Reviewable
	ActionOpts  []*ActionOpt
}

func NewActionEvent(args ActionEventArgs) *ActionEvent {
	now := Now()
	ev := &ActionEvent{
		ID:          NewID(),
		State:       args.State,
		Action:      args.Action,
		Tool:        args.Tool,
		Result:      args.Result,
		EndState:    args.EndState,
		EventOrder:  args.EventOrder,
		Namespace:   args.Namespace,
		Prompt:      args.Prompt,
		Metadata:    args.Metadata,
		Created:     now,
		Started:     args.Started,
		Ended:       args.Ended,
		Flagged:     args.Flagged,
		Hidden:      args.Hidden,
		Model:       args.Model,
		AgentID:     args.AgentID,
		OwnerID:     args.OwnerID,
		EpisodeID:   args.EpisodeID,
		Reviews:     args.Reviews,
		Reviewables: args.Reviewables,
		ActionOpts:  args.ActionOpts,
	}
	if ev.Namespace == "" {
		ev.Namespace = "default"
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	if ev.Started == 0 {
		ev.Started = now
	}
	if ev.Ended == 0 {
		ev.Ended = now
	}
	for _, opt := range ev.ActionOpts {
		opt.ActionID = ev.ID
	}
	return ev
}

// PostReview applies the at-most-one-review-per-(reviewer, reviewer_type)
// rule in memory. Persistence happens in the aggregate save that follows.
func (e *ActionEvent) PostReview(args ReviewArgs) (*Review, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	for _, review := range e.Reviews {
		if review.Reviewer == args.Reviewer && review.ReviewerType == args.ReviewerType {
			review.Apply(args)
			return review, nil
		}
	}
	review, err := NewReview(args, ResourceAction, e.ID)
	if err != nil {
		return nil, err
	}
	e.Reviews = append(e.Reviews, review)
	return review, nil
}

// PostReviewable resolves the type tag through the registry, constructs
// the variant with this event as owner, and appends it.
func (e *ActionEvent) PostReviewable(typeTag string, payloadJSON json.RawMessage) (*Reviewable, error) {
	payload, err := DecodeReviewablePayload(typeTag, payloadJSON)
	if err != nil {
		return nil, err
	}
	reviewable, err := NewReviewable(payload, ResourceAction, e.ID)
	if err != nil {
		return nil, err
	}
	e.Reviewables = append(e.Reviewables, reviewable)
	return reviewable, nil
}

// AddActionOpt appends a candidate action, forcing its parent link.
func (e *ActionEvent) AddActionOpt(action Action, prompt *PromptRef, ratings []*Rating) *ActionOpt {
	opt := NewActionOpt(action, prompt, ratings, e.ID)
	e.ActionOpts = append(e.ActionOpts, opt)
	return opt
}

// AdoptChildren back-fills resource pointers on any child whose owner was
// not yet known at construction. Every save path runs this first so the
// "resource_id == event id after save" invariant holds.
func (e *ActionEvent) AdoptChildren() {
	for _, review := range e.Reviews {
		if review.ResourceID == "" {
			review.ResourceID = e.ID
		}
		if review.ResourceType == "" {
			review.ResourceType = ResourceAction
		}
	}
	for _, reviewable := range e.Reviewables {
		if reviewable.ResourceID == "" {
			reviewable.ResourceID = e.ID
		}
		if reviewable.ResourceType == "" {
			reviewable.ResourceType = ResourceAction
		}
		for _, review := range reviewable.Reviews {
			if review.ResourceID == "" {
				review.ResourceID = reviewable.ID
			}
			if review.ResourceType == "" {
				review.ResourceType = ResourceReviewable
			}
		}
	}
	for _, opt := range e.ActionOpts {
		opt.ActionID = e.ID
		for _, rating := range opt.Ratings {
			if rating.ResourceID == "" {
				rating.ResourceID = opt.ID
			}
			if rating.ResourceType == "" {
				rating.ResourceType = ResourceActionOpt
			}
		}
	}
}

// V1ActionEvent is the versioned wire form of an ActionEvent.
type V1ActionEvent struct {
	ID          string          `json:"id"`
	State       EnvState        `json:"state"`
	Action      Action          `json:"action"`
	Result      any             `json:"result"`
	EndState    *EnvState       `json:"end_state,omitempty"`
	EventOrder  *int            `json:"event_order,omitempty"`
	Tool        ToolRef         `json:"tool"`
	Namespace   string          `json:"namespace"`
	Prompt      *PromptRef      `json:"prompt,omitempty"`
	Reviews     []V1Review      `json:"reviews"`
	Reviewables []V1Reviewable  `json:"reviewables"`
	Flagged     bool            `json:"flagged"`
	Model       *string         `json:"model,omitempty"`
	ActionOpts  []V1ActionOpt   `json:"action_opts"`
	AgentID     *string         `json:"agent_id,omitempty"`
	Created     float64         `json:"created"`
	Started     float64         `json:"started"`
	Ended       float64         `json:"ended"`
	Metadata    map[string]any  `json:"metadata"`
	EpisodeID   *string         `json:"episode_id,omitempty"`
	Hidden      bool            `json:"hidden"`
}

func (e *ActionEvent) ToV1() (V1ActionEvent, error) {
	reviews := make([]V1Review, 0, len(e.Reviews))
	for _, review := range e.Reviews {
		reviews = append(reviews, review.ToV1())
	}
	reviewables := make([]V1Reviewable, 0, len(e.Reviewables))
	for _, reviewable := range e.Reviewables {
		v1, err := reviewable.ToV1()
		if err != nil {
			return V1ActionEvent{}, err
		}
		reviewables = append(reviewables, v1)
	}
	opts := make([]V1ActionOpt, 0, len(e.ActionOpts))
	for _, opt := range e.ActionOpts {
		opts = append(opts, opt.ToV1())
	}
	return V1ActionEvent{
		ID:          e.ID,
		State:       e.State,
		Action:      e.Action,
		Result:      e.Result,
		EndState:    e.EndState,
		EventOrder:  e.EventOrder,
		Tool:        e.Tool,
		Namespace:   e.Namespace,
		Prompt:      e.Prompt,
		Reviews:     reviews,
		Reviewables: reviewables,
		Flagged:     e.Flagged,
		Model:       e.Model,
		ActionOpts:  opts,
		AgentID:     e.AgentID,
		Created:     e.Created,
		Started:     e.Started,
		Ended:       e.Ended,
		Metadata:    e.Metadata,
		EpisodeID:   e.EpisodeID,
		Hidden:      e.Hidden,
	}, nil
}

// ActionEventFromV1 rebuilds a fully-formed event from the wire. The
// returned event carries Version zero: a subsequent save treats it as new
// unless the caller loads the persisted version first.
func ActionEventFromV1(v1 V1ActionEvent, ownerID *string) (*ActionEvent, error) {
	reviews := make([]*Review, 0, len(v1.Reviews))
	for _, rv1 := range v1.Reviews {
		reviews = append(reviews, ReviewFromV1(rv1))
	}
	reviewables := make([]*Reviewable, 0, len(v1.Reviewables))
	for _, rvv1 := range v1.Reviewables {
		reviewable, err := ReviewableFromV1(rvv1)
		if err != nil {
			return nil, err
		}
		reviewables = append(reviewables, reviewable)
	}
	opts := make([]*ActionOpt, 0, len(v1.ActionOpts))
	for _, ov1 := range v1.ActionOpts {
		opts = append(opts, ActionOptFromV1(ov1))
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
	metadata := v1.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &ActionEvent{
		ID:          v1.ID,
		State:       v1.State,
		Action:      v1.Action,
		Result:      v1.Result,
		EndState:    v1.EndState,
		EventOrder:  v1.EventOrder,
		Tool:        v1.Tool,
		Namespace:   v1.Namespace,
		Prompt:      v1.Prompt,
		Metadata:    metadata,
		Created:     v1.Created,
		Started:     v1.Started,
		Ended:       v1.Ended,
		Flagged:     v1.Flagged,
		Hidden:      v1.Hidden,
		Model:       v1.Model,
		AgentID:     v1.AgentID,
		OwnerID:     ownerID,
		EpisodeID:   v1.EpisodeID,
		Reviews:     reviews,
		Reviewables: reviewables,
		ActionOpts:  opts,
	}, nil
}
