package domain

// ActionOpt is a candidate action that was considered but not necessarily
// taken. It hangs off an ActionEvent and owns the Ratings scored against it.
type ActionOpt struct {
	ID       string
	Action   Action
	Prompt   *PromptRef
	Ratings  []*Rating
	ActionID string
	Created  float64
	Updated  float64
}

func NewActionOpt(action Action, prompt *PromptRef, ratings []*Rating, actionID string) *ActionOpt {
	now := Now()
	opt := &ActionOpt{
		ID:       NewID(),
		Action:   action,
		Prompt:   prompt,
		Ratings:  ratings,
		ActionID: actionID,
		Created:  now,
		Updated:  now,
	}
	for _, rating := range opt.Ratings {
		if rating.ResourceID == "" {
			rating.ResourceID = opt.ID
		}
		if rating.ResourceType == "" {
			rating.ResourceType = ResourceActionOpt
		}
	}
	return opt
}

// PostRating attaches a freshly validated rating to this candidate.
func (o *ActionOpt) PostRating(args RatingArgs) (*Rating, error) {
	rating, err := NewRating(args, ResourceActionOpt, o.ID)
	if err != nil {
		return nil, err
	}
	o.Ratings = append(o.Ratings, rating)
	o.Updated = Now()
	return rating, nil
}

// V1ActionOpt is the versioned wire form of an ActionOpt.
type V1ActionOpt struct {
	ID       string     `json:"id"`
	Action   Action     `json:"action"`
	Prompt   *PromptRef `json:"prompt,omitempty"`
	Ratings  []V1Rating `json:"ratings"`
	ActionID *string    `json:"action_id,omitempty"`
	Created  float64    `json:"created"`
	Updated  float64    `json:"updated"`
}

func (o *ActionOpt) ToV1() V1ActionOpt {
	ratings := make([]V1Rating, 0, len(o.Ratings))
	for _, rating := range o.Ratings {
		ratings = append(ratings, rating.ToV1())
	}
	v1 := V1ActionOpt{
		ID:      o.ID,
		Action:  o.Action,
		Prompt:  o.Prompt,
		Ratings: ratings,
		Created: o.Created,
		Updated: o.Updated,
	}
	if o.ActionID != "" {
		v1.ActionID = ptr(o.ActionID)
	}
	return v1
}

func ActionOptFromV1(v1 V1ActionOpt) *ActionOpt {
	ratings := make([]*Rating, 0, len(v1.Ratings))
	for _, rv1 := range v1.Ratings {
		ratings = append(ratings, RatingFromV1(rv1))
	}
	if len(ratings) == 0 {
		ratings = nil
	}
	opt := &ActionOpt{
		ID:      v1.ID,
		Action:  v1.Action,
		Prompt:  v1.Prompt,
		Ratings: ratings,
		Created: v1.Created,
		Updated: v1.Updated,
	}
	if v1.ActionID != nil {
		opt.ActionID = *v1.ActionID
	}
	return opt
}
