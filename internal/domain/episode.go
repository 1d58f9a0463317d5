package domain

import (
	"sort"
)

// Episode is an ordered run of ActionEvents sharing a run context. Order
// follows event creation time, not slice position; loads re-sort.
type Episode struct {
	ID         string
	Actions    []*ActionEvent
	Tags       []string
	Labels     map[string]any
	Device     *string
	DeviceType *string
	OwnerID    *string
	Created    float64
	Updated    float64
}

// EpisodeArgs carries the construction-time fields of an Episode.
type EpisodeArgs struct {
	Actions    []*ActionEvent
	Tags       []string
	Labels     map[string]any
	Device     *string
	DeviceType *string
	OwnerID    *string
}

func NewEpisode(args EpisodeArgs) *Episode {
	now := Now()
	ep := &Episode{
		ID:         NewID(),
		Actions:    args.Actions,
		Tags:       args.Tags,
		Labels:     args.Labels,
		Device:     args.Device,
		DeviceType: args.DeviceType,
		OwnerID:    args.OwnerID,
		Created:    now,
		Updated:    now,
	}
	if ep.Tags == nil {
		ep.Tags = []string{}
	}
	if ep.Labels == nil {
		ep.Labels = map[string]any{}
	}
	for _, action := range ep.Actions {
		action.EpisodeID = ptr(ep.ID)
	}
	return ep
}

// Append claims the event for this episode and keeps the in-memory list
// in creation order.
func (ep *Episode) Append(event *ActionEvent) {
	event.EpisodeID = ptr(ep.ID)
	ep.Actions = append(ep.Actions, event)
	ep.Updated = Now()
}

// SortActions restores creation-time order after a load that does not
// guarantee it.
func (ep *Episode) SortActions() {
	sort.SliceStable(ep.Actions, func(i, j int) bool {
		return ep.Actions[i].Created < ep.Actions[j].Created
	})
}

// Event returns the in-memory event with the given id.
func (ep *Episode) Event(id string) (*ActionEvent, error) {
	for _, action := range ep.Actions {
		if action.ID == id {
			return action, nil
		}
	}
	return nil, NotFoundError("action event " + id + " not in episode " + ep.ID)
}

// EventIndex returns the slice index of the event with the given id, the
// boundary used by approve_prior/fail_prior.
func (ep *Episode) EventIndex(id string) (int, error) {
	for i, action := range ep.Actions {
		if action.ID == id {
			return i, nil
		}
	}
	return -1, NotFoundError("action event " + id + " not in episode " + ep.ID)
}

// V1Episode is the versioned wire form of an Episode.
type V1Episode struct {
	ID         string          `json:"id"`
	Actions    []V1ActionEvent `json:"actions"`
	Tags       []string        `json:"tags"`
	Labels     map[string]any  `json:"labels"`
	Device     *string         `json:"device,omitempty"`
	DeviceType *string         `json:"device_type,omitempty"`
	Created    float64         `json:"created"`
	Updated    float64         `json:"updated"`
}

func (ep *Episode) ToV1() (V1Episode, error) {
	actions := make([]V1ActionEvent, 0, len(ep.Actions))
	for _, action := range ep.Actions {
		v1, err := action.ToV1()
		if err != nil {
			return V1Episode{}, err
		}
		actions = append(actions, v1)
	}
	return V1Episode{
		ID:         ep.ID,
		Actions:    actions,
		Tags:       ep.Tags,
		Labels:     ep.Labels,
		Device:     ep.Device,
		DeviceType: ep.DeviceType,
		Created:    ep.Created,
		Updated:    ep.Updated,
	}, nil
}

// EpisodeFromV1 rebuilds an episode and re-parents its actions.
func EpisodeFromV1(v1 V1Episode, ownerID *string) (*Episode, error) {
	now := Now()
	ep := &Episode{
		ID:         v1.ID,
		Tags:       v1.Tags,
		Labels:     v1.Labels,
		Device:     v1.Device,
		DeviceType: v1.DeviceType,
		OwnerID:    ownerID,
		Created:    now,
		Updated:    now,
	}
	if ep.ID == "" {
		ep.ID = NewID()
	}
	if ep.Tags == nil {
		ep.Tags = []string{}
	}
	if ep.Labels == nil {
		ep.Labels = map[string]any{}
	}
	for _, av1 := range v1.Actions {
		action, err := ActionEventFromV1(av1, ownerID)
		if err != nil {
			return nil, err
		}
		action.EpisodeID = ptr(ep.ID)
		ep.Actions = append(ep.Actions, action)
	}
	return ep, nil
}
