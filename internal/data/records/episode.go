package records

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/agentgym/episodic-backend/internal/domain"
)

// Episode is the persisted row behind domain.Episode. Actions reference
// it through action_events.episode_id with cascade delete.
type Episode struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	Tags       datatypes.JSON `json:"tags"`
	Labels     datatypes.JSON `json:"labels"`
	Device     *string        `json:"device,omitempty"`
	DeviceType *string        `json:"device_type,omitempty"`
	OwnerID    *string        `gorm:"index" json:"owner_id,omitempty"`
	Created    float64        `gorm:"not null;index" json:"created"`
	Updated    float64        `gorm:"not null" json:"updated"`

	Actions []*ActionEvent `gorm:"foreignKey:EpisodeID;references:ID;constraint:OnDelete:CASCADE" json:"actions"`
}

func (Episode) TableName() string { return "episodes" }

func FromEpisode(ep *domain.Episode) (*Episode, error) {
	tags, err := json.Marshal(ep.Tags)
	if err != nil {
		return nil, err
	}
	labels, err := json.Marshal(ep.Labels)
	if err != nil {
		return nil, err
	}
	return &Episode{
		ID:         ep.ID,
		Tags:       datatypes.JSON(tags),
		Labels:     datatypes.JSON(labels),
		Device:     ep.Device,
		DeviceType: ep.DeviceType,
		OwnerID:    ep.OwnerID,
		Created:    ep.Created,
		Updated:    ep.Updated,
	}, nil
}

// ToDomain hydrates the episode scalar fields only; callers attach the
// action list separately and re-sort by creation time.
func (r *Episode) ToDomain() (*domain.Episode, error) {
	tags := []string{}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &tags); err != nil {
			return nil, err
		}
	}
	labels := map[string]any{}
	if len(r.Labels) > 0 {
		if err := json.Unmarshal(r.Labels, &labels); err != nil {
			return nil, err
		}
	}
	return &domain.Episode{
		ID:         r.ID,
		Tags:       tags,
		Labels:     labels,
		Device:     r.Device,
		DeviceType: r.DeviceType,
		OwnerID:    r.OwnerID,
		Created:    r.Created,
		Updated:    r.Updated,
	}, nil
}
