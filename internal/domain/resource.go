package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType identifies what kind of entity a Review, Rating, or
// Reviewable is attached to via its (resource_type, resource_id) pair.
type ResourceType string

const (
	ResourceAction     ResourceType = "action"
	ResourceEpisode    ResourceType = "episode"
	ResourceReviewable ResourceType = "reviewable"
	ResourceActionOpt  ResourceType = "action_opt"
)

// ReviewerType distinguishes human verdicts from agent-generated ones.
type ReviewerType string

const (
	ReviewerHuman ReviewerType = "human"
	ReviewerAgent ReviewerType = "agent"
)

func NewID() string {
	return uuid.NewString()
}

// Now returns seconds since epoch as a float, the temporal unit used on
// every persisted record.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func ptr[T any](v T) *T { return &v }
