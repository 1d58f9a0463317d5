package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ReviewablePayload is the variant-specific body of a Reviewable. Each
// variant is a plain data struct; dispatch happens through the tag
// registry, not inheritance.
type ReviewablePayload interface {
	TypeTag() string
	Validate() error
}

// Reviewable is a secondary review target attached to a resource, e.g. a
// bounding box awaiting correction. The payload determines its type tag.
type Reviewable struct {
	ID           string
	ResourceType ResourceType
	ResourceID   string
	Payload      ReviewablePayload
	Reviews      []*Review
	Created      float64
	Updated      *float64
}

// NewReviewable constructs a reviewable owned by the given resource.
// The payload is validated eagerly so malformed variants never persist.
func NewReviewable(payload ReviewablePayload, resourceType ResourceType, resourceID string) (*Reviewable, error) {
	if payload == nil {
		return nil, ValidationError("reviewable requires a payload")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &Reviewable{
		ID:           NewID(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Payload:      payload,
		Created:      Now(),
	}, nil
}

// PostReview appends or updates the verdict for (reviewer, reviewer_type)
// on this reviewable, mirroring the dedup rule on ActionEvent.
func (rv *Reviewable) PostReview(args ReviewArgs) (*Review, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	for _, review := range rv.Reviews {
		if review.Reviewer == args.Reviewer && review.ReviewerType == args.ReviewerType {
			review.Apply(args)
			return review, nil
		}
	}
	review, err := NewReview(args, ResourceReviewable, rv.ID)
	if err != nil {
		return nil, err
	}
	rv.Reviews = append(rv.Reviews, review)
	return review, nil
}

// --- type registry ---

type reviewableCodec struct {
	decode func([]byte) (ReviewablePayload, error)
}

var (
	registryMu      sync.RWMutex
	payloadRegistry = map[string]reviewableCodec{}
)

// RegisterReviewable adds a payload variant under its string tag. New
// variants register themselves without touching existing ones. Duplicate
// registration panics: tags are a closed, explicit namespace.
func RegisterReviewable(tag string, decode func([]byte) (ReviewablePayload, error)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := payloadRegistry[tag]; exists {
		panic(fmt.Sprintf("reviewable type %q registered twice", tag))
	}
	payloadRegistry[tag] = reviewableCodec{decode: decode}
}

// DecodeReviewablePayload resolves a stored type tag back to its concrete
// variant. Unknown tags fail with a validation error.
func DecodeReviewablePayload(tag string, raw []byte) (ReviewablePayload, error) {
	registryMu.RLock()
	codec, ok := payloadRegistry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, ValidationError("invalid reviewable type: " + tag)
	}
	payload, err := codec.decode(raw)
	if err != nil {
		return nil, ValidationError(fmt.Sprintf("decode reviewable %q: %v", tag, err))
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// RegisteredReviewableTypes lists known tags, sorted, for diagnostics.
func RegisteredReviewableTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(payloadRegistry))
	for tag := range payloadRegistry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// --- built-in variants ---

const (
	TypeBoundingBoxReviewable = "BoundingBoxReviewable"
	TypeAnnotationReviewable  = "AnnotationReviewable"
)

// BoundingBox is four integer pixel edges. Edge ordering (x0<x1, y0<y1)
// is a hard invariant checked wherever a box enters the system.
type BoundingBox struct {
	X0 int `json:"x0"`
	X1 int `json:"x1"`
	Y0 int `json:"y0"`
	Y1 int `json:"y1"`
}

func (b BoundingBox) Validate() error {
	if b.X0 >= b.X1 || b.Y0 >= b.Y1 {
		return InvariantError(fmt.Sprintf("bounding box edges out of order: x0=%d x1=%d y0=%d y1=%d", b.X0, b.X1, b.Y0, b.Y1))
	}
	return nil
}

// BoundingBoxPayload marks a region of an image needing review.
type BoundingBoxPayload struct {
	Img    string      `json:"img"`
	Target string      `json:"target"`
	BBox   BoundingBox `json:"bbox"`
}

func (BoundingBoxPayload) TypeTag() string { return TypeBoundingBoxReviewable }

func (p BoundingBoxPayload) Validate() error {
	if p.Img == "" {
		return ValidationError("bounding box reviewable requires an image reference")
	}
	return p.BBox.Validate()
}

// AnnotationPayload is a free-form key/value annotation with provenance.
type AnnotationPayload struct {
	Key           string  `json:"key"`
	Value         string  `json:"value"`
	Annotator     *string `json:"annotator,omitempty"`
	AnnotatorType string  `json:"annotator_type"`
}

func (AnnotationPayload) TypeTag() string { return TypeAnnotationReviewable }

func (p AnnotationPayload) Validate() error {
	if p.Key == "" {
		return ValidationError("annotation reviewable requires a key")
	}
	return nil
}

func init() {
	RegisterReviewable(TypeBoundingBoxReviewable, func(raw []byte) (ReviewablePayload, error) {
		var p BoundingBoxPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	})
	RegisterReviewable(TypeAnnotationReviewable, func(raw []byte) (ReviewablePayload, error) {
		var p AnnotationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.AnnotatorType == "" {
			p.AnnotatorType = string(ReviewerAgent)
		}
		return p, nil
	})
}

// V1Reviewable is the versioned wire form: the payload travels as raw
// JSON alongside its type tag so any registered variant round-trips.
type V1Reviewable struct {
	Type         string          `json:"type"`
	ID           string          `json:"id"`
	Reviewable   json.RawMessage `json:"reviewable"`
	Reviews      []V1Review      `json:"reviews"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Created      float64         `json:"created"`
	Updated      *float64        `json:"updated,omitempty"`
}

func (rv *Reviewable) ToV1() (V1Reviewable, error) {
	raw, err := json.Marshal(rv.Payload)
	if err != nil {
		return V1Reviewable{}, fmt.Errorf("encode reviewable payload: %w", err)
	}
	reviews := make([]V1Review, 0, len(rv.Reviews))
	for _, review := range rv.Reviews {
		reviews = append(reviews, review.ToV1())
	}
	return V1Reviewable{
		Type:         rv.Payload.TypeTag(),
		ID:           rv.ID,
		Reviewable:   raw,
		Reviews:      reviews,
		ResourceType: string(rv.ResourceType),
		ResourceID:   rv.ResourceID,
		Created:      rv.Created,
		Updated:      rv.Updated,
	}, nil
}

// ReviewableFromV1 resolves the tag through the registry and rebuilds the
// full value, nested reviews included.
func ReviewableFromV1(v1 V1Reviewable) (*Reviewable, error) {
	payload, err := DecodeReviewablePayload(v1.Type, v1.Reviewable)
	if err != nil {
		return nil, err
	}
	reviews := make([]*Review, 0, len(v1.Reviews))
	for _, rv1 := range v1.Reviews {
		reviews = append(reviews, ReviewFromV1(rv1))
	}
	if len(reviews) == 0 {
		reviews = nil
	}
	return &Reviewable{
		ID:           v1.ID,
		ResourceType: ResourceType(v1.ResourceType),
		ResourceID:   v1.ResourceID,
		Payload:      payload,
		Reviews:      reviews,
		Created:      v1.Created,
		Updated:      v1.Updated,
	}, nil
}
