package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentgym/episodic-backend/internal/data/aggregates"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/pkg/imgref"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type ActionEventHandler struct {
	log    *logger.Logger
	events *aggregates.ActionEvents
}

func NewActionEventHandler(log *logger.Logger, events *aggregates.ActionEvents) *ActionEventHandler {
	return &ActionEventHandler{
		log:    log.With("handler", "ActionEventHandler"),
		events: events,
	}
}

// POST /api/actions
// Create a standalone action event from its wire form.
func (h *ActionEventHandler) Create(c *gin.Context) {
	var v1 domain.V1ActionEvent
	if err := c.ShouldBindJSON(&v1); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ev, err := domain.ActionEventFromV1(v1, nil)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if ev.ID == "" {
		ev.ID = domain.NewID()
	}
	if ev.Created == 0 {
		ev.Created = domain.Now()
	}
	if err := normalizeStateImages(ev); err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := h.events.Save(c.Request.Context(), ev); err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := ev.ToV1()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, out)
}

// GET /api/actions/:id
func (h *ActionEventHandler) Get(c *gin.Context) {
	ev, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := ev.ToV1()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, out)
}

// GET /api/actions
// Filters: episode_id, namespace, owner_id, agent_id, model, flagged, hidden.
func (h *ActionEventHandler) List(c *gin.Context) {
	filter := aggregates.ActionEventFilter{
		EpisodeID: queryString(c, "episode_id"),
		Namespace: queryString(c, "namespace"),
		OwnerID:   queryString(c, "owner_id"),
		AgentID:   queryString(c, "agent_id"),
		Model:     queryString(c, "model"),
		Flagged:   queryBool(c, "flagged"),
		Hidden:    queryBool(c, "hidden"),
	}
	events, err := h.events.Find(c.Request.Context(), filter)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out := make([]domain.V1ActionEvent, 0, len(events))
	for _, ev := range events {
		v1, err := ev.ToV1()
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		out = append(out, v1)
	}
	RespondOK(c, out)
}

// DELETE /api/actions/:id
func (h *ActionEventHandler) Delete(c *gin.Context) {
	if err := h.events.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reviewRequest struct {
	Reviewer         string          `json:"reviewer"`
	ReviewerType     string          `json:"reviewer_type"`
	Approved         bool            `json:"approved"`
	Reason           *string         `json:"reason,omitempty"`
	ParentID         *string         `json:"parent_id,omitempty"`
	Correction       json.RawMessage `json:"correction,omitempty"`
	CorrectionSchema json.RawMessage `json:"correction_schema,omitempty"`
	IncludeHidden    bool            `json:"include_hidden,omitempty"`
}

func (r reviewRequest) toArgs() domain.ReviewArgs {
	return domain.ReviewArgs{
		Reviewer:         r.Reviewer,
		ReviewerType:     domain.ReviewerType(r.ReviewerType),
		Approved:         r.Approved,
		Reason:           r.Reason,
		ParentID:         r.ParentID,
		Correction:       r.Correction,
		CorrectionSchema: r.CorrectionSchema,
	}
}

// POST /api/actions/:id/reviews
// Posts (or updates) the caller's review on the event.
func (h *ActionEventHandler) PostReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ev, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	review, err := ev.PostReview(req.toArgs())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := h.events.Save(c.Request.Context(), ev); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, review.ToV1())
}

type reviewableRequest struct {
	Type       string          `json:"type"`
	Reviewable json.RawMessage `json:"reviewable"`
}

// POST /api/actions/:id/reviewables
// Attaches a typed reviewable; the type tag resolves through the
// registry.
func (h *ActionEventHandler) PostReviewable(c *gin.Context) {
	var req reviewableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ev, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	reviewable, err := ev.PostReviewable(req.Type, req.Reviewable)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := h.events.Save(c.Request.Context(), ev); err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := reviewable.ToV1()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, out)
}

type actionOptRequest struct {
	Action domain.Action     `json:"action"`
	Prompt *domain.PromptRef `json:"prompt,omitempty"`
}

// POST /api/actions/:id/action-opts
// Attaches a candidate alternative action.
func (h *ActionEventHandler) AddActionOpt(c *gin.Context) {
	var req actionOptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ev, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	opt := ev.AddActionOpt(req.Action, req.Prompt, nil)
	if err := h.events.Save(c.Request.Context(), ev); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, opt.ToV1())
}

// normalizeStateImages canonicalizes every image reference on the
// incoming event's environment states.
func normalizeStateImages(ev *domain.ActionEvent) error {
	for i, img := range ev.State.Images {
		normalized, err := imgref.Normalize(img)
		if err != nil {
			return err
		}
		ev.State.Images[i] = normalized
	}
	if ev.EndState != nil {
		for i, img := range ev.EndState.Images {
			normalized, err := imgref.Normalize(img)
			if err != nil {
				return err
			}
			ev.EndState.Images[i] = normalized
		}
	}
	return nil
}

func queryString(c *gin.Context, key string) *string {
	if v, ok := c.GetQuery(key); ok && v != "" {
		return &v
	}
	return nil
}

func queryBool(c *gin.Context, key string) *bool {
	if v, ok := c.GetQuery(key); ok {
		b := v == "1" || v == "true" || v == "yes"
		return &b
	}
	return nil
}
