package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentgym/episodic-backend/internal/data/aggregates"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type EpisodeHandler struct {
	log      *logger.Logger
	episodes *aggregates.Episodes
}

func NewEpisodeHandler(log *logger.Logger, episodes *aggregates.Episodes) *EpisodeHandler {
	return &EpisodeHandler{
		log:      log.With("handler", "EpisodeHandler"),
		episodes: episodes,
	}
}

// POST /api/episodes
func (h *EpisodeHandler) Create(c *gin.Context) {
	var v1 domain.V1Episode
	if err := c.ShouldBindJSON(&v1); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ep, err := domain.EpisodeFromV1(v1, nil)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := h.episodes.Save(c.Request.Context(), ep); err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := ep.ToV1()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, out)
}

// GET /api/episodes/:id
func (h *EpisodeHandler) Get(c *gin.Context) {
	ep, err := h.episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := ep.ToV1()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, out)
}

// GET /api/episodes
// Filters: owner_id, device, device_type, tag.
func (h *EpisodeHandler) List(c *gin.Context) {
	filter := aggregates.EpisodeFilter{
		OwnerID:    queryString(c, "owner_id"),
		Device:     queryString(c, "device"),
		DeviceType: queryString(c, "device_type"),
		Tag:        queryString(c, "tag"),
	}
	episodes, err := h.episodes.Find(c.Request.Context(), filter)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out := make([]domain.V1Episode, 0, len(episodes))
	for _, ep := range episodes {
		v1, err := ep.ToV1()
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		out = append(out, v1)
	}
	RespondOK(c, out)
}

// DELETE /api/episodes/:id
func (h *EpisodeHandler) Delete(c *gin.Context) {
	if err := h.episodes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/episodes/:id/actions
// Records a new action event against the episode.
func (h *EpisodeHandler) RecordEvent(c *gin.Context) {
	var v1 domain.V1ActionEvent
	if err := c.ShouldBindJSON(&v1); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ep, err := h.episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	ev, err := domain.ActionEventFromV1(v1, ep.OwnerID)
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
	if err := h.episodes.RecordEvent(c.Request.Context(), ep, ev); err != nil {
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

// DELETE /api/episodes/:id/actions
func (h *EpisodeHandler) DeleteAllActions(c *gin.Context) {
	ep, err := h.episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := h.episodes.DeleteAllActions(c.Request.Context(), ep); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/episodes/:id/actions/:actionID
func (h *EpisodeHandler) DeleteAction(c *gin.Context) {
	ep, err := h.episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := h.episodes.DeleteAction(c.Request.Context(), ep, c.Param("actionID")); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/episodes/:id/actions/:actionID/approve
func (h *EpisodeHandler) ApproveOne(c *gin.Context) {
	h.reviewOne(c, true)
}

// POST /api/episodes/:id/actions/:actionID/fail
func (h *EpisodeHandler) FailOne(c *gin.Context) {
	h.reviewOne(c, false)
}

func (h *EpisodeHandler) reviewOne(c *gin.Context, approved bool) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ep, err := h.episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	var review *domain.Review
	if approved {
		review, err = h.episodes.ApproveOne(c.Request.Context(), ep, c.Param("actionID"), req.toArgs())
	} else {
		review, err = h.episodes.FailOne(c.Request.Context(), ep, c.Param("actionID"), req.toArgs())
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, review.ToV1())
}

// POST /api/episodes/:id/approve
func (h *EpisodeHandler) ApproveAll(c *gin.Context) {
	h.reviewAll(c, true)
}

// POST /api/episodes/:id/fail
func (h *EpisodeHandler) FailAll(c *gin.Context) {
	h.reviewAll(c, false)
}

func (h *EpisodeHandler) reviewAll(c *gin.Context, approved bool) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ep, err := h.episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	var reviews []*domain.Review
	if approved {
		reviews, err = h.episodes.ApproveAll(c.Request.Context(), ep, req.toArgs(), req.IncludeHidden)
	} else {
		reviews, err = h.episodes.FailAll(c.Request.Context(), ep, req.toArgs(), req.IncludeHidden)
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, toV1Reviews(reviews))
}

// POST /api/episodes/:id/actions/:actionID/approve-prior
func (h *EpisodeHandler) ApprovePrior(c *gin.Context) {
	h.reviewPrior(c, true)
}

// POST /api/episodes/:id/actions/:actionID/fail-prior
func (h *EpisodeHandler) FailPrior(c *gin.Context) {
	h.reviewPrior(c, false)
}

func (h *EpisodeHandler) reviewPrior(c *gin.Context, approved bool) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ep, err := h.episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	var reviews []*domain.Review
	if approved {
		reviews, err = h.episodes.ApprovePrior(c.Request.Context(), ep, c.Param("actionID"), req.toArgs(), req.IncludeHidden)
	} else {
		reviews, err = h.episodes.FailPrior(c.Request.Context(), ep, c.Param("actionID"), req.toArgs(), req.IncludeHidden)
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, toV1Reviews(reviews))
}

func toV1Reviews(reviews []*domain.Review) []domain.V1Review {
	out := make([]domain.V1Review, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, review.ToV1())
	}
	return out
}
