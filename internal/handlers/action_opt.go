package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentgym/episodic-backend/internal/data/aggregates"
	"github.com/agentgym/episodic-backend/internal/data/repos"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type ActionOptHandler struct {
	log    *logger.Logger
	opts   repos.ActionOptRepo
	events *aggregates.ActionEvents
}

func NewActionOptHandler(log *logger.Logger, opts repos.ActionOptRepo, events *aggregates.ActionEvents) *ActionOptHandler {
	return &ActionOptHandler{
		log:    log.With("handler", "ActionOptHandler"),
		opts:   opts,
		events: events,
	}
}

// GET /api/action-opts/:id
func (h *ActionOptHandler) Get(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rec, err := h.opts.GetByID(dbc, c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	opt, err := rec.ToDomain()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, opt.ToV1())
}

// GET /api/action-opts
// Filter: action_id (required).
func (h *ActionOptHandler) List(c *gin.Context) {
	actionID := c.Query("action_id")
	if actionID == "" {
		RespondDomainError(c, domain.ValidationError("action_id is required"))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	recs, err := h.opts.ListByAction(dbc, actionID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out := make([]domain.V1ActionOpt, 0, len(recs))
	for _, rec := range recs {
		opt, err := rec.ToDomain()
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		out = append(out, opt.ToV1())
	}
	RespondOK(c, out)
}

type ratingRequest struct {
	Reviewer     string  `json:"reviewer"`
	ReviewerType string  `json:"reviewer_type"`
	Rating       int     `json:"rating"`
	UpperBound   int     `json:"upper_bound,omitempty"`
	LowerBound   int     `json:"lower_bound,omitempty"`
	Reason       *string `json:"reason,omitempty"`
}

// POST /api/action-opts/:id/ratings
// Posts (or updates) the caller's rating on the candidate action. The
// write goes through the owning event's save protocol.
func (h *ActionOptHandler) PostRating(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rec, err := h.opts.GetByID(dbc, c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	ev, err := h.events.Get(c.Request.Context(), rec.ActionID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	var opt *domain.ActionOpt
	for _, candidate := range ev.ActionOpts {
		if candidate.ID == rec.ID {
			opt = candidate
			break
		}
	}
	if opt == nil {
		RespondDomainError(c, domain.NotFoundError("action opt "+rec.ID+" not attached to event "+rec.ActionID))
		return
	}
	rating, err := opt.PostRating(domain.RatingArgs{
		Reviewer:     req.Reviewer,
		ReviewerType: domain.ReviewerType(req.ReviewerType),
		Rating:       req.Rating,
		UpperBound:   req.UpperBound,
		LowerBound:   req.LowerBound,
		Reason:       req.Reason,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	if err := h.events.Save(c.Request.Context(), ev); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, rating.ToV1())
}
