package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/data/repos"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type ReviewHandler struct {
	log     *logger.Logger
	reviews repos.ReviewRepo
}

func NewReviewHandler(log *logger.Logger, reviews repos.ReviewRepo) *ReviewHandler {
	return &ReviewHandler{
		log:     log.With("handler", "ReviewHandler"),
		reviews: reviews,
	}
}

// GET /api/reviews/:id
func (h *ReviewHandler) Get(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rec, err := h.reviews.GetByID(dbc, c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	review, err := rec.ToDomain()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, review.ToV1())
}

// GET /api/reviews
// Filters: resource_type + resource_id, or reviewer.
func (h *ReviewHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	resourceType := c.Query("resource_type")
	resourceID := c.Query("resource_id")
	reviewer := c.Query("reviewer")

	var (
		recs []*records.Review
		err  error
	)
	switch {
	case resourceType != "" && resourceID != "":
		recs, err = h.reviews.ListByResource(dbc, resourceType, resourceID)
	case reviewer != "":
		recs, err = h.reviews.ListByReviewer(dbc, reviewer)
	default:
		RespondDomainError(c, domain.ValidationError("resource_type+resource_id or reviewer is required"))
		return
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out := make([]domain.V1Review, 0, len(recs))
	for _, rec := range recs {
		review, err := rec.ToDomain()
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		out = append(out, review.ToV1())
	}
	RespondOK(c, out)
}
