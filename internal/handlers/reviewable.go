package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/data/repos"
	"github.com/agentgym/episodic-backend/internal/domain"
	"github.com/agentgym/episodic-backend/internal/platform/dbctx"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type ReviewableHandler struct {
	log         *logger.Logger
	reviewables repos.ReviewableRepo
}

func NewReviewableHandler(log *logger.Logger, reviewables repos.ReviewableRepo) *ReviewableHandler {
	return &ReviewableHandler{
		log:         log.With("handler", "ReviewableHandler"),
		reviewables: reviewables,
	}
}

// GET /api/reviewables/types
// Lists the registered reviewable type tags.
func (h *ReviewableHandler) Types(c *gin.Context) {
	RespondOK(c, gin.H{"types": domain.RegisteredReviewableTypes()})
}

// GET /api/reviewables/:id
func (h *ReviewableHandler) Get(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rec, err := h.reviewables.GetByID(dbc, c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	reviewable, err := rec.ToDomain()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out, err := reviewable.ToV1()
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, out)
}

// GET /api/reviewables
// Filters: resource_type + resource_id, or type.
func (h *ReviewableHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	resourceType := c.Query("resource_type")
	resourceID := c.Query("resource_id")
	typeTag := c.Query("type")

	var (
		recs []*records.Reviewable
		err  error
	)
	switch {
	case resourceType != "" && resourceID != "":
		recs, err = h.reviewables.ListByResource(dbc, resourceType, resourceID)
	case typeTag != "":
		recs, err = h.reviewables.ListByType(dbc, typeTag)
	default:
		RespondDomainError(c, domain.ValidationError("resource_type+resource_id or type is required"))
		return
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	out := make([]domain.V1Reviewable, 0, len(recs))
	for _, rec := range recs {
		reviewable, err := rec.ToDomain()
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		v1, err := reviewable.ToV1()
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		out = append(out, v1)
	}
	RespondOK(c, out)
}
