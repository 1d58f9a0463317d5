package server

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/agentgym/episodic-backend/internal/handlers"
	"github.com/agentgym/episodic-backend/internal/observability"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log                *logger.Logger
	Metrics            *observability.Metrics
	AllowOrigins       []string
	EpisodeHandler     *handlers.EpisodeHandler
	ActionEventHandler *handlers.ActionEventHandler
	ReviewHandler      *handlers.ReviewHandler
	ReviewableHandler  *handlers.ReviewableHandler
	ActionOptHandler   *handlers.ActionOptHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("episodic-backend"))
	if cfg.Metrics != nil {
		router.Use(metricsMiddleware(cfg.Metrics))
	}

	router.GET("/healthcheck", handlers.HealthCheck)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := router.Group("/api")
	{
		// Episodes
		api.POST("/episodes", cfg.EpisodeHandler.Create)
		api.GET("/episodes", cfg.EpisodeHandler.List)
		api.GET("/episodes/:id", cfg.EpisodeHandler.Get)
		api.DELETE("/episodes/:id", cfg.EpisodeHandler.Delete)
		api.POST("/episodes/:id/actions", cfg.EpisodeHandler.RecordEvent)
		api.DELETE("/episodes/:id/actions", cfg.EpisodeHandler.DeleteAllActions)
		api.DELETE("/episodes/:id/actions/:actionID", cfg.EpisodeHandler.DeleteAction)
		api.POST("/episodes/:id/approve", cfg.EpisodeHandler.ApproveAll)
		api.POST("/episodes/:id/fail", cfg.EpisodeHandler.FailAll)
		api.POST("/episodes/:id/actions/:actionID/approve", cfg.EpisodeHandler.ApproveOne)
		api.POST("/episodes/:id/actions/:actionID/fail", cfg.EpisodeHandler.FailOne)
		api.POST("/episodes/:id/actions/:actionID/approve-prior", cfg.EpisodeHandler.ApprovePrior)
		api.POST("/episodes/:id/actions/:actionID/fail-prior", cfg.EpisodeHandler.FailPrior)

		// Action events
		api.POST("/actions", cfg.ActionEventHandler.Create)
		api.GET("/actions", cfg.ActionEventHandler.List)
		api.GET("/actions/:id", cfg.ActionEventHandler.Get)
		api.DELETE("/actions/:id", cfg.ActionEventHandler.Delete)
		api.POST("/actions/:id/reviews", cfg.ActionEventHandler.PostReview)
		api.POST("/actions/:id/reviewables", cfg.ActionEventHandler.PostReviewable)
		api.POST("/actions/:id/action-opts", cfg.ActionEventHandler.AddActionOpt)

		// Reviews
		api.GET("/reviews", cfg.ReviewHandler.List)
		api.GET("/reviews/:id", cfg.ReviewHandler.Get)

		// Reviewables
		api.GET("/reviewables", cfg.ReviewableHandler.List)
		api.GET("/reviewables/types", cfg.ReviewableHandler.Types)
		api.GET("/reviewables/:id", cfg.ReviewableHandler.Get)

		// Action opts
		api.GET("/action-opts", cfg.ActionOptHandler.List)
		api.GET("/action-opts/:id", cfg.ActionOptHandler.Get)
		api.POST("/action-opts/:id/ratings", cfg.ActionOptHandler.PostRating)
	}

	return router
}

func metricsMiddleware(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
