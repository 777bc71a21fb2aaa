package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gigmarket/pkg/metrics"
	"gigmarket/pkg/otel"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	postingHandler *PostingHandler,
	proposalHandler *ProposalHandler,
	engagementHandler *EngagementHandler,
	milestoneHandler *MilestoneHandler,
	chatHandler *ChatHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(otel.GinMiddleware())
	r.Use(TraceMiddleware())
	r.Use(metricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public browse surface
	r.GET("/postings", postingHandler.ListOpen)
	r.GET("/postings/:id", postingHandler.Get)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/postings", postingHandler.Create)
		auth.POST("/postings/:id/publish", postingHandler.Publish)
		auth.POST("/postings/:id/complete", postingHandler.Complete)
		auth.POST("/postings/:id/reopen", postingHandler.Reopen)
		auth.DELETE("/postings/:id", postingHandler.Delete)
		auth.GET("/my/postings", postingHandler.ListMine)

		auth.POST("/postings/:id/proposals", proposalHandler.Submit)
		auth.GET("/postings/:id/proposals", proposalHandler.ListByPosting)
		auth.POST("/proposals/:id/deny", proposalHandler.Deny)
		auth.GET("/my/proposals", proposalHandler.ListMine)

		auth.POST("/proposals/:id/kickoff", engagementHandler.KickOff)
		auth.GET("/postings/:id/engagement", engagementHandler.GetByPosting)
		auth.GET("/engagements", engagementHandler.ListMine)

		auth.POST("/engagements/:id/milestones", milestoneHandler.Add)
		auth.GET("/engagements/:id/milestones", milestoneHandler.ListByEngagement)
		auth.POST("/milestones/:id/toggle", milestoneHandler.ToggleCompleted)
		auth.POST("/milestones/:id/approve", milestoneHandler.Approve)
		auth.POST("/milestones/:id/deny", milestoneHandler.Deny)
		auth.POST("/milestones/:id/deliverable", milestoneHandler.AttachDeliverable)

		auth.POST("/conversations", chatHandler.GetOrCreate)
		auth.GET("/conversations", chatHandler.List)
		auth.POST("/conversations/:id/messages", chatHandler.SendMessage)
		auth.GET("/conversations/:id/messages", chatHandler.ListMessages)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequestDuration(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
