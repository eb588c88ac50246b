package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"companion-bot/backend/internal/pipeline"
	apperrors "companion-bot/backend/pkg/errors"
	"companion-bot/backend/pkg/logger"
)

// MessageController exposes the conversation pipeline over HTTP.
type MessageController struct {
	pipeline *pipeline.Pipeline
	log      *logger.Logger
}

func NewMessageController(p *pipeline.Pipeline, log *logger.Logger) *MessageController {
	return &MessageController{pipeline: p, log: log.WithComponent("api")}
}

// RegisterRoutes mounts the message endpoints.
func (c *MessageController) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/message", c.ProcessMessage)
	router.POST("/api/webhook/sms", c.SMSWebhook)
	router.GET("/api/stats/:user_id", c.GetStats)
	router.GET("/api/history/:user_id", c.GetHistory)
	router.POST("/api/incidents/:id/resolve", c.ResolveIncident)
	router.POST("/api/test-routing", c.TestRouting)
}

type processMessageRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// ProcessMessage handles one inbound conversation turn.
func (c *MessageController) ProcessMessage(ctx *gin.Context) {
	var req processMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "user_id and text are required"))
		return
	}

	result, err := c.pipeline.ProcessInbound(ctx.Request.Context(), req.UserID, req.Text, time.Now())
	if err != nil {
		ctx.Error(err)
		return
	}

	status := http.StatusOK
	if result.Limited {
		status = http.StatusTooManyRequests
	}
	ctx.JSON(status, result)
}

// SMSWebhook accepts inbound SMS in gateway form-post shape ("From" and
// "Body" fields) and replies with the message text as plain text, which
// most SMS bridges relay back to the sender.
func (c *MessageController) SMSWebhook(ctx *gin.Context) {
	from := ctx.PostForm("From")
	body := ctx.PostForm("Body")
	if from == "" || body == "" {
		ctx.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "From and Body are required"))
		return
	}

	result, err := c.pipeline.ProcessInbound(ctx.Request.Context(), from, body, time.Now())
	if err != nil {
		c.log.LogError(err, "SMS processing failed", "from", from)
		ctx.String(http.StatusOK, "Sorry, something went wrong on our side. Please try again in a moment.")
		return
	}
	ctx.String(http.StatusOK, result.ReplyText)
}

// GetStats returns the read-only user summary.
func (c *MessageController) GetStats(ctx *gin.Context) {
	stats, err := c.pipeline.Stats(ctx.Param("user_id"), time.Now())
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

// ResolveIncident marks a crisis incident as reviewed and resolved.
func (c *MessageController) ResolveIncident(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		ctx.Error(apperrors.NewBadRequestError("INVALID_ID", "incident id must be a positive integer"))
		return
	}
	if err := c.pipeline.ResolveIncident(uint(id)); err != nil {
		ctx.Error(err)
		return
	}
	c.log.Info("Crisis incident resolved", "incident_id", id)
	ctx.JSON(http.StatusOK, gin.H{"resolved": true})
}

// GetHistory returns the user's recent turns, oldest first.
func (c *MessageController) GetHistory(ctx *gin.Context) {
	limit := 10
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			ctx.Error(apperrors.NewBadRequestError("INVALID_LIMIT", "limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	history, err := c.pipeline.History(ctx.Param("user_id"), limit)
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"messages": history, "count": len(history)})
}

type testRoutingRequest struct {
	Text string `json:"text" binding:"required"`
}

// TestRouting returns the routing decision for a message without running
// the pipeline. Used by observability tooling.
func (c *MessageController) TestRouting(ctx *gin.Context) {
	var req testRoutingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "text is required"))
		return
	}
	ctx.JSON(http.StatusOK, c.pipeline.TestRouting(ctx.Request.Context(), req.Text))
}
