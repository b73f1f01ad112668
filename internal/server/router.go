package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/logolab/internal/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	commandUpload      = "/upload"
	commandApprove     = "/approve"
	commandMakeMod     = "/make_mod"
	commandCloseVoting = "/close_voting"

	actionVote = "vote"
)

var (
	errMissingWorkflow = errors.New("workflow service dependency required")
	errMissingVerifier = errors.New("request verifier dependency required")
)

// RequestVerifier checks the authenticity of an inbound platform request.
type RequestVerifier interface {
	Verify(timestamp, signature string, body []byte) error
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	Workflow        *workflow.Service
	Verifier        RequestVerifier
	TimestampHeader string
	SignatureHeader string
	Logger          *zap.Logger
}

// NewHTTPHandler builds the gin router: signed command and interaction
// endpoints plus a read-only API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Workflow == nil {
		return nil, errMissingWorkflow
	}
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &httpHandler{
		workflow:        deps.Workflow,
		verifier:        deps.Verifier,
		timestampHeader: deps.TimestampHeader,
		signatureHeader: deps.SignatureHeader,
		logger:          logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	signed := router.Group("/slack")
	signed.Use(handler.verifyRequest)
	signed.POST("/commands", handler.handleCommand)
	signed.POST("/interactions", handler.handleInteraction)

	api := router.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	api.GET("/submissions", handler.handleListSubmissions)

	return router, nil
}

type httpHandler struct {
	workflow        *workflow.Service
	verifier        RequestVerifier
	timestampHeader string
	signatureHeader string
	logger          *zap.Logger
}

// verifyRequest authenticates the raw body before any form parsing consumes
// it, then restores the body for the downstream handler.
func (h *httpHandler) verifyRequest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	timestamp := c.GetHeader(h.timestampHeader)
	signature := c.GetHeader(h.signatureHeader)
	if err := h.verifier.Verify(timestamp, signature, body); err != nil {
		h.logger.Warn("request signature rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
		return
	}
	c.Next()
}

type commandReply struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

func ephemeral(text string) commandReply {
	return commandReply{ResponseType: "ephemeral", Text: text}
}

func (h *httpHandler) handleCommand(c *gin.Context) {
	command := c.PostForm("command")
	actorID := c.PostForm("user_id")
	displayName := c.PostForm("user_name")
	text := strings.TrimSpace(c.PostForm("text"))

	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ctx := c.Request.Context()
	switch command {
	case commandUpload:
		if text == "" {
			c.JSON(http.StatusOK, ephemeral("Provide a description and image URL: /upload <description> <image_url>"))
			return
		}
		if _, err := h.workflow.Submit(ctx, actorID, displayName, text); err != nil {
			h.replyError(c, err, "Provide both description and image URL: /upload <description> <image_url>")
			return
		}
		c.JSON(http.StatusOK, ephemeral("Logo submitted for review."))

	case commandApprove:
		if text == "" {
			c.JSON(http.StatusOK, ephemeral("Provide a submission ID: /approve <submission_id>"))
			return
		}
		if err := h.workflow.Approve(ctx, actorID, displayName, text); err != nil {
			h.replyError(c, err, "Provide a submission ID: /approve <submission_id>")
			return
		}
		c.JSON(http.StatusOK, ephemeral("Submission approved and posted for voting."))

	case commandMakeMod:
		if text == "" {
			c.JSON(http.StatusOK, ephemeral("Use: /make_mod <SlackUserID>"))
			return
		}
		if err := h.workflow.MakeModerator(ctx, actorID, displayName, text); err != nil {
			h.replyError(c, err, "Use: /make_mod <SlackUserID>")
			return
		}
		c.JSON(http.StatusOK, ephemeral("User <@"+text+"> is now a moderator."))

	case commandCloseVoting:
		if _, err := h.workflow.CloseVoting(ctx, actorID, displayName); err != nil {
			h.replyError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, ephemeral("Voting closed and winner announced."))

	default:
		c.JSON(http.StatusOK, ephemeral("Unknown command."))
	}
}

type interactionPayload struct {
	Type string `json:"type"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

func (h *httpHandler) handleInteraction(c *gin.Context) {
	raw := c.PostForm("payload")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if payload.User.ID == "" || len(payload.Actions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	action := payload.Actions[0]
	if action.ActionID != actionVote {
		c.Status(http.StatusOK)
		return
	}

	displayName := payload.User.Username
	if displayName == "" {
		displayName = "UnknownUser"
	}

	_, err := h.workflow.CastVote(c.Request.Context(), payload.User.ID, displayName, action.Value, payload.Channel.ID)
	if err != nil && !errors.Is(err, workflow.ErrNotFound) && !errors.Is(err, workflow.ErrAnnounce) {
		h.logger.Error("vote interaction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_failed"})
		return
	}
	if errors.Is(err, workflow.ErrNotFound) {
		h.logger.Warn("vote for unknown or unapproved submission",
			zap.String("submission_id", action.Value),
			zap.String("platform_user_id", payload.User.ID))
	}

	// Slack only needs the acknowledgement; outcomes reach the user via
	// ephemeral notices.
	c.Status(http.StatusOK)
}

type submissionPayload struct {
	SubmissionID string `json:"submission_id"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url"`
	Votes        int64  `json:"votes"`
}

func (h *httpHandler) handleListSubmissions(c *gin.Context) {
	standings, err := h.workflow.Standings(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list standings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payload := make([]submissionPayload, 0, len(standings))
	for _, standing := range standings {
		payload = append(payload, submissionPayload{
			SubmissionID: standing.SubmissionID,
			Description:  standing.Description,
			ImageURL:     standing.ImageURL,
			Votes:        standing.Votes,
		})
	}
	c.JSON(http.StatusOK, gin.H{"submissions": payload})
}

// replyError maps the workflow taxonomy onto the short user-facing strings a
// command issuer sees. Slash command replies are HTTP 200 regardless.
func (h *httpHandler) replyError(c *gin.Context, err error, usage string) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		if usage == "" {
			usage = "Invalid command input."
		}
		c.JSON(http.StatusOK, ephemeral(usage))
	case errors.Is(err, workflow.ErrPermission):
		c.JSON(http.StatusOK, ephemeral("No permission to do that."))
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusOK, ephemeral("Submission not found or already approved."))
	case errors.Is(err, workflow.ErrNoSubmissions):
		c.JSON(http.StatusOK, ephemeral("No approved submissions found."))
	case errors.Is(err, workflow.ErrNoVotes):
		c.JSON(http.StatusOK, ephemeral("No votes cast."))
	case errors.Is(err, workflow.ErrAnnounce):
		c.JSON(http.StatusOK, ephemeral("The change was saved but the announcement failed. Please retry posting."))
	default:
		h.logger.Error("command failed", zap.Error(err))
		c.JSON(http.StatusOK, ephemeral("Something went wrong. Please try again."))
	}
}
