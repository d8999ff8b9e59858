package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sporttracker/sporttracker/internal/activity"
	"github.com/sporttracker/sporttracker/internal/cloudstore"
)

const userIDContextKey = "sporttracker_user_id"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingCloudStore   = errors.New("cloud store dependency required")
	errInvalidAuth         = errors.New("authorization header missing or invalid")
)

// SessionTokenManager mints anonymous sessions and validates bearer tokens.
// Implemented by [auth.TokenIssuer].
type SessionTokenManager interface {
	IssueAnonymousToken(ctx context.Context) (token, subject string, expiresIn int64, err error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to its collaborators.
type Dependencies struct {
	TokenManager SessionTokenManager
	CloudStore   *cloudstore.Service
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the cloud activity API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.CloudStore == nil {
		return nil, errMissingCloudStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.TokenManager,
		store:  deps.CloudStore,
		logger: logger,
	}

	router.POST("/auth/anonymous", handler.handleAnonymousAuth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/activities", handler.handleListActivities)
	protected.POST("/activities", handler.handleUpsertActivity)
	protected.PUT("/activities/:id", handler.handleUpsertActivity)
	protected.DELETE("/activities/:id", handler.handleDeleteActivity)
	protected.POST("/activities/sync", handler.handleSyncActivities)

	return router, nil
}

type httpHandler struct {
	tokens SessionTokenManager
	store  *cloudstore.Service
	logger *zap.Logger
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAnonymousAuth(c *gin.Context) {
	token, subject, expiresIn, err := h.tokens.IssueAnonymousToken(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to issue anonymous token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		UserID:      subject,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type listResponsePayload struct {
	Activities []activity.Activity `json:"activities"`
}

func (h *httpHandler) handleListActivities(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	records, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list activities", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if records == nil {
		records = []activity.Activity{}
	}

	c.JSON(http.StatusOK, listResponsePayload{Activities: records})
}

func (h *httpHandler) handleUpsertActivity(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var record activity.Activity
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if pathID := c.Param("id"); pathID != "" {
		record.ID = pathID
	}
	if err := activity.Validate(record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_activity"})
		return
	}

	id, err := h.store.Upsert(c.Request.Context(), userID, record)
	if err != nil {
		h.logger.Error("failed to upsert activity",
			zap.String("activity_id", record.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *httpHandler) handleDeleteActivity(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.logger.Error("failed to delete activity",
			zap.String("activity_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

type syncRequestPayload struct {
	Activities []activity.Activity `json:"activities"`
}

func (h *httpHandler) handleSyncActivities(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request syncRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Activities) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	accepted, err := h.store.SyncBatch(c.Request.Context(), userID, request.Activities)
	if err != nil {
		h.logger.Error("failed to apply sync batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
