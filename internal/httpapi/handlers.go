package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"call-platform/internal/auth"
	"call-platform/internal/call"
	"call-platform/internal/chat"
	"call-platform/internal/history"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Calls   *call.Manager
	Chat    *chat.Service
	History *history.Service
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, device_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.DeviceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type placeCallRequest struct {
	ChatThreadID string `json:"chat_thread_id"`
	RecipientID  string `json:"recipient_id"`
	IsVideo      bool   `json:"is_video"`
}

func (h Handlers) PlaceCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ChatThreadID == "" || req.RecipientID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "chat_thread_id, recipient_id required"})
		return
	}
	rec, err := h.Calls.PlaceCall(c.Request.Context(), req.ChatThreadID, req.RecipientID, req.IsVideo)
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) AnswerCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	rec, err := h.Calls.AnswerCall(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) DeclineCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	if err := h.Calls.DeclineCall(c.Request.Context(), c.Param("call_id")); err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(call.StatusDeclined)})
}

type endCallRequest struct {
	Status string `json:"status,omitempty"`
}

func (h Handlers) EndCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	var req endCallRequest
	_ = c.ShouldBindJSON(&req)

	status := call.Status(req.Status)
	if req.Status == "" {
		status = call.StatusCompleted
	}
	if !status.Terminal() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be terminal"})
		return
	}
	if err := h.Calls.EndCall(c.Request.Context(), status); err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	rec, err := h.Calls.Lookup(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) ToggleAudio(c *gin.Context) {
	h.toggleTrack(c, call.TrackAudio)
}

func (h Handlers) ToggleVideo(c *gin.Context) {
	h.toggleTrack(c, call.TrackVideo)
}

func (h Handlers) toggleTrack(c *gin.Context, kind call.TrackKind) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	var (
		enabled bool
		err     error
	)
	if kind == call.TrackAudio {
		enabled, err = h.Calls.ToggleAudio(c.Request.Context())
	} else {
		enabled, err = h.Calls.ToggleVideo(c.Request.Context())
	}
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"track": string(kind), "enabled": enabled})
}

// --- Chat ---

type postMessageRequest struct {
	Text string `json:"text"`
}

func (h Handlers) PostMessage(c *gin.Context) {
	if h.Chat == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "chat not configured"})
		return
	}
	senderID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Chat.AppendText(c.Request.Context(), c.Param("thread_id"), senderID, req.Text); err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "message append failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

func (h Handlers) ListMessages(c *gin.Context) {
	if h.Chat == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "chat not configured"})
		return
	}
	msgs, err := h.Chat.ListByThread(c.Request.Context(), c.Param("thread_id"), intQuery(c, "limit"))
	if err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "message listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// --- History ---

func (h Handlers) ListCallHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	entries, err := h.History.ListByThread(c.Request.Context(), c.Param("thread_id"), intQuery(c, "limit"))
	if err != nil {
		if errors.Is(err, history.ErrInvalidEntry) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": entries})
}

func (h Handlers) ThreadCallSummary(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	sum, err := h.History.ThreadSummary(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		if errors.Is(err, history.ErrInvalidEntry) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// abortCallError maps the call error taxonomy onto HTTP statuses.
func abortCallError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, call.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, call.ErrAlreadyInCall), errors.Is(err, call.ErrRecordExists):
		status = http.StatusConflict
	case errors.Is(err, call.ErrCallNotFound):
		status = http.StatusNotFound
	case errors.Is(err, call.ErrNoConnectivity):
		status = http.StatusServiceUnavailable
	case errors.Is(err, call.ErrEngineInit), errors.Is(err, call.ErrNegotiation):
		status = http.StatusBadGateway
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}
