package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/hub"
	"studysprint/backend/internal/middleware"
	"studysprint/backend/internal/model"
	"studysprint/backend/internal/repository"
	"studysprint/backend/internal/session"
)

type SessionHandler struct {
	manager  *session.Manager
	repo     *repository.SessionRepository
	hub      *hub.Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewSessionHandler(manager *session.Manager, repo *repository.SessionRepository, h *hub.Hub, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		repo:    repo,
		hub:     h,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is handled by the CORS middleware for the REST
			// surface; the snapshot stream carries no credentials.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type startRequest struct {
	PlannedDurationSeconds int     `json:"plannedDurationSeconds"`
	PDFID                  *string `json:"pdfId"`
	TopicID                *string `json:"topicId"`
	SessionName            string  `json:"sessionName"`
	StartingPage           int     `json:"startingPage"`
}

type endRequest struct {
	Notes      string `json:"notes"`
	EndingPage int    `json:"endingPage"`
}

type activityRequest struct {
	Kind string     `json:"kind"`
	At   *time.Time `json:"at"`
}

type startCycleRequest struct {
	CycleType       string `json:"cycleType"`
	DurationSeconds int    `json:"durationSeconds"`
}

type completeCycleRequest struct {
	FocusRating *int `json:"focusRating"`
}

type pageRequest struct {
	Page int `json:"page"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Invalid("invalid request body"))
		return
	}
	if req.PlannedDurationSeconds < 0 {
		writeError(c, apperrors.Invalid("plannedDurationSeconds must be positive"))
		return
	}

	snap, apiErr := h.manager.Start(session.StartInput{
		OwnerID:                middleware.OwnerID(c),
		PlannedDurationSeconds: req.PlannedDurationSeconds,
		PDFID:                  req.PDFID,
		TopicID:                req.TopicID,
		SessionName:            req.SessionName,
		StartingPage:           req.StartingPage,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"snapshot": snap})
}

func (h *SessionHandler) Pause(c *gin.Context) {
	snap, apiErr := h.manager.Pause(c.Param("id"))
	writeSnapshot(c, snap, apiErr)
}

func (h *SessionHandler) Resume(c *gin.Context) {
	snap, apiErr := h.manager.Resume(c.Param("id"))
	writeSnapshot(c, snap, apiErr)
}

func (h *SessionHandler) End(c *gin.Context) {
	var req endRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Invalid("invalid request body"))
		return
	}
	snap, apiErr := h.manager.End(c.Param("id"), session.EndInput{
		Notes:      req.Notes,
		EndingPage: req.EndingPage,
	})
	writeSnapshot(c, snap, apiErr)
}

func (h *SessionHandler) RegisterActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Invalid("invalid request body"))
		return
	}
	if req.Kind == "" {
		req.Kind = model.SignalPointer
	}
	if !model.ValidSignalKind(req.Kind) {
		writeError(c, apperrors.Invalid("kind must be one of pointer, keyboard, navigation"))
		return
	}

	sig := model.ActivitySignal{Kind: req.Kind}
	if req.At != nil {
		sig.At = req.At.UTC()
	}
	snap, apiErr := h.manager.RegisterActivity(c.Param("id"), sig)
	writeSnapshot(c, snap, apiErr)
}

func (h *SessionHandler) StartCycle(c *gin.Context) {
	var req startCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Invalid("invalid request body"))
		return
	}
	snap, apiErr := h.manager.StartCycle(c.Param("id"), req.CycleType, req.DurationSeconds)
	writeSnapshot(c, snap, apiErr)
}

func (h *SessionHandler) CompleteCycle(c *gin.Context) {
	var req completeCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Invalid("invalid request body"))
		return
	}
	snap, apiErr := h.manager.CompleteCycle(c.Param("id"), req.FocusRating)
	writeSnapshot(c, snap, apiErr)
}

// UpdatePage is the reading-progress side channel used by the PDF reader; it
// never affects timer state.
func (h *SessionHandler) UpdatePage(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Invalid("invalid request body"))
		return
	}
	snap, apiErr := h.manager.UpdatePage(c.Param("id"), req.Page)
	writeSnapshot(c, snap, apiErr)
}

func (h *SessionHandler) GetSnapshot(c *gin.Context) {
	snap, apiErr := h.manager.Snapshot(c.Param("id"))
	writeSnapshot(c, snap, apiErr)
}

// Current returns the owner's live session, if one exists.
func (h *SessionHandler) Current(c *gin.Context) {
	snap, ok := h.manager.CurrentForOwner(middleware.OwnerID(c))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"snapshot": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snap})
}

func (h *SessionHandler) History(c *gin.Context) {
	limit := 50
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	sessions, err := h.repo.ListSessions(c.Request.Context(), middleware.OwnerID(c), limit)
	if err != nil {
		h.log.Error("list sessions failed", zap.Error(err))
		writeError(c, apperrors.Internal("failed to list sessions"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) ListCycles(c *gin.Context) {
	cycles, err := h.repo.ListCycles(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Error("list cycles failed", zap.Error(err))
		writeError(c, apperrors.Internal("failed to list cycles"))
		return
	}
	if cycles == nil {
		cycles = []model.PomodoroCycle{}
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"activeSessions": h.manager.ActiveCount(),
		"observers":      h.hub.SubscriberCount(),
	})
}
