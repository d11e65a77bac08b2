// Package handler exposes the operator HTTP API: health, metrics and
// queue inspection.
package handler

import (
	"chatroulette/backend/internal/matchmaking"
	"chatroulette/backend/internal/storage"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler holds the dependencies of the HTTP routes.
type Handler struct {
	Store   storage.Storage
	Service *matchmaking.Service
	Logger  *zap.Logger
	// Ping checks backing services for /healthz; nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewHandler(store storage.Storage, svc *matchmaking.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Store: store, Service: svc, Logger: logger}
}

// Health reports whether the participant store is reachable.
func (h *Handler) Health(c *gin.Context) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type queueEntryResponse struct {
	UserID     int64     `json:"user_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ListQueue returns the waiting pool in service order.
func (h *Handler) ListQueue(c *gin.Context) {
	entries, err := h.Store.QueueEntries(c.Request.Context())
	if err != nil {
		h.internalError(c, "list queue", err)
		return
	}
	out := make([]queueEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, queueEntryResponse{UserID: e.UserID, Priority: e.Priority, EnqueuedAt: e.EnqueuedAt})
	}
	c.JSON(http.StatusOK, gin.H{"size": len(out), "entries": out})
}

// GetUser returns one participant record.
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	u, err := h.Store.GetUser(c.Request.Context(), id)
	if errors.Is(err, storage.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.internalError(c, "get user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// EvictUser removes a user from the waiting pool.
func (h *Handler) EvictUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.Service.Evict(c.Request.Context(), id); err != nil {
		h.internalError(c, "evict", err)
		return
	}
	h.Logger.Info("User evicted by operator", zap.Int64("user", id), zap.String("operator", Subject(c)))
	c.Status(http.StatusNoContent)
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) internalError(c *gin.Context, action string, err error) {
	h.Logger.Error("Request failed", zap.String("action", action), zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
