// Package v1 provides the HTTP handlers for the chat engine API.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maisonhq/chatcore/internal/domain"
	"github.com/maisonhq/chatcore/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat API
	e.POST("/v1/chat/general", h.GeneralChat)
	e.POST("/v1/chat/property", h.PropertyChat)

	// Conversation API
	e.GET("/v1/conversations/general/:conversation_id/history", h.GetGeneralHistory)
	e.GET("/v1/conversations/property/:conversation_id/history", h.GetPropertyHistory)
	e.PUT("/v1/conversations/property/:conversation_id/status", h.UpdateConversationStatus)
	e.GET("/v1/users/:user_id/conversations", h.ListUserConversations)

	// Question bridge API
	e.GET("/v1/sellers/:seller_id/questions", h.ListSellerQuestions)
	e.POST("/v1/questions/:question_id/answer", h.AnswerQuestion)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConversationClosed),
		errors.Is(err, domain.ErrRoleConflict),
		errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConflict):
		// The write lost repeatedly under contention; the caller should retry.
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
