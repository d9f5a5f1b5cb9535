package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/maisonhq/chatcore/internal/domain"
)

func conversationID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("conversation_id"), 10, 64)
}

// GetGeneralHistory retrieves the history of a general conversation.
// GET /v1/conversations/general/:conversation_id/history
func (h *Handler) GetGeneralHistory(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}

	history, err := h.service.GetGeneralHistory(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

// GetPropertyHistory retrieves the history of a property conversation.
// GET /v1/conversations/property/:conversation_id/history
func (h *Handler) GetPropertyHistory(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}

	history, err := h.service.GetPropertyHistory(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

// UpdateConversationStatus applies a status transition to a property
// conversation.
// PUT /v1/conversations/property/:conversation_id/status
func (h *Handler) UpdateConversationStatus(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}

	var req struct {
		Status domain.ConversationStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	conv, err := h.service.UpdateConversationStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// ListUserConversations lists everything a user can see, with optional role
// and status filters.
// GET /v1/users/:user_id/conversations
func (h *Handler) ListUserConversations(c echo.Context) error {
	filter := domain.ConversationFilter{
		Role:   domain.ConversationRole(c.QueryParam("role")),
		Status: domain.ConversationStatus(c.QueryParam("status")),
	}

	out, err := h.service.ListUserConversations(c.Request().Context(), c.Param("user_id"), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
