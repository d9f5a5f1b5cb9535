package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maisonhq/chatcore/internal/domain"
)

// GeneralChat handles one general-conversation turn.
// POST /v1/chat/general
func (h *Handler) GeneralChat(c echo.Context) error {
	var req domain.GeneralChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.HandleGeneralChat(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// PropertyChat handles one property-conversation turn.
// POST /v1/chat/property
func (h *Handler) PropertyChat(c echo.Context) error {
	var req domain.PropertyChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.HandlePropertyChat(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
