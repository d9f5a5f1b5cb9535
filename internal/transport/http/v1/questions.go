package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/maisonhq/chatcore/internal/domain"
)

// ListSellerQuestions lists questions forwarded to a seller.
// GET /v1/sellers/:seller_id/questions
func (h *Handler) ListSellerQuestions(c echo.Context) error {
	status := domain.QuestionStatus(c.QueryParam("status"))

	questions, err := h.service.ListSellerQuestions(c.Request().Context(), c.Param("seller_id"), status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"questions": questions,
	})
}

// AnswerQuestion records the answer to a pending question and delivers it to
// the asker's conversation.
// POST /v1/questions/:question_id/answer
func (h *Handler) AnswerQuestion(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("question_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid question id"})
	}

	var req struct {
		AnswerText string `json:"answer_text"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.service.AnswerQuestion(c.Request().Context(), id, req.AnswerText)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
