package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maisonhq/chatcore/internal/adapter/llm"
	"github.com/maisonhq/chatcore/internal/adapter/propertydata"
	"github.com/maisonhq/chatcore/internal/adapter/refsync"
	"github.com/maisonhq/chatcore/internal/config"
	"github.com/maisonhq/chatcore/internal/domain"
	store "github.com/maisonhq/chatcore/internal/repository"
	"github.com/maisonhq/chatcore/internal/service"
	"github.com/maisonhq/chatcore/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, store.Store) {
	cfg := &config.Config{
		ClassifierThreshold:     0.5,
		AnonymousSessionTTL:     24 * time.Hour,
		AuthenticatedSessionTTL: 720 * time.Hour,
		LLMTimeout:              time.Second,
		MaxWriteRetries:         3,
		HistoryWindow:           5,
	}
	db := helpers.NewTestSQLiteStore(t)
	llmClient := llm.NewMockClient()
	svc := service.New(db, llmClient, propertydata.NewClient(""), refsync.NewClient(""), cfg)
	return NewHandler(svc), db
}

func doJSON(t *testing.T, h func(echo.Context) error, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestGeneralChatValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.GeneralChat, http.MethodPost, "/v1/chat/general", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGeneralChatSuccess(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.GeneralChat, http.MethodPost, "/v1/chat/general", `{"message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionID == "" || resp.ConversationID == 0 {
		t.Fatalf("missing identifiers in response: %+v", resp)
	}
	if resp.Intent != domain.IntentGeneralQuestion {
		t.Fatalf("unexpected intent: %s", resp.Intent)
	}
	if resp.Context == nil || resp.Context.LastIntent != domain.IntentGeneralQuestion {
		t.Fatalf("context not returned: %+v", resp.Context)
	}
}

func TestPropertyChatValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.PropertyChat, http.MethodPost, "/v1/chat/property", `{"message":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPropertyChatSuccess(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"message":"tell me about this property","user_id":"buyer-1","property_id":"prop-1","role":"buyer","counterpart_id":"seller-1"}`
	rec := doJSON(t, h.PropertyChat, http.MethodPost, "/v1/chat/property", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PropertyContext == nil || !resp.PropertyContext.PropertyDetailsRequested {
		t.Fatalf("property context not accumulated: %+v", resp.PropertyContext)
	}
}

func TestPropertyChatClosedConversationConflict(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"message":"tell me about this property","user_id":"buyer-1","property_id":"prop-1","role":"buyer","counterpart_id":"seller-1"}`
	rec := doJSON(t, h.PropertyChat, http.MethodPost, "/v1/chat/property", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/v1/conversations/property/1/status", bytes.NewBufferString(`{"status":"closed"}`))
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	c := e.NewContext(req, rec2)
	c.SetParamNames("conversation_id")
	c.SetParamValues(strconv.FormatInt(resp.ConversationID, 10))
	if err := h.UpdateConversationStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec2.Code, rec2.Body.String())
	}

	rec3 := doJSON(t, h.PropertyChat, http.MethodPost, "/v1/chat/property", body)
	if rec3.Code != http.StatusConflict {
		t.Fatalf("expected 409 for closed conversation, got %d: %s", rec3.Code, rec3.Body.String())
	}
}

func TestPropertyChatRoleConflict(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()

	body := `{"message":"hello there","user_id":"buyer-1","property_id":"prop-1","role":"buyer","counterpart_id":"seller-1"}`
	rec := doJSON(t, h.PropertyChat, http.MethodPost, "/v1/chat/property", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Reuse the session but flip the role: conflicting identity is rejected.
	conflicting := `{"message":"hi","user_id":"buyer-1","property_id":"prop-1","role":"seller","counterpart_id":"seller-1","session_id":"` + resp.SessionID + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/property", bytes.NewBufferString(conflicting))
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	c := e.NewContext(req, rec2)
	if err := h.PropertyChat(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec2.Code, rec2.Body.String())
	}
}
