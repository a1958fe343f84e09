package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/models"
	"github.com/markdave123-py/AgroIntelX/internal/services"
)

type ChatHandler struct {
	chat   *services.ChatService
	logger *zap.Logger
}

func NewChatHandler(chat *services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger.Named("chat_handler")}
}

type sendMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	ReportID  string `json:"reportId"`
	NewChat   bool   `json:"newChat"`
}

type sendMessageResponse struct {
	SessionID        string              `json:"sessionId"`
	Title            string              `json:"title"`
	UserMessage      string              `json:"userMessage"`
	AssistantMessage *models.ChatMessage `json:"assistantMessage"`
	Info             string              `json:"info,omitempty"`
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, "Chatbot failed to respond")
		return
	}

	res, err := h.chat.SendMessage(r.Context(), services.SendMessageInput{
		UserID:    user.ID,
		Message:   req.Message,
		SessionID: req.SessionID,
		ReportID:  req.ReportID,
		NewChat:   req.NewChat,
	})
	if err != nil {
		writeError(w, h.logger, err, "Chatbot failed to respond")
		return
	}

	resp := sendMessageResponse{
		SessionID:        res.Session.ID,
		Title:            res.Session.Title,
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
	}
	if res.Duplicate {
		resp.Info = "Duplicate message ignored"
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.chat.ListSessions(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch chat sessions")
		return
	}
	_ = WriteJSON(w, http.StatusOK, sessions)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	messages, err := h.chat.ListMessages(r.Context(), user.ID, chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch messages")
		return
	}
	_ = WriteJSON(w, http.StatusOK, messages)
}
