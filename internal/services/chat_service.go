package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/core"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

const titleMaxRunes = 80

// SendMessageInput is one incoming chat turn.
type SendMessageInput struct {
	UserID    string
	Message   string
	SessionID string
	ReportID  string
	NewChat   bool
}

// SendMessageResult describes the outcome of a turn. Duplicate is set when the
// message repeated the last user message and nothing was written.
type SendMessageResult struct {
	Session          *models.ChatSession
	UserMessage      string
	AssistantMessage *models.ChatMessage
	Duplicate        bool
}

type ChatService struct {
	db        core.DbClient
	assembler *ContextAssembler
	llm       core.LLMProvider
	logger    *zap.Logger
	now       func() time.Time
}

func NewChatService(db core.DbClient, assembler *ContextAssembler, llm core.LLMProvider, logger *zap.Logger) *ChatService {
	return &ChatService{
		db:        db,
		assembler: assembler,
		llm:       llm,
		logger:    logger.Named("chat"),
		now:       time.Now,
	}
}

func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, apperrors.NewValidationError("Message is required")
	}

	linkedReportID, err := s.ownedReportID(ctx, in.UserID, in.ReportID)
	if err != nil {
		return nil, err
	}

	session, err := s.resolveSession(ctx, in, linkedReportID)
	if err != nil {
		return nil, err
	}

	last, err := s.db.GetLastChatMessage(ctx, session.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("load last message: %w", err)
	}
	if last != nil && last.Sender == models.SenderUser && last.Message == in.Message {
		s.logger.Info("Duplicate chat message ignored", zap.String("session_id", session.ID))
		return &SendMessageResult{Session: session, UserMessage: in.Message, Duplicate: true}, nil
	}

	userMsg := s.newMessage(session.ID, models.SenderUser, in.Message)
	if err := s.db.CreateChatMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w: %w", apperrors.ErrPersistence, err)
	}

	prompt, err := s.assembler.Build(ctx, in.UserID, session.ID, in.ReportID, in.Message)
	if err != nil {
		return nil, err
	}

	reply, err := s.llm.Generate(ctx, "", prompt)
	if err != nil {
		s.logger.Error("Assistant failed to respond", zap.String("session_id", session.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrAssistantUnavailable, err)
	}

	assistantMsg := s.newMessage(session.ID, models.SenderAssistant, reply)
	if err := s.db.CreateChatMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("store assistant message: %w: %w", apperrors.ErrPersistence, err)
	}

	return &SendMessageResult{Session: session, UserMessage: in.Message, AssistantMessage: assistantMsg}, nil
}

// ownedReportID returns reportID when the caller owns that report and "" otherwise.
// A report the caller cannot see is never linked to a session; grounding then
// falls back to the no-reports placeholder.
func (s *ChatService) ownedReportID(ctx context.Context, ownerID, reportID string) (string, error) {
	if reportID == "" {
		return "", nil
	}
	_, err := s.db.GetSoilReportForUser(ctx, reportID, ownerID)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Info("Chat report not available to caller",
			zap.String("user_id", ownerID),
			zap.String("report_id", reportID))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load linked report: %w", err)
	}
	return reportID, nil
}

// resolveSession picks the session a message belongs to: an explicit session,
// the session already linked to the report, or a fresh one.
func (s *ChatService) resolveSession(ctx context.Context, in SendMessageInput, linkedReportID string) (*models.ChatSession, error) {
	if in.SessionID != "" && !in.NewChat {
		session, err := s.db.GetChatSessionForUser(ctx, in.SessionID, in.UserID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrSessionNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load chat session: %w", err)
		}
		return session, nil
	}

	candidate := &models.ChatSession{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     sessionTitle(in.Message),
		CreatedAt: s.now().UTC(),
	}
	if linkedReportID != "" {
		candidate.LinkedReportID = &linkedReportID
	}

	if linkedReportID != "" && !in.NewChat {
		session, created, err := s.db.FindOrCreateReportSession(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("resolve report session: %w: %w", apperrors.ErrPersistence, err)
		}
		if created {
			s.logger.Info("Chat session created", zap.String("session_id", session.ID), zap.String("report_id", linkedReportID))
		}
		return session, nil
	}

	if err := s.db.CreateChatSession(ctx, candidate); err != nil {
		return nil, fmt.Errorf("create chat session: %w: %w", apperrors.ErrPersistence, err)
	}
	s.logger.Info("Chat session created", zap.String("session_id", candidate.ID))
	return candidate, nil
}

func (s *ChatService) ListSessions(ctx context.Context, ownerID string) ([]models.ChatSession, error) {
	sessions, err := s.db.ListChatSessionsByUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	return sessions, nil
}

func (s *ChatService) ListMessages(ctx context.Context, ownerID, sessionID string) ([]models.ChatMessage, error) {
	if _, err := s.db.GetChatSessionForUser(ctx, sessionID, ownerID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load chat session: %w", err)
	}

	messages, err := s.db.ListChatMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return messages, nil
}

func (s *ChatService) newMessage(sessionID, sender, text string) *models.ChatMessage {
	return &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Message:   text,
		CreatedAt: s.now().UTC(),
	}
}

func sessionTitle(message string) string {
	r := []rune(message)
	if len(r) > titleMaxRunes {
		r = r[:titleMaxRunes]
	}
	return string(r)
}
