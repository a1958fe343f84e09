package core

import (
	"context"
	"io"

	"github.com/markdave123-py/AgroIntelX/internal/models"
)

// DbClient defines all persistence operations the services need.
// Every report and session read is scoped by owner id.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	CreateSoilReport(ctx context.Context, report *models.SoilReport) error
	// ListSoilReportsByUser returns newest first; limit <= 0 means no limit.
	ListSoilReportsByUser(ctx context.Context, userID string, limit int) ([]models.SoilReport, error)
	GetSoilReportForUser(ctx context.Context, id, userID string) (*models.SoilReport, error)

	CreateChatSession(ctx context.Context, session *models.ChatSession) error
	GetChatSessionForUser(ctx context.Context, id, userID string) (*models.ChatSession, error)
	// FindOrCreateReportSession returns the user's session linked to session.LinkedReportID,
	// inserting session when none exists. Concurrent callers observe a single session.
	FindOrCreateReportSession(ctx context.Context, session *models.ChatSession) (*models.ChatSession, bool, error)
	ListChatSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error)

	CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error
	GetLastChatMessage(ctx context.Context, sessionID string) (*models.ChatMessage, error)
	// ListRecentChatMessages returns the newest limit messages, oldest first.
	ListRecentChatMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	ListChatMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
