package testhelpers

import (
	"context"
	"sync"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/core"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

// MemoryDB is an in-memory core.DbClient for service and handler tests.
// Rows are kept in insertion order, which stands in for created_at ordering.
type MemoryDB struct {
	mu       sync.Mutex
	users    []models.User
	reports  []models.SoilReport
	sessions []models.ChatSession
	messages []models.ChatMessage

	// Fail, when set, is returned by every write.
	Fail error
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{}
}

func (m *MemoryDB) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return apperrors.ErrConflict
		}
	}
	m.users = append(m.users, *user)
	return nil
}

func (m *MemoryDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *MemoryDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *MemoryDB) CreateSoilReport(_ context.Context, report *models.SoilReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.reports = append(m.reports, *report)
	return nil
}

func (m *MemoryDB) ListSoilReportsByUser(_ context.Context, userID string, limit int) ([]models.SoilReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SoilReport{}
	for i := len(m.reports) - 1; i >= 0; i-- {
		if m.reports[i].UserID != userID {
			continue
		}
		out = append(out, m.reports[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryDB) GetSoilReportForUser(_ context.Context, id, userID string) (*models.SoilReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ID == id && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *MemoryDB) CreateChatSession(_ context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.sessions = append(m.sessions, *session)
	return nil
}

func (m *MemoryDB) GetChatSessionForUser(_ context.Context, id, userID string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id && s.UserID == userID {
			return &s, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *MemoryDB) FindOrCreateReportSession(_ context.Context, session *models.ChatSession) (*models.ChatSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, false, m.Fail
	}
	for i := len(m.sessions) - 1; i >= 0; i-- {
		s := m.sessions[i]
		if s.UserID == session.UserID && s.LinkedReportID != nil && session.LinkedReportID != nil &&
			*s.LinkedReportID == *session.LinkedReportID {
			return &s, false, nil
		}
	}
	m.sessions = append(m.sessions, *session)
	created := *session
	return &created, true, nil
}

func (m *MemoryDB) ListChatSessionsByUser(_ context.Context, userID string) ([]models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatSession{}
	for i := len(m.sessions) - 1; i >= 0; i-- {
		if m.sessions[i].UserID == userID {
			out = append(out, m.sessions[i])
		}
	}
	return out, nil
}

func (m *MemoryDB) CreateChatMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryDB) GetLastChatMessage(_ context.Context, sessionID string) (*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].SessionID == sessionID {
			msg := m.messages[i]
			return &msg, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *MemoryDB) ListRecentChatMessages(_ context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	all := m.sessionMessages(sessionID)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *MemoryDB) ListChatMessages(_ context.Context, sessionID string) ([]models.ChatMessage, error) {
	return m.sessionMessages(sessionID), nil
}

func (m *MemoryDB) sessionMessages(sessionID string) []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatMessage{}
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out
}

// MessageCount reports how many messages a session holds.
func (m *MemoryDB) MessageCount(sessionID string) int {
	return len(m.sessionMessages(sessionID))
}

// SessionCount reports how many sessions a user owns.
func (m *MemoryDB) SessionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

func (m *MemoryDB) Close() error { return nil }

var _ core.DbClient = (*MemoryDB)(nil)
