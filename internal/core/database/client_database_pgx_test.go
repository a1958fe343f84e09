package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/config"
	"github.com/markdave123-py/AgroIntelX/internal/models"
	"github.com/markdave123-py/AgroIntelX/internal/testhelpers"
)

func newTestClient(t *testing.T) *DatabaseClient {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)

	require.NoError(t, RunMigrations(testDB.ConnStr, zap.NewNop()))
	// Re-running is a no-op.
	require.NoError(t, RunMigrations(testDB.ConnStr, zap.NewNop()))

	pool, err := sql.Open("pgx", testDB.ConnStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return NewFromDB(pool, zap.NewNop())
}

func createUser(t *testing.T, c *DatabaseClient) *models.User {
	t.Helper()
	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         "Farmer",
		Email:        fmt.Sprintf("%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, c.CreateUser(context.Background(), u))
	return u
}

func createReport(t *testing.T, c *DatabaseClient, ownerID string, at time.Time) *models.SoilReport {
	t.Helper()
	district := "Nashik"
	n := 45.0
	r := &models.SoilReport{
		ID:                 uuid.NewString(),
		UserID:             ownerID,
		Source:             models.SourceManual,
		ExtractedInputData: &models.NutrientSnapshot{District: &district, Nitrogen: &n},
		Analysis: &models.SoilAnalysis{
			SoilHealthGrade: "Good",
			RecommendedCrop: "Sugarcane",
			TopCrops:        []models.CropProbability{{Crop: "Sugarcane", Probability: 61.2}},
			TopFertilizers:  []models.FertilizerProbability{},
		},
		CreatedAt: at,
	}
	require.NoError(t, c.CreateSoilReport(context.Background(), r))
	return r
}

func TestDatabaseClient_Users(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	u := createUser(t, c)

	got, err := c.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Farmer", got.Name)

	got, err = c.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	dup := *u
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, c.CreateUser(ctx, &dup), apperrors.ErrConflict)

	_, err = c.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = c.GetUserByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDatabaseClient_SoilReports(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	alice := createUser(t, c)
	bob := createUser(t, c)

	base := time.Now().UTC().Truncate(time.Millisecond)
	older := createReport(t, c, alice.ID, base.Add(-time.Hour))
	newer := createReport(t, c, alice.ID, base)

	reports, err := c.ListSoilReportsByUser(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, newer.ID, reports[0].ID)
	assert.Equal(t, older.ID, reports[1].ID)
	assert.Equal(t, 45.0, *reports[0].ExtractedInputData.Nitrogen)
	assert.Equal(t, "Sugarcane", reports[0].Analysis.RecommendedCrop)
	assert.Nil(t, reports[0].PdfURL)

	limited, err := c.ListSoilReportsByUser(ctx, alice.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)

	_, err = c.GetSoilReportForUser(ctx, newer.ID, bob.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = c.GetSoilReportForUser(ctx, "nope", alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// pdf rows without a URL are rejected by the schema as well.
	bad := &models.SoilReport{ID: uuid.NewString(), UserID: alice.ID, Source: models.SourcePDF, CreatedAt: base}
	assert.Error(t, c.CreateSoilReport(ctx, bad))
}

func TestDatabaseClient_FindOrCreateReportSessionIsSerialized(t *testing.T) {
	c := newTestClient(t)
	u := createUser(t, c)
	report := createReport(t, c, u.ID, time.Now().UTC())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		created int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reportID := report.ID
			s, wasCreated, err := c.FindOrCreateReportSession(context.Background(), &models.ChatSession{
				ID:             uuid.NewString(),
				UserID:         u.ID,
				Title:          fmt.Sprintf("question %d", i),
				LinkedReportID: &reportID,
				CreatedAt:      time.Now().UTC(),
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[s.ID] = true
			if wasCreated {
				created++
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)

	sessions, err := c.ListChatSessionsByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestDatabaseClient_ChatMessages(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	u := createUser(t, c)
	other := createUser(t, c)

	session := &models.ChatSession{ID: uuid.NewString(), UserID: u.ID, Title: "t", CreatedAt: time.Now().UTC()}
	require.NoError(t, c.CreateChatSession(ctx, session))

	_, err := c.GetChatSessionForUser(ctx, session.ID, other.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = c.GetLastChatMessage(ctx, session.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Identical timestamps fall back to insertion order.
	at := time.Now().UTC()
	for i := 0; i < 12; i++ {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderAssistant
		}
		require.NoError(t, c.CreateChatMessage(ctx, &models.ChatMessage{
			ID: uuid.NewString(), SessionID: session.ID, Sender: sender, Message: fmt.Sprintf("m%d", i), CreatedAt: at,
		}))
	}

	last, err := c.GetLastChatMessage(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "m11", last.Message)

	recent, err := c.ListRecentChatMessages(ctx, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "m2", recent[0].Message)
	assert.Equal(t, "m11", recent[9].Message)

	all, err := c.ListChatMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, all, 12)
	assert.Equal(t, "m0", all[0].Message)
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN(&config.Config{DatabaseURL: "postgres://u:p@localhost:5432/db"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", dsn)

	_, err = buildDSN(&config.Config{})
	assert.Error(t, err)

	_, err = buildDSN(&config.Config{DatabaseURL: "postgres://localhost/db", SslCertPath: "/does/not/exist.pem"})
	assert.Error(t, err)
}
