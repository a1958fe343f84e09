package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/AgroIntelX/internal/api/middlewares"
	"github.com/markdave123-py/AgroIntelX/internal/auth"
	"github.com/markdave123-py/AgroIntelX/internal/core/analysis"
	"github.com/markdave123-py/AgroIntelX/internal/models"
	"github.com/markdave123-py/AgroIntelX/internal/services"
	"github.com/markdave123-py/AgroIntelX/internal/testhelpers"
)

type stubGateway struct {
	extracted map[string]json.RawMessage
	err       error
	predicts  int
}

func (s *stubGateway) AnalyzeReport(_ context.Context, _, _ string) (*analysis.ReportResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.ReportResult{Extracted: s.extracted, Analysis: *stubAnalysis()}, nil
}

func (s *stubGateway) Predict(_ context.Context, _ analysis.PredictRequest) (*models.SoilAnalysis, error) {
	s.predicts++
	if s.err != nil {
		return nil, s.err
	}
	return stubAnalysis(), nil
}

func stubAnalysis() *models.SoilAnalysis {
	return &models.SoilAnalysis{
		SoilHealthGrade:        "Good",
		SoilHealthScore:        "72.5",
		RecommendedCrop:        "Sugarcane",
		RecommendedFertilizers: "Urea",
		TopCrops:               []models.CropProbability{},
		TopFertilizers:         []models.FertilizerProbability{},
	}
}

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Generate(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubStore struct{}

func (stubStore) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	_, err := io.Copy(io.Discard, data)
	return "https://" + bucket + ".s3.test/" + key, err
}

func (stubStore) DeleteFile(_ context.Context, _, _ string) error { return nil }

type testServer struct {
	t       *testing.T
	router  http.Handler
	db      *testhelpers.MemoryDB
	gateway *stubGateway
	llm     *stubLLM
	users   *services.UserService
	tokens  *auth.TokenIssuer
	soil    *services.SoilService
	uploads string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	db := testhelpers.NewMemoryDB()
	gw := &stubGateway{extracted: map[string]json.RawMessage{"District_Name": json.RawMessage(`"Kolhapur"`)}}
	llm := &stubLLM{reply: "Grow sugarcane."}

	tokens, err := auth.NewTokenIssuer("test-secret", 24*time.Hour, false)
	require.NoError(t, err)

	users := services.NewUserService(db, logger)
	soil := services.NewSoilService(db, gw, services.NewArchiveService(stubStore{}, "bucket", logger), logger)
	chat := services.NewChatService(db, services.NewContextAssembler(db), llm, logger)

	authH := NewAuthHandler(users, tokens, logger)
	soilH := NewSoilHandler(soil, 1024, logger)
	soilH.tempDir = t.TempDir()
	chatH := NewChatHandler(chat, logger)

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/signup", authH.Signup)
		api.Post("/auth/login", authH.Login)
		api.Post("/auth/logout", authH.Logout)
		api.Group(func(p chi.Router) {
			p.Use(middleware.JWTMiddleware(tokens, users, logger))
			p.Get("/auth/me", authH.Me)
			p.Post("/soil/analyze", soilH.Analyze)
			p.Get("/soil/my-reports", soilH.ListReports)
			p.Get("/soil/reports/{reportId}", soilH.GetReport)
			p.Post("/chat/send", chatH.SendMessage)
			p.Get("/chat/sessions", chatH.ListSessions)
			p.Get("/chat/messages/{sessionId}", chatH.ListMessages)
		})
	})

	return &testServer{t: t, router: r, db: db, gateway: gw, llm: llm, users: users, tokens: tokens, soil: soil, uploads: soilH.tempDir}
}

// session registers a user and returns its session cookie.
func (s *testServer) session(email string) (*models.User, *http.Cookie) {
	s.t.Helper()
	user, err := s.users.Register(context.Background(), "Farmer", email, "pw")
	require.NoError(s.t, err)
	token, err := s.tokens.Issue(user.ID, user.Role)
	require.NoError(s.t, err)
	return user, &http.Cookie{Name: auth.CookieName, Value: token}
}

func (s *testServer) do(method, path string, body io.Reader, contentType string, cookie *http.Cookie) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(path string, payload any, cookie *http.Cookie) *httptest.ResponseRecorder {
	s.t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(s.t, err)
	return s.do(http.MethodPost, path, bytes.NewReader(b), "application/json", cookie)
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string]string, file *formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + file.field + `"; filename="` + file.name + `"`}
		h["Content-Type"] = []string{file.contentType}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
