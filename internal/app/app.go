package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/auth"
	"github.com/markdave123-py/AgroIntelX/internal/config"
	"github.com/markdave123-py/AgroIntelX/internal/core"
	"github.com/markdave123-py/AgroIntelX/internal/core/analysis"
	db "github.com/markdave123-py/AgroIntelX/internal/core/database"
	"github.com/markdave123-py/AgroIntelX/internal/core/llm"
	objectclient "github.com/markdave123-py/AgroIntelX/internal/core/object-client"
	"github.com/markdave123-py/AgroIntelX/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Assistant    core.LLMProvider
	Server       *Server
	logger       *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Database initialized and ready")

	a := &App{DBClient: dbClient, logger: logger}

	objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient
	logger.Info("Object client initialized and ready")

	gateway, err := analysis.NewClient(analysis.Options{
		BaseURL:        cfg.AnalysisBaseURL,
		ReportTimeout:  cfg.ReportAnalysisTimeout,
		PredictTimeout: cfg.PredictTimeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the analysis client: %w", err)
	}

	assistant, err := newAssistant(appCtx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the assistant: %w", err)
	}
	a.Assistant = assistant

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn, cfg.CookieSecure)
	if err != nil {
		a.Close()
		return nil, err
	}

	users := services.NewUserService(dbClient, logger)
	soil := services.NewSoilService(dbClient, gateway, services.NewArchiveService(objClient, cfg.BucketName, logger), logger)
	chat := services.NewChatService(dbClient, services.NewContextAssembler(dbClient), assistant, logger)

	a.Server = NewServer(cfg, Deps{
		Users:  users,
		Tokens: tokens,
		Soil:   soil,
		Chat:   chat,
	}, logger)

	return a, nil
}

func newAssistant(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.LLMProvider, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderOpenAI:
		return llm.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger)
	default:
		return llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel, logger)
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	if c, ok := a.Assistant.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("Failed to close assistant client", zap.Error(err))
		}
	}
	if a.DBClient != nil {
		if err := a.DBClient.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
