package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

const (
	reportPath  = "/api/analyze-soil-report"
	predictPath = "/predict"

	serviceReport  = "report-analysis"
	servicePredict = "prediction"

	maxResponseBytes = 4 << 20
	maxDetailLen     = 300
)

type Options struct {
	BaseURL        string
	ReportTimeout  time.Duration
	PredictTimeout time.Duration
	// HTTPClient defaults to a plain client; per-call deadlines come from the timeouts above.
	HTTPClient *http.Client
}

// Client talks to the soil analysis backend. It never retries.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	reportTimeout  time.Duration
	predictTimeout time.Duration
	logger         *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("analysis base url is empty")
	}
	if opts.ReportTimeout <= 0 || opts.PredictTimeout <= 0 {
		return nil, fmt.Errorf("analysis timeouts must be positive")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient:     hc,
		reportTimeout:  opts.ReportTimeout,
		predictTimeout: opts.PredictTimeout,
		logger:         logger.Named("analysis"),
	}, nil
}

// AnalyzeReport uploads a soil report document and returns the extracted data
// together with the AI analysis.
func (c *Client) AnalyzeReport(ctx context.Context, filePath, fileName string) (*ReportResult, error) {
	body, contentType, err := multipartFile(filePath, fileName)
	if err != nil {
		return nil, fmt.Errorf("prepare report upload: %w", err)
	}

	var env reportEnvelope
	err = c.do(ctx, serviceReport, c.reportTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+reportPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, &env)
	if err != nil {
		return nil, err
	}

	if env.AIAnalysisData == nil {
		msg := flexibleString(env.Error)
		if msg == "" {
			msg = "response has no ai_analysis_data"
		}
		return nil, c.bodyError(serviceReport, msg)
	}
	result, err := env.AIAnalysisData.toModel()
	if err != nil {
		return nil, c.bodyError(serviceReport, err.Error())
	}

	return &ReportResult{Extracted: env.ExtractedData, Analysis: *result}, nil
}

// Predict sends structured nutrient values to the numeric model.
func (c *Client) Predict(ctx context.Context, in PredictRequest) (*models.SoilAnalysis, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode prediction request: %w", err)
	}

	var bag analysisBag
	err = c.do(ctx, servicePredict, c.predictTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &bag)
	if err != nil {
		return nil, err
	}

	result, err := bag.toModel()
	if err != nil {
		return nil, c.bodyError(servicePredict, err.Error())
	}
	return result, nil
}

func (c *Client) do(
	ctx context.Context,
	service string,
	timeout time.Duration,
	build func(ctx context.Context) (*http.Request, error),
	out any,
) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := build(callCtx)
	if err != nil {
		return fmt.Errorf("build %s request: %w", service, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Analysis backend unreachable",
			zap.String("service", service),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return &apperrors.UpstreamError{Kind: apperrors.ErrUpstreamUnavailable, Service: service, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Warn("Analysis backend response interrupted",
			zap.String("service", service),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return &apperrors.UpstreamError{Kind: apperrors.ErrUpstreamUnavailable, Service: service, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := upstreamDetail(raw)
		kind := apperrors.ErrUpstreamRejected
		if resp.StatusCode == http.StatusTooManyRequests || mentionsQuota(detail) {
			kind = apperrors.ErrUpstreamQuotaExceeded
		}
		c.logger.Warn("Analysis backend returned error status",
			zap.String("service", service),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail),
			zap.Duration("elapsed", time.Since(start)))
		return &apperrors.UpstreamError{Kind: kind, Service: service, Status: resp.StatusCode, Message: detail}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("Analysis backend returned malformed body",
			zap.String("service", service),
			zap.Int("body_len", len(raw)),
			zap.Error(err))
		return &apperrors.UpstreamError{Kind: apperrors.ErrUpstreamRejected, Service: service, Status: resp.StatusCode, Err: err}
	}

	c.logger.Info("Analysis backend call completed",
		zap.String("service", service),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// bodyError classifies a 2xx response whose body does not carry a usable analysis.
func (c *Client) bodyError(service, msg string) error {
	kind := apperrors.ErrUpstreamRejected
	switch {
	case mentionsQuota(msg):
		kind = apperrors.ErrUpstreamQuotaExceeded
	case strings.Contains(strings.ToLower(msg), "unavailable"):
		kind = apperrors.ErrUpstreamUnavailable
	}
	c.logger.Warn("Analysis backend returned unusable body",
		zap.String("service", service),
		zap.String("detail", msg))
	return &apperrors.UpstreamError{Kind: kind, Service: service, Status: http.StatusOK, Message: msg}
}

func multipartFile(filePath, fileName string) ([]byte, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	if fileName == "" {
		fileName = filepath.Base(filePath)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// upstreamDetail pulls a human-readable message out of an error body.
// FastAPI uses {"detail": ...}; other services use message or error.
func upstreamDetail(raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if v, ok := body[key]; ok {
				if s := flexibleString(v); s != "" {
					return truncate(s)
				}
			}
		}
	}
	return truncate(strings.TrimSpace(string(raw)))
}

func mentionsQuota(msg string) bool {
	m := strings.ToLower(msg)
	for _, p := range []string{"quota", "rate limit", "rate-limit", "resource_exhausted", "too many requests"} {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen] + "..."
}
