package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/analyzer"
	"github.com/qs3c/mpesa_anal_server/internal/history"
	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/kv"
	"github.com/qs3c/mpesa_anal_server/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-handlers"

// apiResponse 解析统一响应，data 保留原始 JSON
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type testEnv struct {
	cfg      *config.Config
	store    *history.Store
	analysis *service.AnalysisService
	history  *service.HistoryService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWT.Secret = testJWTSecret
	cfg.Analysis = config.AnalysisConfig{TickIntervalMs: 1, MaxIncrement: 20}

	store := openStore(t, kv.NewMemory())

	analysisService := service.NewAnalysisService(
		intake.NewGateFromConfig(cfg.Upload),
		analyzer.NewMock(cfg.Analysis, nil),
		store,
		cfg.Analysis,
	)

	return &testEnv{
		cfg:      cfg,
		store:    store,
		analysis: analysisService,
		history:  service.NewHistoryService(store),
	}
}

// multipartRequest 构造上传请求，field 为空时不带文件
func multipartRequest(t *testing.T, field, filename string, size int) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte("a"), size))
		require.NoError(t, err)
	} else {
		require.NoError(t, writer.WriteField("note", "no file"))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze-mpesa", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func openStore(t *testing.T, backing kv.Store) *history.Store {
	t.Helper()

	store, err := history.Open(context.Background(), backing, config.HistoryStorageKey)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
