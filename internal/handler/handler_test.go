package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/classmate/internal/ai"
	"github.com/xxxsen/classmate/internal/config"
	"github.com/xxxsen/classmate/internal/extract"
	"github.com/xxxsen/classmate/internal/filestore"
	"github.com/xxxsen/classmate/internal/handler"
	"github.com/xxxsen/classmate/internal/middleware"
	"github.com/xxxsen/classmate/internal/pkg/errcode"
	"github.com/xxxsen/classmate/internal/service"
	"github.com/xxxsen/classmate/internal/vectorstore"
)

const testDims = 128

type echoCompleter struct {
	prompts []string
}

func (e *echoCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	e.prompts = append(e.prompts, req.Prompt)
	return "answer", nil
}

type result struct {
	Code int                    `json:"code"`
	Msg  string                 `json:"message"`
	Data map[string]interface{} `json:"data"`
}

func setupRouter(t *testing.T, rag *service.RAGService, llm service.Completer, providers handler.ProviderLister) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	files, err := filestore.New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	upload := config.UploadConfig{MaxSizeMB: 1, AllowedExts: []string{"txt", "md"}}
	documents := service.NewDocumentService(files, extract.New(), rag, llm, service.DocumentOptions{Upload: upload, TopK: 3})
	chat := service.NewChatService(rag, llm, 3, 0)

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(documents, upload.MaxBytes()),
		Chat:      handler.NewChatHandler(chat),
		Health:    handler.NewHealthHandler(rag, providers),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return engine
}

func newRAG(t *testing.T) *service.RAGService {
	p, err := ai.NewProvider("local", map[string]interface{}{"dimensions": testDims})
	require.NoError(t, err)
	return service.NewRAGService(ai.NewEmbedder(p, "hashing", testDims), vectorstore.NewMemory(testDims), ai.NewChunker(), 2)
}

func do(t *testing.T, router http.Handler, req *http.Request) result {
	t.Helper()
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var out result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUploadListAsk(t *testing.T) {
	llm := &echoCompleter{}
	router := setupRouter(t, newRAG(t), llm, nil)

	out := do(t, router, uploadRequest(t, "bio.txt", "Photosynthesis converts light energy into chemical energy."))
	require.Equal(t, 0, out.Code)
	require.Equal(t, "bio.txt", out.Data["filename"])
	require.Equal(t, "txt", out.Data["file_type"])
	require.Equal(t, true, out.Data["indexed"])
	require.Equal(t, float64(1), out.Data["chunks"])

	out = do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	require.Equal(t, 0, out.Code)
	docs, ok := out.Data["documents"].([]interface{})
	require.True(t, ok)
	require.Len(t, docs, 1)

	out = do(t, router, jsonRequest(http.MethodPost, "/api/v1/documents/bio.txt/ask", `{"question":"What does photosynthesis convert?"}`))
	require.Equal(t, 0, out.Code)
	require.Equal(t, "success", out.Data["status"])
	require.Equal(t, "answer", out.Data["response"])
	require.Contains(t, llm.prompts[len(llm.prompts)-1], "Source: bio.txt")

	out = do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/documents/bio.txt/explain", nil))
	require.Equal(t, 0, out.Code)
	require.Equal(t, "answer", out.Data["explanation"])
	require.Contains(t, out.Data["content_preview"], "Photosynthesis")
}

func TestUploadRejected(t *testing.T) {
	router := setupRouter(t, newRAG(t), &echoCompleter{}, nil)

	out := do(t, router, uploadRequest(t, "tool.exe", "MZ"))
	require.Equal(t, errcode.ErrInvalidFile, out.Code)

	out = do(t, router, uploadRequest(t, "big.txt", strings.Repeat("a", 2*1024*1024)))
	require.Equal(t, errcode.ErrFileTooLarge, out.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", nil)
	out = do(t, router, req)
	require.Equal(t, errcode.ErrInvalidFile, out.Code)
}

func TestExplainMissing(t *testing.T) {
	router := setupRouter(t, newRAG(t), &echoCompleter{}, nil)
	out := do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope.txt/explain", nil))
	require.Equal(t, errcode.ErrNotFound, out.Code)
}

func TestChatRoutes(t *testing.T) {
	router := setupRouter(t, newRAG(t), &echoCompleter{}, nil)

	out := do(t, router, jsonRequest(http.MethodPost, "/api/v1/chat/send", `{"message":"hello","enable_search":true}`))
	require.Equal(t, 0, out.Code)
	require.Equal(t, "success", out.Data["status"])
	require.Equal(t, "hello", out.Data["message"])
	require.Equal(t, true, out.Data["search_enabled"])

	out = do(t, router, jsonRequest(http.MethodPost, "/api/v1/chat/debug-echo", `{"message":"ping"}`))
	require.Equal(t, "Echo: ping", out.Data["response"])

	out = do(t, router, jsonRequest(http.MethodPost, "/api/v1/chat/send", `{"message":""}`))
	require.Equal(t, errcode.ErrInvalid, out.Code)
}

func TestChatWithoutCredentials(t *testing.T) {
	router := setupRouter(t, newRAG(t), ai.NewGateway(nil), nil)
	out := do(t, router, jsonRequest(http.MethodPost, "/api/v1/chat/send", `{"message":"hello"}`))
	require.Equal(t, errcode.ErrAIUnavailable, out.Code)
	require.Contains(t, out.Msg, "llm.providers")
}

func TestHealth(t *testing.T) {
	gateway := ai.NewGateway(nil)
	router := setupRouter(t, newRAG(t), gateway, gateway)
	out := do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, "ok", out.Data["status"])
	require.Equal(t, true, out.Data["index_available"])
	require.Equal(t, "local:hashing", out.Data["embedding_model"])

	router = setupRouter(t, service.NewUnavailableRAGService(vectorstore.ErrIndexUnavailable), gateway, gateway)
	out = do(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, "degraded", out.Data["status"])
	require.Equal(t, false, out.Data["index_available"])
}

func TestMetricsRoute(t *testing.T) {
	router := setupRouter(t, newRAG(t), &echoCompleter{}, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "classmate_")
}
