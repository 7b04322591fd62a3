package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/classmate/internal/pkg/response"
	"github.com/xxxsen/classmate/internal/service"
)

// ProviderLister reports the configured language-model providers.
type ProviderLister interface {
	Providers() []string
}

type HealthHandler struct {
	rag       *service.RAGService
	providers ProviderLister
}

func NewHealthHandler(rag *service.RAGService, providers ProviderLister) *HealthHandler {
	return &HealthHandler{rag: rag, providers: providers}
}

type healthResponse struct {
	Status         string   `json:"status"`
	IndexAvailable bool     `json:"index_available"`
	IndexError     string   `json:"index_error,omitempty"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	Chunks         int      `json:"chunks"`
	LLMProviders   []string `json:"llm_providers"`
}

func (h *HealthHandler) Health(c *gin.Context) {
	res := healthResponse{Status: "ok", LLMProviders: []string{}}
	if h.providers != nil {
		if names := h.providers.Providers(); names != nil {
			res.LLMProviders = names
		}
	}
	res.IndexAvailable = h.rag.Available()
	if !res.IndexAvailable {
		res.Status = "degraded"
		if err := h.rag.Err(); err != nil {
			res.IndexError = err.Error()
		}
		response.Success(c, res)
		return
	}
	res.EmbeddingModel = h.rag.ModelName()
	chunks, err := h.rag.Count(c.Request.Context(), "")
	if err != nil {
		res.Status = "degraded"
		res.IndexError = err.Error()
	}
	res.Chunks = chunks
	response.Success(c, res)
}
