package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	defaultXAIBaseURL    = "https://api.x.ai/v1"
)

type openAIConfig struct {
	APIKey    string            `json:"api_key"`
	APIKeyEnv string            `json:"api_key_env"`
	BaseURL   string            `json:"base_url"`
	Headers   map[string]string `json:"headers"`
}

type openAIProvider struct {
	name      string
	client    *openai.Client
	hasKey    bool
	keySource string
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Generate(ctx context.Context, model string, req *GenerateRequest) (string, error) {
	if !p.hasKey {
		return "", missingCredential(p.name, p.keySource)
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	if req.HasImage() {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    imageDataURL(req.Image, req.ImageMIME),
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", parseOpenAIError(p.name, err)
	}
	return openAIResponseText(resp)
}

func (p *openAIProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	_ = taskType
	if !p.hasKey {
		return nil, missingCredential(p.name, p.keySource)
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, parseOpenAIError(p.name, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%s response has no embeddings", p.name)
	}
	return resp.Data[0].Embedding, nil
}

// openAIResponseText is the only place that knows the chat response shape.
func openAIResponseText(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	msg := resp.Choices[0].Message
	text := msg.Content
	if text == "" && len(msg.MultiContent) > 0 {
		parts := make([]string, 0, len(msg.MultiContent))
		for _, part := range msg.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText && part.Text != "" {
				parts = append(parts, part.Text)
			}
		}
		text = strings.Join(parts, "\n")
	}
	return strings.TrimSpace(text), nil
}

func parseOpenAIError(name string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s rejected the api key: %s", ErrNoCredentials, name, apiErr.Message)
		}
		return fmt.Errorf("%s api error %d: %s", name, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s request error %d: %s", name, reqErr.HTTPStatusCode, strings.TrimSpace(string(reqErr.Body)))
	}
	return fmt.Errorf("%s request failed: %w", name, err)
}

func imageDataURL(image []byte, mime string) string {
	if mime == "" {
		mime = http.DetectContentType(image)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.next.RoundTrip(req)
}

func newOpenAICompatible(name, defaultBaseURL, defaultKeyEnv string, args interface{}) (IProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	keyEnv := strings.TrimSpace(cfg.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = defaultKeyEnv
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && keyEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(keyEnv))
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	if len(cfg.Headers) > 0 {
		clientCfg.HTTPClient = &http.Client{Transport: &headerTransport{headers: cfg.Headers, next: http.DefaultTransport}}
	}
	return &openAIProvider{
		name:      name,
		client:    openai.NewClientWithConfig(clientCfg),
		hasKey:    apiKey != "",
		keySource: "api_key or $" + keyEnv,
	}, nil
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	return newOpenAICompatible("openai", defaultOpenAIBaseURL, "OPENAI_API_KEY", args)
}

func createGroqFactory(args interface{}) (IProvider, error) {
	return newOpenAICompatible("groq", defaultGroqBaseURL, "GROK_API_KEY", args)
}

func createXAIFactory(args interface{}) (IProvider, error) {
	return newOpenAICompatible("xai", defaultXAIBaseURL, "XAI_API_KEY", args)
}

func init() {
	Register("openai", createOpenAIFactory)
	Register("groq", createGroqFactory)
	Register("xai", createXAIFactory)
}
