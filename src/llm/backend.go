package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	BackendOpenAI   = "openai"
	BackendDeepSeek = "deepseek"
	BackendHTTP     = "http"
	BackendOffline  = "offline"
	BackendHold     = "hold"
)

const systemPrompt = "You are a disciplined crypto perpetuals trading assistant. Answer with a single JSON object and nothing else."

// Backend turns a rendered prompt into raw model text.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatModelBackend adapts an eino chat model.
type ChatModelBackend struct {
	name string
	chat model.BaseChatModel
}

func NewChatModelBackend(name string, chat model.BaseChatModel) *ChatModelBackend {
	return &ChatModelBackend{name: name, chat: chat}
}

func NewOpenAIBackend(ctx context.Context, cfg Config) (*ChatModelBackend, error) {
	maxTokens := cfg.MaxTokens
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   cfg.OpenAIBaseURL,
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.OpenAIModel,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}
	return NewChatModelBackend(BackendOpenAI, chatModel), nil
}

func NewDeepSeekBackend(ctx context.Context, cfg Config) (*ChatModelBackend, error) {
	chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:    cfg.DeepSeekAPIKey,
		Model:     cfg.DeepSeekModel,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create deepseek chat model: %w", err)
	}
	return NewChatModelBackend(BackendDeepSeek, chatModel), nil
}

func (b *ChatModelBackend) Name() string {
	return b.name
}

func (b *ChatModelBackend) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := b.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", b.name, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%s generate: empty message", b.name)
	}
	return msg.Content, nil
}

// HTTPBackend posts {model, prompt, max_tokens} to a plain JSON completion endpoint.
type HTTPBackend struct {
	url       string
	apiKey    string
	modelName string
	maxTokens int
	http      *resty.Client
}

func NewHTTPBackend(cfg Config) *HTTPBackend {
	return &HTTPBackend{
		url:       cfg.HTTPURL,
		apiKey:    cfg.HTTPAPIKey,
		modelName: cfg.HTTPModel,
		maxTokens: cfg.MaxTokens,
		http:      resty.New().SetRetryCount(1),
	}
}

func (b *HTTPBackend) Name() string {
	return BackendHTTP
}

type httpCompletionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type httpCompletionResponse struct {
	Text    string `json:"text"`
	Content string `json:"content"`
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (b *HTTPBackend) Complete(ctx context.Context, prompt string) (string, error) {
	req := b.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(httpCompletionRequest{Model: b.modelName, Prompt: prompt, MaxTokens: b.maxTokens})
	if b.apiKey != "" {
		req.SetAuthToken(b.apiKey)
	}

	resp, err := req.Post(b.url)
	if err != nil {
		return "", fmt.Errorf("http backend request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("http backend returned %d: %s", resp.StatusCode(), resp.String())
	}

	var body httpCompletionResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		// Plain-text bodies are passed through to the JSON extractor.
		return resp.String(), nil
	}

	switch {
	case body.Text != "":
		return body.Text, nil
	case body.Content != "":
		return body.Content, nil
	case len(body.Choices) > 0 && body.Choices[0].Message.Content != "":
		return body.Choices[0].Message.Content, nil
	case len(body.Choices) > 0 && body.Choices[0].Text != "":
		return body.Choices[0].Text, nil
	}
	return "", errors.New("http backend returned no completion text")
}

// Registry maps backend identifiers to backends. Unknown identifiers
// resolve to the default backend.
type Registry struct {
	mu         sync.RWMutex
	backends   map[string]Backend
	defaultKey string
}

func NewRegistry(defaultKey string) *Registry {
	return &Registry{backends: make(map[string]Backend), defaultKey: defaultKey}
}

func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

func (r *Registry) Get(id string) Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[id]; ok {
		return b
	}
	if b, ok := r.backends[r.defaultKey]; ok {
		return b
	}
	return HoldBackend{}
}

// DefaultName reports which backend unknown identifiers resolve to.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultKey
}

// HoldOffline swaps the rule-based offline backend for HoldBackend. It
// reports whether the default backend was offline.
func (r *Registry) HoldOffline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[BackendOffline]; ok {
		r.backends[BackendOffline] = HoldBackend{}
	}
	return r.defaultKey == BackendOffline
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRegistry registers every backend with credentials plus the offline
// backend. With no credentials at all, every identifier resolves offline.
func BuildRegistry(ctx context.Context, cfg Config, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	var configured []string
	candidates := NewRegistry(BackendOffline)
	candidates.Register(OfflineBackend{})

	if cfg.OpenAIAPIKey != "" {
		if b, err := NewOpenAIBackend(ctx, cfg); err != nil {
			log.WithError(err).Warn("OpenAI backend unavailable")
		} else {
			candidates.Register(b)
			configured = append(configured, BackendOpenAI)
		}
	}
	if cfg.DeepSeekAPIKey != "" {
		if b, err := NewDeepSeekBackend(ctx, cfg); err != nil {
			log.WithError(err).Warn("DeepSeek backend unavailable")
		} else {
			candidates.Register(b)
			configured = append(configured, BackendDeepSeek)
		}
	}
	if cfg.HTTPURL != "" {
		candidates.Register(NewHTTPBackend(cfg))
		configured = append(configured, BackendHTTP)
	}

	defaultKey := BackendOffline
	if _, ok := candidates.backends[cfg.DefaultBackend]; ok {
		defaultKey = cfg.DefaultBackend
	} else if len(configured) > 0 {
		defaultKey = configured[0]
	}
	candidates.defaultKey = defaultKey

	log.WithFields(logrus.Fields{
		"backends": candidates.Names(),
		"default":  defaultKey,
	}).Info("Decision backends ready")

	return candidates
}
