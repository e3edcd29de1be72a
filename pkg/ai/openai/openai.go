package openai

import (
	"sync"

	"github.com/ember-journal/ember/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// JournalOpenAIClient implements ai.JournalAIClient against an
// OpenAI-compatible chat completion endpoint.
//
// A JournalOpenAIClient should be created using NewJournalOpenAIClient.
type JournalOpenAIClient struct {
	chatModel string
	chatURL   string
	chatKey   string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewJournalOpenAIClientParams defines the configuration for creating a
// new JournalOpenAIClient. ChatURL may be empty to use the provider
// default endpoint. An empty ChatKey produces a client whose calls fail
// with ai.ErrNotConfigured.
type NewJournalOpenAIClientParams struct {
	ChatModel string
	ChatURL   string
	ChatKey   string
}

// NewJournalOpenAIClient creates and returns a new JournalOpenAIClient
// configured with the provided parameters.
func NewJournalOpenAIClient(
	params NewJournalOpenAIClientParams,
) *JournalOpenAIClient {
	return &JournalOpenAIClient{
		chatModel: params.ChatModel,
		chatURL:   params.ChatURL,
		chatKey:   params.ChatKey,

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// Model returns the configured chat model identifier.
func (c *JournalOpenAIClient) Model() string {
	return c.chatModel
}

func (c *JournalOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
}

// GetMetrics returns the accumulated metrics since the last reset.
func (c *JournalOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

// ResetMetrics clears the accumulated metrics.
func (c *JournalOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}
