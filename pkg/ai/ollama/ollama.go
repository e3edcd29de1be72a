package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/ember-journal/ember/backend/pkg/ai"

	"github.com/ollama/ollama/api"
)

// JournalOllamaClient implements ai.JournalAIClient against a locally or
// remotely hosted Ollama server.
type JournalOllamaClient struct {
	chatModel string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewJournalOllamaClientParams contains configuration options for creating
// a new JournalOllamaClient.
type NewJournalOllamaClientParams struct {
	ChatModel string

	BaseURL string
	ApiKey  string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewJournalOllamaClient creates a new Ollama-based AI client. It connects
// to the Ollama server at the given BaseURL (or the default if empty) and
// uses the configured chat model for all operations.
func NewJournalOllamaClient(
	params NewJournalOllamaClientParams,
) (*JournalOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	return &JournalOllamaClient{
		chatModel: params.ChatModel,

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: cli,
	}, nil
}

// Model returns the configured chat model identifier.
func (c *JournalOllamaClient) Model() string {
	return c.chatModel
}

func (c *JournalOllamaClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
}

// GetMetrics returns the accumulated metrics since the last reset.
func (c *JournalOllamaClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

// ResetMetrics clears the accumulated metrics.
func (c *JournalOllamaClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}
