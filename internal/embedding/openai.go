package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultOpenAIURL is the default OpenAI-compatible API endpoint.
	DefaultOpenAIURL = "https://api.openai.com/v1"

	// DefaultOpenAIModel is the default remote embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions is the output size of text-embedding-3-small.
	DefaultOpenAIDimensions = 1536

	// DefaultOpenAIRate is the default requests-per-second ceiling.
	DefaultOpenAIRate = 10
)

// OpenAIProvider generates embeddings through an OpenAI-compatible
// /embeddings endpoint.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIBaseURL sets the API base URL (without the /embeddings suffix).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithOpenAIModel sets the embedding model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithOpenAIDimensions sets the expected vector dimensions.
func WithOpenAIDimensions(dims int) OpenAIOption {
	return func(p *OpenAIProvider) {
		if dims > 0 {
			p.dimensions = dims
		}
	}
}

// WithOpenAIRate caps outgoing requests per second. Zero or negative
// disables limiting.
func WithOpenAIRate(perSecond float64) OpenAIOption {
	return func(p *OpenAIProvider) {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithOpenAITimeout sets the HTTP client timeout.
func WithOpenAITimeout(timeout time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		if timeout > 0 {
			p.client.Timeout = timeout
		}
	}
}

// NewOpenAIProvider creates a provider authenticated with apiKey.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		baseURL:    DefaultOpenAIURL,
		apiKey:     apiKey,
		model:      DefaultOpenAIModel,
		dimensions: DefaultOpenAIDimensions,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultOpenAIRate), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Embed generates an embedding for the given text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Embedding{}, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(openAIEmbedRequest{Input: text, Model: p.model})
	if err != nil {
		return Embedding{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return Embedding{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Embedding{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Embedding{}, fmt.Errorf("%w: embeddings endpoint returned status %d: %s",
			ErrUnavailable, resp.StatusCode, formatErrorBody(resp.Body))
	}

	var result openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Embedding{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Data) == 0 {
		return Embedding{}, fmt.Errorf("%w: response contained no embeddings", ErrUnavailable)
	}

	vec := result.Data[0].Embedding
	if len(vec) != p.dimensions {
		return Embedding{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), p.dimensions)
	}
	return Embedding{Vector: vec}, nil
}

// ModelName returns the name of the embedding model.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

type openAIEmbedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
