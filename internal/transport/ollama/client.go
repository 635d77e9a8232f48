// Package ollama talks to an Ollama server for embeddings and text
// generation. The API is plain JSON over HTTP; generation optionally
// streams line-delimited chunks.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/metrics"
)

// Client is an Ollama API client.
type Client struct {
	host       string
	embedModel string
	genModel   string
	http       *http.Client
	logger     *zap.Logger
}

// Config holds Ollama connection settings.
type Config struct {
	Host       string // e.g. http://127.0.0.1:11434
	EmbedModel string
	GenModel   string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewClient creates an Ollama client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		embedModel: cfg.EmbedModel,
		genModel:   cfg.GenModel,
		http:       &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements domain.Embedder with one API call per text. Ollama does
// not normalize embeddings, so the vector is L2-normalized here.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embedResponse
	err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.embedModel, Prompt: text}, &out)
	if err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues("ollama", c.embedModel).Inc()
		return nil, err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("ollama", c.embedModel).Inc()
	return Normalize(out.Embedding), nil
}

// Normalize scales v to unit length. An all-zero vector stays all-zero
// instead of dividing by zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1.0
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the complete response for a prompt (stream=false).
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var out generateChunk
	req := generateRequest{Model: c.genModel, Prompt: prompt, Stream: false}
	if err := c.postGen(ctx, req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// GenerateStream streams generation chunks, calling fn with the incremental
// text of each one. Forwarding stops when the backend signals done;
// trailing empty or malformed lines are discarded. An error from fn (the
// client went away) aborts the upstream read.
func (c *Client) GenerateStream(ctx context.Context, prompt string, fn func(string) error) error {
	req := generateRequest{Model: c.genModel, Prompt: prompt, Stream: true}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal generate request: %w", err)
	}

	resp, err := c.doPost(ctx, "/api/generate", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return c.statusError("generate", resp, domain.ErrGenerationBackend)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.logger.Debug("skipping malformed stream line", zap.Error(err))
			continue
		}
		if chunk.Response != "" {
			if err := fn(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: read generate stream: %w", domain.ErrGenerationBackend, err)
	}
	return nil
}

// HealthCheck verifies the server responds.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: ollama returned %d", domain.ErrConnection, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.doPost(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return c.statusError(path, resp, domain.ErrEmbeddingBackend)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) postGen(ctx context.Context, in generateRequest, out *generateChunk) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal generate request: %w", err)
	}

	resp, err := c.doPost(ctx, "/api/generate", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return c.statusError("generate", resp, domain.ErrGenerationBackend)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode generate response: %w", err)
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return resp, nil
}

func (c *Client) statusError(op string, resp *http.Response, sentinel error) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %s returned %d: %s", sentinel, op, resp.StatusCode, bytes.TrimSpace(detail))
}
