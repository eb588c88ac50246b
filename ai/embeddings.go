package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// EmbeddingProvider turns text into a dense vector. Implementations must
// return vectors of a consistent dimension for the life of the provider.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder reads OPENAI_API_KEY from the environment.
func NewOpenAIEmbedder() (*OpenAIEmbedder, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(key),
		model:  openai.SmallEmbedding3,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// LocalEmbedder embeds text through a self-hosted model endpoint that
// speaks a minimal JSON protocol: POST {"text": ...} -> {"embedding": [...]}.
type LocalEmbedder struct {
	url        string
	httpClient *http.Client
}

// NewLocalEmbedder points at a local model server, e.g. http://localhost:8008/embed.
func NewLocalEmbedder(url string) (*LocalEmbedder, error) {
	if url == "" {
		return nil, errors.New("local model URL is required")
	}
	return &LocalEmbedder{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local model returned status %d", resp.StatusCode)
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode local model response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("local model returned an empty embedding")
	}
	return out.Embedding, nil
}

// HashingEmbedder is a deterministic offline provider: it hashes tokens into
// a fixed-dimension bag-of-words vector. Quality is far below a learned
// model, but it is stable and needs no network, which makes it the default
// for demo mode and tests.
type HashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:'\"()")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// NewEmbedderFromEnv picks a provider the same way the response layer does:
// local model when USE_LOCAL_MODEL is set, OpenAI when a key is present,
// otherwise the offline hashing provider.
func NewEmbedderFromEnv() (EmbeddingProvider, error) {
	if os.Getenv("USE_LOCAL_MODEL") == "true" {
		return NewLocalEmbedder(os.Getenv("LOCAL_MODEL_URL"))
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewOpenAIEmbedder()
	}
	return NewHashingEmbedder(256), nil
}
