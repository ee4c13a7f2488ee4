package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mickgian/pratikoai-kb/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder batches embedding requests and throttles them; embedding is the
// dominant ingestion cost and must not be issued one call per chunk.
type Embedder struct {
	client    *Client
	batchSize int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewEmbedder(client *Client, batchSize int, callsPerSec float64, logger *slog.Logger) *Embedder {
	if batchSize <= 0 {
		batchSize = 32
	}
	if callsPerSec <= 0 {
		callsPerSec = 4
	}
	return &Embedder{
		client:    client,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(callsPerSec), 1),
		logger:    logger,
	}
}

// Embed returns one row per input text. A failed batch yields nil rows for
// its texts instead of failing the whole call; callers store such chunks
// without a vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return out, fmt.Errorf("embed rate limit wait: %w", err)
		}

		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			e.logger.Warn("embedding batch failed",
				"from", start, "to", end, "error", err)
			continue
		}
		for i, v := range vectors {
			if start+i < len(out) {
				out[start+i] = v
			}
		}
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed rate limit wait: %w", err)
	}
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	call := func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	}

	var err error
	if e.client.executor != nil {
		err = e.client.executor.Execute(ctx, "ollama.embed", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

// Synthesizer drafts a short plausible answer to a question. Its embedding
// is used as an extra vector-search probe for terse queries.
type Synthesizer struct {
	client *Client
}

func NewSynthesizer(client *Client) *Synthesizer {
	return &Synthesizer{client: client}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string) (string, error) {
	reqBody := map[string]any{
		"model":  s.client.genModel,
		"prompt": buildHypotheticalPrompt(question),
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	call := func(callCtx context.Context) error {
		return s.client.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	}

	var err error
	if s.client.executor != nil {
		err = s.client.executor.Execute(ctx, "ollama.generate", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func buildHypotheticalPrompt(question string) string {
	var b strings.Builder
	b.WriteString("Sei un esperto di normativa fiscale italiana. ")
	b.WriteString("Scrivi una risposta breve e plausibile (3-4 frasi) alla domanda seguente, ")
	b.WriteString("citando dove possibile articoli e norme pertinenti. Non aggiungere premesse.\n\nDomanda: ")
	b.WriteString(question)
	return b.String()
}
