package httpadapter

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/faqimport"
	"github.com/mickgian/pratikoai-kb/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestor  ports.DocumentIngestor
	items     ports.ItemReader
	retriever ports.ChunkRetriever
	golden    ports.GoldenChecker
	cache     ports.AnswerCache
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	items ports.ItemReader,
	retriever ports.ChunkRetriever,
	golden ports.GoldenChecker,
	cache ports.AnswerCache,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		ingestor:  ingestor,
		items:     items,
		retriever: retriever,
		golden:    golden,
		cache:     cache,
		metrics:   serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.submitDocument)
	mux.HandleFunc("/v1/documents/", rt.getItemByID)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/golden/check", rt.goldenCheck)
	mux.HandleFunc("/v1/golden/propose", rt.goldenPropose)
	mux.HandleFunc("/v1/golden/import", rt.goldenImport)
	mux.HandleFunc("/v1/cache/lookup", rt.cacheLookup)
	mux.HandleFunc("/v1/cache/entries", rt.cacheStore)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Locator     string `json:"locator"`
		ContentType string `json:"content_type"`
		SourceID    string `json:"source_id"`
		Summary     string `json:"summary"`
		BodyBase64  string `json:"body_base64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	body, err := base64.StdEncoding.DecodeString(req.BodyBase64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body_base64 is not valid base64"})
		return
	}

	item, err := rt.ingestor.Submit(r.Context(), domain.RawDocument{
		Locator:     req.Locator,
		ContentType: req.ContentType,
		Body:        body,
		SourceID:    req.SourceID,
		Summary:     req.Summary,
		FetchedAt:   time.Now().UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

func (rt *Router) getItemByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item id is required"})
		return
	}

	item, err := rt.items.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.retriever.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(serviceName, len(result.Chunks), result.Degraded, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) goldenCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	answer, err := rt.golden.Check(r.Context(), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	if answer == nil {
		if rt.metrics != nil {
			rt.metrics.RecordGoldenCheck(serviceName, "miss")
		}
		writeJSON(w, http.StatusOK, map[string]any{"match": false})
		return
	}
	if rt.metrics != nil {
		result := "semantic"
		if answer.Exact {
			result = "exact"
		}
		rt.metrics.RecordGoldenCheck(serviceName, result)
	}
	writeJSON(w, http.StatusOK, map[string]any{"match": true, "answer": answer})
}

func (rt *Router) goldenPropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var entry domain.GoldenEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	stored, err := rt.golden.Propose(r.Context(), entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (rt *Router) goldenImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	entries, err := faqimport.ParseWorkbook(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	published, pending, rejected, failed, err := rt.golden.ImportEntries(r.Context(), entries)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"published": published,
		"pending":   pending,
		"rejected":  rejected,
		"failed":    failed,
	})
}

func (rt *Router) cacheLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query  string             `json:"query"`
		Params domain.CacheParams `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	cached, err := rt.cache.Lookup(r.Context(), req.Query, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	if cached == nil {
		if rt.metrics != nil {
			rt.metrics.RecordCacheLookup(serviceName, "miss")
		}
		writeJSON(w, http.StatusOK, map[string]any{"hit": false})
		return
	}
	if rt.metrics != nil {
		result := "exact"
		if cached.Semantic {
			result = "semantic"
		}
		rt.metrics.RecordCacheLookup(serviceName, result)
	}
	writeJSON(w, http.StatusOK, map[string]any{"hit": true, "result": cached})
}

func (rt *Router) cacheStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query   string             `json:"query"`
		Params  domain.CacheParams `json:"params"`
		Payload string             `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := rt.cache.Store(r.Context(), req.Query, req.Params, req.Payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
