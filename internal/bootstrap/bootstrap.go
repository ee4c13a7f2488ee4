package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/config"
	"github.com/mickgian/pratikoai-kb/internal/core/ports"
	"github.com/mickgian/pratikoai-kb/internal/core/usecase"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/extract"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/llm/ollama"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/ocr/tesseract"
	natsqueue "github.com/mickgian/pratikoai-kb/internal/infrastructure/queue/nats"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/repository/postgres"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/resilience"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/storage/localfs"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/textproc"
	"github.com/mickgian/pratikoai-kb/internal/infrastructure/websearch/searxng"
	"github.com/mickgian/pratikoai-kb/internal/observability/logging"
)

const htmlMinBodyChars = 500

type App struct {
	Config config.Config
	Tuning config.Tuning
	Logger *slog.Logger

	Bus *natsqueue.Bus

	IngestUC   ports.DocumentIngestor
	Items      ports.ItemReader
	ProcessUC  ports.DocumentProcessor
	RetrieveUC ports.ChunkRetriever
	GoldenUC   *usecase.GoldenUseCase
	CacheUC    *usecase.AnswerCacheUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.New(service, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	knowledgeStore := postgres.NewKnowledgeStore(db)
	if err := knowledgeStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	searcher := postgres.NewChunkSearcher(db, authoritySources(tuning))
	cacheStore := postgres.NewCacheStore(db)
	goldenStore := postgres.NewGoldenStore(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	bus, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.SubmitSubject, cfg.EventsSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message bus: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient, cfg.EmbedBatchSize, cfg.EmbedRatePerSec, logger)
	synthesizer := ollama.NewSynthesizer(ollamaClient)

	ocrClient := tesseract.New(cfg.OCRURL, executor)
	extractor := extract.NewRouter(
		extract.NewHTMLStrategy(htmlMinBodyChars),
		extract.NewPDFStrategy(ocrClient, logger),
		extract.NewPlainTextStrategy(),
	)

	normalizer := textproc.NewNormalizer()
	validator := textproc.NewValidator(tuning.Validator)
	references := textproc.NewReferenceExtractor()
	chunker := textproc.NewChunker(tuning.Chunker)

	var web ports.WebSearcher
	if cfg.WebSearchURL != "" {
		web = searxng.New(cfg.WebSearchURL)
	}

	ingestUC := usecase.NewIngestDocumentUseCase(knowledgeStore, storage, bus)
	processUC := usecase.NewProcessDocumentUseCase(
		knowledgeStore, storage, extractor,
		normalizer, validator, references, chunker,
		embedder, bus, logging.Component(logger, "pipeline"), cfg.DocEmbedMaxChars,
	)
	retrieveUC := usecase.NewRetrieveUseCase(searcher, embedder, synthesizer, web, usecase.RetrievalParams{
		FusionK:       tuning.Fusion.K,
		SourceWeights: tuning.Fusion.Weights,
		SourceBoosts:  tuning.Boosts.Sources,
		TypeBoosts:    tuning.Boosts.Types,
		SourceTimeout: time.Duration(cfg.SourceTimeoutMS) * time.Millisecond,
		PerSource:     cfg.CandidatesPerSource,
		DefaultTopK:   cfg.RetrieveTopK,
	}, logging.Component(logger, "retriever"))
	cacheUC := usecase.NewAnswerCacheUseCase(cacheStore, embedder, usecase.CacheParams{
		SimilarityFloor: tuning.Cache.SimilarityFloor,
		MaxAge:          time.Duration(tuning.Cache.MaxAgeHours) * time.Hour,
	}, logger)
	goldenUC := usecase.NewGoldenUseCase(goldenStore, embedder, bus, usecase.GoldenParams{
		SimilarityFloor:  tuning.Golden.SimilarityFloor,
		AutoPublishScore: tuning.Golden.AutoPublishScore,
		ReviewFloor:      tuning.Golden.ReviewFloor,
	}, logger)

	return &App{
		Config: cfg,
		Tuning: tuning,
		Logger: logger,

		Bus: bus,

		IngestUC:   ingestUC,
		Items:      ingestUC,
		ProcessUC:  processUC,
		RetrieveUC: retrieveUC,
		GoldenUC:   goldenUC,
		CacheUC:    cacheUC,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// authoritySources orders boosted source ids from most to least trusted.
func authoritySources(tuning config.Tuning) []string {
	out := make([]string, 0, len(tuning.Boosts.Sources))
	for source := range tuning.Boosts.Sources {
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := tuning.Boosts.Sources[out[i]], tuning.Boosts.Sources[out[j]]
		if bi != bj {
			return bi > bj
		}
		return out[i] < out[j]
	})
	return out
}
