package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mickgian/pratikoai-kb/internal/bootstrap"
	"github.com/mickgian/pratikoai-kb/internal/config"
	"github.com/mickgian/pratikoai-kb/internal/core/domain"
	"github.com/mickgian/pratikoai-kb/internal/observability/metrics"
)

const service = "worker"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// The invalidator consumer runs alongside the pipeline consumer; both
	// block until ctx is cancelled.
	go func() {
		err := app.Bus.SubscribeKnowledgeEvents(ctx, func(handlerCtx context.Context, event domain.KnowledgeEvent) error {
			if err := app.CacheUC.InvalidateForEvent(handlerCtx, event); err != nil {
				return err
			}
			workerMetrics.RecordInvalidation(service, string(event.Type))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			app.Logger.Error("invalidator subscribe error", "error", err)
		}
	}()

	app.Logger.Info("worker subscribed", "subject", cfg.SubmitSubject)
	err = app.Bus.SubscribeDocumentSubmitted(ctx, func(handlerCtx context.Context, itemID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()

		if item, getErr := app.Items.GetByID(processCtx, itemID); getErr == nil {
			workerMetrics.ObserveQueueLag(service, time.Since(item.CreatedAt))
		}

		result, processErr := app.ProcessUC.ProcessByID(processCtx, itemID)
		status := "error"
		if processErr == nil && result != nil {
			status = string(result.Status)
			if result.ChunkCount > 0 {
				workerMetrics.ObserveChunksStored(service, result.ChunkCount)
			}
		}
		workerMetrics.FinishDocument(service, status, time.Since(start))
		return processErr
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
