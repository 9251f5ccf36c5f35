// Command quoteserver runs the whole quote pipeline in one process: the HTTP
// API, an in-process analysis queue and the status poller.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Lllllllleong/translationquoteflow/internal/api"
	"github.com/Lllllllleong/translationquoteflow/internal/app"
	"github.com/Lllllllleong/translationquoteflow/internal/config"
	"github.com/Lllllllleong/translationquoteflow/internal/models"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file loaded.", "reason", err)
	}
	if err := run(); err != nil {
		slog.Error("Server stopped with error.", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, app.Needs{Classifier: true, OCR: true, Email: true})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	queue := services.NewQueueDispatcher(a.Analyzer(), slog.Default(),
		services.WithWorkers(cfg.Workers),
		services.WithProcessTimeout(cfg.AnalysisTimeout),
		services.WithCompletion(logFailedFiles),
	)
	polls := services.NewPollRegistry(a.Repo, services.SystemClock, cfg.Poller.Interval, cfg.Poller.MaxAttempts)
	jobs := services.NewExtractionJobs(a.Repo, a.Docs, a.Artifacts, a.Extractor)

	srv := api.NewServer(api.Deps{
		Repo:       a.Repo,
		Analyzer:   a.Analyzer(),
		Dispatcher: queue,
		Polls:      polls,
		Quotes:     services.NewQuotes(a.Repo, a.Sender),
		Intake:     services.NewIntake(a.Repo, a.Docs, queue, cfg.AutoAnalyze),
		Jobs:       jobs,
		Classifier: services.NewFileClassifier(jobs, a.Classifier),
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening.", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down.")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed.", "error", err)
	}
	polls.Shutdown()
	queue.Shutdown(shutdownCtx)
	jobs.Wait()
	slog.Info("Server stopped.")
	return nil
}

func logFailedFiles(req models.AnalyzeRequest, resp *models.AnalyzeResponse, err error) {
	if err != nil || resp == nil {
		return
	}
	for _, f := range resp.Files {
		if f.Status == models.StatusError {
			slog.Warn("File analysis failed.", "quoteId", req.QuoteID, "runId", resp.RunID, "fileName", f.FileName, "message", f.Message)
		}
	}
}
