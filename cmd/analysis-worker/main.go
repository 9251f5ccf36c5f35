package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/translationquoteflow/internal/api"
	"github.com/Lllllllleong/translationquoteflow/internal/app"
	"github.com/Lllllllleong/translationquoteflow/internal/config"
)

var (
	server  *api.Server
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Called by the analysis workflow, one request per quote.
	functions.HTTP("HandleAnalysisWorker", runQuoteAnalysis)
}

// main is required by the Go Functions Framework.
func main() {}

func newServer(ctx context.Context) (*api.Server, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.Needs{Classifier: true, OCR: true})
	if err != nil {
		return nil, err
	}
	return api.NewServer(api.Deps{Repo: a.Repo, Analyzer: a.Analyzer()}), nil
}

func runQuoteAnalysis(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		server, initErr = newServer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	// The workflow retries on 5xx; per-file failures are recorded on the rows
	// and still answer 200.
	server.HandleAnalysisWorker(w, r)
}
