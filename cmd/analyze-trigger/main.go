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

	// "HandleAnalyze" is the entry point name deployed in GCP.
	functions.HTTP("HandleAnalyze", analyzeQuote)
}

// main is required by the Go Functions Framework.
func main() {}

func newServer(ctx context.Context) (*api.Server, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.Needs{})
	if err != nil {
		return nil, err
	}
	dispatcher, err := a.WorkflowDispatcher(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return api.NewServer(api.Deps{Repo: a.Repo, Dispatcher: dispatcher}), nil
}

// analyzeQuote hands the quote to the analysis workflow and returns 202.
func analyzeQuote(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		server, initErr = newServer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	server.HandleAnalyze(w, r)
}
