// Package app builds the shared pipeline components from configuration.
// Every entrypoint (the functions, the server and the CLI) wires itself
// through New so backends are chosen in one place.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/translationquoteflow/internal/blob"
	"github.com/Lllllllleong/translationquoteflow/internal/classify"
	"github.com/Lllllllleong/translationquoteflow/internal/config"
	"github.com/Lllllllleong/translationquoteflow/internal/extract"
	"github.com/Lllllllleong/translationquoteflow/internal/gcp"
	"github.com/Lllllllleong/translationquoteflow/internal/notify"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
	"github.com/Lllllllleong/translationquoteflow/internal/store"
)

// Needs lists the optional components an entrypoint uses. The record store
// and the document stores are always built.
type Needs struct {
	Classifier bool
	OCR        bool
	Email      bool
}

// App holds the components built for one process.
type App struct {
	Config     *config.Config
	Repo       store.Repository
	Docs       blob.DocumentStore
	Artifacts  blob.ArtifactStore
	Extractor  *extract.Service
	Classifier classify.Classifier
	// Sender is nil when email is not configured.
	Sender notify.Sender

	closers []func() error
}

// New builds the components named by needs. On error everything built so far
// is closed.
func New(ctx context.Context, cfg *config.Config, needs Needs) (a *App, err error) {
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := a.openRepository(ctx); err != nil {
		return nil, err
	}
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	var ocr extract.OCR
	if needs.OCR {
		ocr, err = a.openOCR(ctx)
		if err != nil {
			return nil, err
		}
	}
	a.Extractor = extract.NewService(ocr)

	if needs.Classifier {
		if err := a.openClassifier(ctx); err != nil {
			return nil, err
		}
	}
	if needs.Email {
		if err := a.openSender(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openRepository(ctx context.Context) error {
	cfg := a.Config
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		repo, err := store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		a.Repo = repo
	default:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return err
		}
		a.Repo = store.NewFirestoreRepository(client)
	}
	a.closers = append(a.closers, a.Repo.Close)
	slog.Info("Record store ready.", "backend", cfg.Store.Backend)
	return nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	if cfg.LocalStorageDir != "" {
		dir, err := blob.NewDir(cfg.LocalStorageDir)
		if err != nil {
			return err
		}
		a.Docs, a.Artifacts = dir, dir
		slog.Info("Using local document storage.", "dir", cfg.LocalStorageDir)
		return nil
	}
	client, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	a.Docs = gcp.NewDocumentStore(client, cfg.UploadsBucket)
	a.Artifacts = gcp.NewArtifactStore(client, cfg.ArtifactsBucket)
	return nil
}

// openOCR returns nil without a project; images then fail with
// extract.ErrOCRUnavailable instead of blocking startup.
func (a *App) openOCR(ctx context.Context) (extract.OCR, error) {
	if a.Config.ProjectID == "" {
		slog.Warn("PROJECT_ID not set, OCR is disabled.")
		return nil, nil
	}
	client, err := gcp.NewVisionClient(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return extract.NewVisionOCR(client), nil
}

func (a *App) openClassifier(ctx context.Context) error {
	cfg := a.Config
	if err := cfg.ValidateClassifier(); err != nil {
		return err
	}
	switch cfg.Classifier.Provider {
	case config.ProviderOpenAI:
		c, err := classify.NewOpenAIClassifier(cfg.Classifier.OpenAIBaseURL, cfg.Classifier.OpenAIAPIKey, cfg.Classifier.OpenAIModel)
		if err != nil {
			return err
		}
		a.Classifier = c
	default:
		vc, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.Classifier.GeminiModel, classify.SystemPrompt)
		if err != nil {
			return fmt.Errorf("failed to create Vertex AI client: %w", err)
		}
		a.closers = append(a.closers, vc.Close)
		a.Classifier = classify.NewGeminiClassifier(vc)
	}
	slog.Info("Classifier ready.", "provider", cfg.Classifier.Provider, "model", a.Classifier.Model())
	return nil
}

func (a *App) openSender() error {
	cfg := a.Config
	if err := cfg.ValidateEmail(); err != nil {
		slog.Warn("Quote email is disabled.", "reason", err)
		return nil
	}
	sender, err := notify.NewBrevoSender(notify.BrevoConfig{
		APIKey:      cfg.Email.BrevoAPIKey,
		URL:         cfg.Email.BrevoURL,
		SenderEmail: cfg.Email.SenderEmail,
		SenderName:  cfg.Email.SenderName,
		AdminEmail:  cfg.Email.AdminEmail,
	}, nil)
	if err != nil {
		return err
	}
	a.Sender = sender
	return nil
}

// Analyzer builds the orchestrator with the configured timeouts.
func (a *App) Analyzer() *services.Analyzer {
	return services.NewAnalyzer(a.Repo, a.Docs, a.Extractor, a.Classifier,
		services.WithArtifacts(a.Artifacts),
		services.WithStaleAfter(a.Config.StaleProcessingAfter),
		services.WithFileTimeout(a.Config.AnalysisTimeout),
	)
}

// WorkflowDispatcher hands analysis requests to Cloud Workflows.
func (a *App) WorkflowDispatcher(ctx context.Context) (*services.WorkflowDispatcher, error) {
	cfg := a.Config
	if err := cfg.ValidateWorkflow(); err != nil {
		return nil, err
	}
	client, err := gcp.NewExecutionsClient(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return services.NewWorkflowDispatcher(client, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID), nil
}

// Close releases every client in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
